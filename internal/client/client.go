package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lapse/internal/api"
	"lapse/internal/config"
	"lapse/internal/services"
)

// Client provides HTTP access to the daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned HTTP %d", e.StatusCode)
	}
	return e.Message
}

// Unwrap maps the reported error kind back to the services sentinel so
// callers can use errors.Is.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case "empty_selection":
		return services.ErrEmptySelection
	case "validation":
		return services.ErrValidation
	case "not_found":
		return services.ErrNotFound
	}
	if e.StatusCode == http.StatusNotFound {
		return services.ErrNotFound
	}
	return nil
}

// New builds a client for baseURL, e.g. http://127.0.0.1:7480.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// FromConfig targets the daemon's configured bind address and token.
func FromConfig(cfg *config.Config) *Client {
	return New(BaseURL(cfg.Paths.APIBind), cfg.Paths.APIToken)
}

// BaseURL converts a listen address into a dialable URL. Wildcard hosts are
// replaced with loopback.
func BaseURL(bind string) string {
	bind = strings.TrimSpace(bind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return bind
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://" + bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// BaseURLString returns the URL the client sends requests to.
func (c *Client) BaseURLString() string {
	return c.baseURL
}

// SubmitVideo queues a timelapse render.
func (c *Client) SubmitVideo(ctx context.Context, req api.VideoRequest) (api.SubmitResponse, error) {
	var resp api.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/videos", req, &resp)
	return resp, err
}

// SubmitPhoto queues a photo archive.
func (c *Client) SubmitPhoto(ctx context.Context, req api.PhotoRequest) (api.SubmitResponse, error) {
	var resp api.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/photos", req, &resp)
	return resp, err
}

// ListJobs returns the jobs of one kind ("video" or "photo").
func (c *Client) ListJobs(ctx context.Context, kind string) ([]api.Job, error) {
	path := "/api/videos"
	if kind == "photo" {
		path = "/api/photos"
	}
	var resp api.JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetJob fetches a single job.
func (c *Client) GetJob(ctx context.Context, id string) (api.Job, error) {
	var job api.Job
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

// DeleteJob removes a job, cancelling it if it is running.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil)
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var payload api.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsUnavailable reports whether err means no daemon answered.
func IsUnavailable(err error) bool {
	var apiErr *Error
	if err == nil || errors.As(err, &apiErr) {
		return false
	}
	var netErr net.Error
	var opErr *net.OpError
	return errors.As(err, &opErr) || errors.As(err, &netErr)
}
