package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lapse/internal/api"
	"lapse/internal/services"
)

func TestBaseURL(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:7480":        "http://127.0.0.1:7480",
		":7480":                 "http://127.0.0.1:7480",
		"0.0.0.0:9000":          "http://127.0.0.1:9000",
		"[::]:9000":             "http://127.0.0.1:9000",
		"https://lapse.example": "https://lapse.example",
	}
	for bind, want := range tests {
		if got := BaseURL(bind); got != want {
			t.Fatalf("BaseURL(%q)=%q want %q", bind, got, want)
		}
	}
}

func TestSubmitSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		if r.Method != http.MethodPost || r.URL.Path != "/api/videos" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req api.VideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CameraID != "cam" {
			t.Errorf("unexpected body %+v %v", req, err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.SubmitResponse{Message: "ok", FilteredImageCount: 7, JobID: "abc"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	resp, err := c.SubmitVideo(context.Background(), api.VideoRequest{Selection: api.Selection{CameraID: "cam"}})
	if err != nil {
		t.Fatalf("SubmitVideo: %v", err)
	}
	if resp.FilteredImageCount != 7 || resp.JobID != "abc" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestErrorResponsesMapToSentinels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/photos":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "no stills", Kind: "empty_selection"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "job missing", Kind: "not_found"})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.SubmitPhoto(context.Background(), api.PhotoRequest{})
	if !errors.Is(err, services.ErrEmptySelection) || err.Error() != "no stills" {
		t.Fatalf("expected empty selection, got %v", err)
	}
	err = c.DeleteJob(context.Background(), "x")
	var apiErr *Error
	if !errors.Is(err, services.ErrNotFound) || !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if IsUnavailable(err) {
		t.Fatal("an API error is not an unavailable daemon")
	}
}

func TestUnavailableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, "").Status(context.Background())
	if err == nil || !IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
