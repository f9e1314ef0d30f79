package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"lapse/internal/config"
	"lapse/internal/queue"
)

const userAgent = "lapse/1"

// Service is the notification surface used by the workflow.
type Service interface {
	NotifyJobReady(ctx context.Context, job *queue.Job, publicURL string) error
	NotifyJobFailed(ctx context.Context, job *queue.Job) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobReady(ctx context.Context, job *queue.Job, publicURL string) error {
	var message string
	switch job.Kind {
	case queue.KindVideo:
		message = fmt.Sprintf("🎞️ Timelapse ready: %s\n%d stills, %s, %s",
			cameraLabel(job), job.ImageCount, durationText(job.OutputDurationSeconds), sizeText(job.OutputSizeBytes))
	default:
		message = fmt.Sprintf("🗜️ Photo archive ready: %s\n%d stills, %s",
			cameraLabel(job), job.ImageCount, sizeText(job.OutputSizeBytes))
	}
	if publicURL != "" {
		message += "\n" + publicURL
	}
	return n.send(ctx, payload{
		title:   "lapse - " + kindTitle(job.Kind) + " Ready",
		message: message,
		tags:    []string{"lapse", string(job.Kind), "ready"},
		click:   publicURL,
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, job *queue.Job) error {
	detail := strings.TrimSpace(job.ErrorMessage)
	if detail == "" {
		detail = "unknown"
	}
	return n.send(ctx, payload{
		title:    "lapse - " + kindTitle(job.Kind) + " Failed",
		message:  fmt.Sprintf("❌ Job %s for %s failed: %s", job.ID, cameraLabel(job), detail),
		tags:     []string{"lapse", string(job.Kind), "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "lapse - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"lapse", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func cameraLabel(job *queue.Job) string {
	return job.DeveloperID + "/" + job.ProjectID + "/" + job.CameraID
}

func kindTitle(kind queue.Kind) string {
	if kind == queue.KindVideo {
		return "Timelapse"
	}
	return "Photo Archive"
}

func durationText(seconds float64) string {
	if seconds <= 0 {
		return "unknown length"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func sizeText(size int64) string {
	if size <= 0 {
		return "unknown size"
	}
	return humanize.IBytes(uint64(size))
}

type noopService struct{}

func (noopService) NotifyJobReady(context.Context, *queue.Job, string) error { return nil }
func (noopService) NotifyJobFailed(context.Context, *queue.Job) error        { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
