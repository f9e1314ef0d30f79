package testsupport

import (
	"context"
	"testing"

	"lapse/internal/config"
	"lapse/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a queued job of the given kind with a fixed selection and
// lets callers adjust fields before insertion.
func NewJob(t testing.TB, store *queue.Store, kind queue.Kind, mutate ...func(*queue.Job)) *queue.Job {
	t.Helper()

	job := &queue.Job{
		Kind:        kind,
		DeveloperID: "dev",
		ProjectID:   "proj",
		CameraID:    "cam",
		DateFrom:    "20240101",
		DateTo:      "20240101",
		HourFrom:    "08",
		HourTo:      "09",
		ImageCount:  1,
	}
	if kind == queue.KindVideo {
		job.Render = queue.DefaultRenderOptions()
		job.FrameRate = 25
	}
	for _, fn := range mutate {
		fn(job)
	}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
