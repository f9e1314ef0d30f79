package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lapse/internal/api"
	"lapse/internal/config"
	"lapse/internal/logging"
	"lapse/internal/pipeline"
	"lapse/internal/queue"
	"lapse/internal/services"
	"lapse/internal/stage"
	"lapse/internal/testsupport"
	"lapse/internal/workflow"
)

type recordingDispatcher struct {
	mu        sync.Mutex
	notified  int
	cancelled []string
}

func (d *recordingDispatcher) Notify() {
	d.mu.Lock()
	d.notified++
	d.mu.Unlock()
}

func (d *recordingDispatcher) Cancel(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled = append(d.cancelled, id)
	return true
}

func newController(t *testing.T) (*pipeline.Controller, *config.Config, *queue.Store, *recordingDispatcher) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dispatcher := &recordingDispatcher{}
	return pipeline.NewController(cfg, store, dispatcher, logging.NewNop()), cfg, store, dispatcher
}

func selection() api.Selection {
	return api.Selection{
		DeveloperID: "dev",
		ProjectID:   "proj",
		CameraID:    "cam",
		DateFrom:    "2024-01-01",
		DateTo:      "2024-01-01",
		HourFrom:    "08",
		HourTo:      "09",
	}
}

func writeStills(t *testing.T, cfg *config.Config, count int) {
	t.Helper()
	testsupport.WriteStills(t, cfg.CameraDir("dev", "proj", "cam"),
		time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), 5*time.Second, count)
}

func TestSubmitVideoQueuesJob(t *testing.T) {
	ctrl, cfg, store, dispatcher := newController(t)
	writeStills(t, cfg, 450)

	resp, err := ctrl.SubmitVideo(context.Background(), api.VideoRequest{
		Selection:       selection(),
		Submitter:       api.Submitter{SubmittedBy: "u-1", SubmitterName: " Ada "},
		DurationSeconds: 18,
	})
	if err != nil {
		t.Fatalf("SubmitVideo: %v", err)
	}
	if resp.FilteredImageCount != 450 || resp.JobID == "" || resp.Message == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if dispatcher.notified != 1 {
		t.Fatalf("expected one notify, got %d", dispatcher.notified)
	}

	job, err := store.GetByID(context.Background(), resp.JobID)
	if err != nil || job == nil {
		t.Fatalf("GetByID: %v %v", job, err)
	}
	if job.Status != queue.StatusQueued || job.Kind != queue.KindVideo {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.DateFrom != "20240101" || job.FrameRate != 25 || job.SubmitterName != "Ada" {
		t.Fatalf("unexpected stored fields %+v", job)
	}
	if job.Render.Resolution != "HD" || job.Render.Contrast != 1 || job.Render.Saturation != 1 {
		t.Fatalf("expected default render options, got %+v", job.Render)
	}
	want := filepath.Join(cfg.OutputDir("dev", "proj", "cam"), "list_"+job.ID+".txt")
	if job.ListPath != want {
		t.Fatalf("list path %q want %q", job.ListPath, want)
	}
	if _, err := os.Stat(job.ListPath); err != nil {
		t.Fatalf("selection list missing: %v", err)
	}
}

func TestSubmitEmptySelectionCreatesNothing(t *testing.T) {
	ctrl, cfg, store, dispatcher := newController(t)
	// Stills exist only outside the requested hours.
	testsupport.WriteStills(t, cfg.CameraDir("dev", "proj", "cam"),
		time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), time.Minute, 5)

	_, err := ctrl.SubmitVideo(context.Background(), api.VideoRequest{Selection: selection()})
	if !errors.Is(err, services.ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
	_, err = ctrl.SubmitPhoto(context.Background(), api.PhotoRequest{Selection: selection()})
	if !errors.Is(err, services.ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}

	jobs, err := store.List(context.Background(), queue.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no job records, got %d", len(jobs))
	}
	if dispatcher.notified != 0 {
		t.Fatal("dispatcher must not be woken for rejected submissions")
	}
	if _, err := os.Stat(cfg.OutputDir("dev", "proj", "cam")); !os.IsNotExist(err) {
		t.Fatal("no list file should be written for an empty selection")
	}
}

func TestSubmitValidation(t *testing.T) {
	ctrl, cfg, _, _ := newController(t)
	writeStills(t, cfg, 3)
	outside := filepath.Join(t.TempDir(), "logo.png")
	testsupport.WriteFile(t, outside, 4)
	neg := -0.5

	tests := map[string]api.VideoRequest{
		"traversal camera": {Selection: func() api.Selection { s := selection(); s.CameraID = ".."; return s }()},
		"slash project":    {Selection: func() api.Selection { s := selection(); s.ProjectID = "a/b"; return s }()},
		"no developer":     {Selection: func() api.Selection { s := selection(); s.DeveloperID = ""; return s }()},
		"inverted hours":   {Selection: func() api.Selection { s := selection(); s.HourFrom = "10"; return s }()},
		"bad date":         {Selection: func() api.Selection { s := selection(); s.DateTo = "2024-13-01"; return s }()},
		"unknown track":    {Selection: selection(), Music: true, MusicTrack: "nope.mp3"},
		"track traversal":  {Selection: selection(), Music: true, MusicTrack: "../secret.mp3"},
		"logo outside":     {Selection: selection(), LogoPath: outside},
		"negative sat":     {Selection: selection(), Saturation: &neg},
		"negative length":  {Selection: selection(), DurationSeconds: -1},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ctrl.SubmitVideo(context.Background(), req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSubmitVideoAcceptsOverlaysAndMusic(t *testing.T) {
	ctrl, cfg, store, _ := newController(t)
	writeStills(t, cfg, 10)
	logo := filepath.Join(cfg.Paths.MediaRoot, "uploads", "logo.png")
	testsupport.WriteFile(t, logo, 4)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MusicDir, "song.mp3"), 4)
	contrast := 1.3

	resp, err := ctrl.SubmitVideo(context.Background(), api.VideoRequest{
		Selection:  selection(),
		Resolution: "4k",
		LogoPath:   logo,
		Music:      true,
		MusicTrack: "song.mp3",
		Contrast:   &contrast,
		Caption:    "  North gate ",
		ShowDate:   true,
	})
	if err != nil {
		t.Fatalf("SubmitVideo: %v", err)
	}
	job, _ := store.GetByID(context.Background(), resp.JobID)
	opts := job.Render
	if opts.Resolution != "4k" || opts.LogoPath != logo || opts.MusicTrack != "song.mp3" || !opts.Music {
		t.Fatalf("unexpected render options %+v", opts)
	}
	if opts.Contrast != 1.3 || opts.Brightness != 0 || opts.Caption != "North gate" || !opts.ShowDate {
		t.Fatalf("unexpected render options %+v", opts)
	}
}

func TestSubmitPhotoAndList(t *testing.T) {
	ctrl, cfg, store, _ := newController(t)
	writeStills(t, cfg, 4)

	resp, err := ctrl.SubmitPhoto(context.Background(), api.PhotoRequest{Selection: selection()})
	if err != nil {
		t.Fatalf("SubmitPhoto: %v", err)
	}
	if resp.FilteredImageCount != 4 {
		t.Fatalf("unexpected count %d", resp.FilteredImageCount)
	}
	if _, err := ctrl.SubmitVideo(context.Background(), api.VideoRequest{Selection: selection()}); err != nil {
		t.Fatalf("SubmitVideo: %v", err)
	}

	photos, err := ctrl.ListJobs(context.Background(), queue.KindPhoto)
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 1 || photos[0].ID != resp.JobID || photos[0].PublicURL != nil {
		t.Fatalf("unexpected photo list %+v", photos)
	}

	// Mark the photo job ready to expose its public URL.
	output := filepath.Join(cfg.OutputDir("dev", "proj", "cam"), "photos_"+resp.JobID+".zip")
	testsupport.WriteFile(t, output, 8)
	starting := queue.StatusStarting
	if _, err := store.Patch(context.Background(), resp.JobID, queue.Patch{Status: &starting}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Patch(context.Background(), resp.JobID, queue.ReadyPatch(output, 8, 0, 1)); err != nil {
		t.Fatal(err)
	}
	photos, _ = ctrl.ListJobs(context.Background(), queue.KindPhoto)
	if photos[0].PublicURL == nil || *photos[0].PublicURL != "/media/dev/proj/cam/videos/photos_"+resp.JobID+".zip" {
		t.Fatalf("unexpected public url %v", photos[0].PublicURL)
	}

	cfg.Paths.PublicBaseURL = "https://cdn.example.com/files/"
	got, err := ctrl.GetJob(context.Background(), resp.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PublicURL == nil || !strings.HasPrefix(*got.PublicURL, "https://cdn.example.com/files/dev/") {
		t.Fatalf("unexpected public url %v", got.PublicURL)
	}
}

func TestDeleteQueuedJobRemovesInputs(t *testing.T) {
	ctrl, cfg, store, dispatcher := newController(t)
	writeStills(t, cfg, 3)
	logo := filepath.Join(cfg.Paths.MediaRoot, "uploads", "logo.png")
	testsupport.WriteFile(t, logo, 4)

	resp, err := ctrl.SubmitVideo(context.Background(), api.VideoRequest{Selection: selection(), LogoPath: logo})
	if err != nil {
		t.Fatal(err)
	}
	job, _ := store.GetByID(context.Background(), resp.JobID)

	if err := ctrl.DeleteJob(context.Background(), resp.JobID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	for _, p := range []string{job.ListPath, logo} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed", p)
		}
	}
	if len(dispatcher.cancelled) != 0 {
		t.Fatal("queued jobs are not cancelled")
	}
	if err := ctrl.DeleteJob(context.Background(), resp.JobID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteRunningAndReadyJobs(t *testing.T) {
	ctrl, cfg, store, dispatcher := newController(t)
	running := testsupport.NewJob(t, store, queue.KindVideo)
	if _, err := store.ClaimNext(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.DeleteJob(context.Background(), running.ID); err != nil {
		t.Fatalf("DeleteJob running: %v", err)
	}
	if len(dispatcher.cancelled) != 1 || dispatcher.cancelled[0] != running.ID {
		t.Fatalf("expected running job cancelled, got %v", dispatcher.cancelled)
	}

	ready := testsupport.NewJob(t, store, queue.KindPhoto)
	if _, err := store.ClaimNext(context.Background()); err != nil {
		t.Fatal(err)
	}
	artifact := filepath.Join(cfg.OutputDir("dev", "proj", "cam"), "photos_"+ready.ID+".zip")
	testsupport.WriteFile(t, artifact, 8)
	if _, err := store.Patch(context.Background(), ready.ID, queue.ReadyPatch(artifact, 8, 0, 1)); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.DeleteJob(context.Background(), ready.ID); err != nil {
		t.Fatalf("DeleteJob ready: %v", err)
	}
	if _, err := os.Stat(artifact); !os.IsNotExist(err) {
		t.Fatal("expected artifact removed")
	}
	if err := ctrl.DeleteJob(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// publishingEngine writes the artifact and then holds the job open until
// release is closed, ignoring cancellation.
type publishingEngine struct {
	dir       string
	published chan string
	release   chan struct{}
}

func (e *publishingEngine) Prepare(context.Context, *queue.Job) error { return nil }

func (e *publishingEngine) Execute(_ context.Context, job *queue.Job) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return err
	}
	output := filepath.Join(e.dir, "video_"+job.ID+".mp4")
	if err := os.WriteFile(output, make([]byte, 64), 0o644); err != nil {
		return err
	}
	job.OutputPath = output
	job.OutputSizeBytes = 64
	e.published <- output
	<-e.release
	return nil
}

func (e *publishingEngine) HealthCheck(context.Context) stage.Health { return stage.Healthy("render") }

func TestDeleteJobAfterPublishRemovesArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	engine := &publishingEngine{
		dir:       cfg.OutputDir("dev", "proj", "cam"),
		published: make(chan string, 1),
		release:   make(chan struct{}),
	}
	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureHandlers(workflow.HandlerSet{Video: engine, Photo: engine})
	ctrl := pipeline.NewController(cfg, store, mgr, logging.NewNop())

	job := testsupport.NewJob(t, store, queue.KindVideo)
	done := make(chan error, 1)
	go func() { done <- mgr.Drain(context.Background()) }()

	var output string
	select {
	case output = <-engine.published:
	case err := <-done:
		t.Fatalf("Drain returned before the artifact was published: %v", err)
	}
	if err := ctrl.DeleteJob(context.Background(), job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	close(engine.release)
	if err := <-done; err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("deleted job's artifact still on disk: %s", output)
	}
	if got, _ := store.GetByID(context.Background(), job.ID); got != nil {
		t.Fatalf("deleted job came back: %+v", got)
	}
}
