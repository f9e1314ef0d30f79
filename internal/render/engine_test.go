package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lapse/internal/config"
	"lapse/internal/logging"
	"lapse/internal/media/ffprobe"
	"lapse/internal/queue"
	"lapse/internal/selector"
	"lapse/internal/services"
	"lapse/internal/testsupport"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	labels []string
	failOn int
	err    error
}

func (f *fakeRunner) Run(_ context.Context, label string, args []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.labels = append(f.labels, label)
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return f.err
	}
	out := args[len(args)-1]
	return os.WriteFile(out, []byte("media"), 0o644)
}

func stubProbe(t *testing.T, result ffprobe.Result, err error) {
	t.Helper()
	previous := probeArtifact
	probeArtifact = func(context.Context, string, string) (ffprobe.Result, error) {
		return result, err
	}
	t.Cleanup(func() { probeArtifact = previous })
}

func newVideoJob(t *testing.T, cfg *config.Config, count int, opts queue.RenderOptions) *queue.Job {
	t.Helper()
	camera := cfg.CameraDir("dev", "proj", "cam")
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	testsupport.WriteStills(t, camera, start, 5*time.Second, count)
	manifest, err := selector.Select(camera, selector.Range{DateFrom: "20240101", DateTo: "20240101", HourFrom: "08", HourTo: "09"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	job := &queue.Job{
		ID:          "0123456789abcdef01234567",
		Kind:        queue.KindVideo,
		Status:      queue.StatusStarting,
		DeveloperID: "dev",
		ProjectID:   "proj",
		CameraID:    "cam",
		ImageCount:  manifest.Len(),
		Render:      opts,
	}
	job.FrameRate = FrameRate(manifest.Len(), opts.DurationSeconds, cfg.Render.DefaultFPS)
	job.ListPath = filepath.Join(cfg.OutputDir("dev", "proj", "cam"), "list_"+job.ID+".txt")
	if err := selector.WriteList(job.ListPath, manifest); err != nil {
		t.Fatalf("WriteList: %v", err)
	}
	return job
}

func remainingFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFrameRate(t *testing.T) {
	tests := []struct {
		count, duration, fallback, want int
	}{
		{450, 18, 25, 25},
		{451, 18, 25, 26},
		{10, 0, 25, 25},
		{10, -3, 30, 30},
		{1, 60, 25, 1},
		{0, 10, 0, DefaultFrameRate},
	}
	for _, tt := range tests {
		if got := FrameRate(tt.count, tt.duration, tt.fallback); got != tt.want {
			t.Fatalf("FrameRate(%d,%d,%d)=%d want %d", tt.count, tt.duration, tt.fallback, got, tt.want)
		}
	}
}

func TestResolutionFor(t *testing.T) {
	tests := map[string]Dimensions{
		"720":     {1280, 720},
		"HD":      {1920, 1080},
		"4k":      {3840, 2160},
		"bogus":   {1920, 1080},
		"":        {1920, 1080},
		" 720p  ": {1280, 720},
	}
	for class, want := range tests {
		if got := ResolutionFor(class); got != want {
			t.Fatalf("ResolutionFor(%q)=%v want %v", class, got, want)
		}
	}
}

func TestExecuteThreeBatchesAt25FPS(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(200))
	stubProbe(t, ffprobe.Result{Format: ffprobe.Format{Duration: "18.0", Size: "4096"}}, nil)
	opts := queue.DefaultRenderOptions()
	opts.DurationSeconds = 18
	job := newVideoJob(t, cfg, 450, opts)
	if job.FrameRate != 25 {
		t.Fatalf("expected fps 25, got %d", job.FrameRate)
	}

	runner := &fakeRunner{}
	engine := NewEngine(cfg, logging.NewNop(), runner)
	if err := engine.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := engine.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wantLabels := []string{"batch 1", "batch 2", "batch 3", "concat", "finish"}
	if strings.Join(runner.labels, ",") != strings.Join(wantLabels, ",") {
		t.Fatalf("unexpected invocations %v", runner.labels)
	}
	for i, args := range runner.calls[:3] {
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "-r 25") || !strings.Contains(joined, "-preset slow") || !strings.Contains(joined, "-crf 23") {
			t.Fatalf("batch %d missing encoder args: %s", i+1, joined)
		}
	}
	if !strings.Contains(strings.Join(runner.calls[3], " "), "-c copy") {
		t.Fatalf("concat should stream copy: %v", runner.calls[3])
	}
	if !strings.Contains(strings.Join(runner.calls[4], " "), "eq=contrast=1:brightness=0:saturation=1") {
		t.Fatalf("final pass missing grade: %v", runner.calls[4])
	}

	outDir := cfg.OutputDir("dev", "proj", "cam")
	want := ArtifactName(job.ID)
	if files := remainingFiles(t, outDir); len(files) != 1 || files[0] != want {
		t.Fatalf("expected only %s, got %v", want, files)
	}
	if job.OutputPath != filepath.Join(outDir, want) {
		t.Fatalf("unexpected output path %q", job.OutputPath)
	}
	if job.OutputDurationSeconds != 18 || job.OutputSizeBytes != 4096 {
		t.Fatalf("unexpected output metadata %+v", job)
	}
	if job.ElapsedSeconds <= 0 {
		t.Fatal("expected elapsed seconds recorded")
	}
}

func TestExecuteBatchFailureCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(10))
	stubProbe(t, ffprobe.Result{}, errors.New("unused"))

	inputs := t.TempDir()
	logo := filepath.Join(inputs, "logo.png")
	watermark := filepath.Join(inputs, "wm.png")
	testsupport.WriteFile(t, logo, 8)
	testsupport.WriteFile(t, watermark, 8)

	opts := queue.DefaultRenderOptions()
	opts.LogoPath = logo
	opts.WatermarkPath = watermark
	job := newVideoJob(t, cfg, 25, opts)

	runner := &fakeRunner{failOn: 2, err: services.Wrap(services.ErrExternalTool, "ffmpeg", "batch 2", "boom", nil)}
	engine := NewEngine(cfg, logging.NewNop(), runner)
	err := engine.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, services.ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected abort after failing batch, got %d calls", len(runner.calls))
	}
	if files := remainingFiles(t, cfg.OutputDir("dev", "proj", "cam")); len(files) != 0 {
		t.Fatalf("expected no leftovers, got %v", files)
	}
	for _, p := range []string{logo, watermark} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected consumed input %s removed", p)
		}
	}
	if job.OutputPath != "" {
		t.Fatal("failed job must not carry an output path")
	}
}

func TestExecuteMissingListFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := &queue.Job{ID: "abc", Kind: queue.KindVideo, DeveloperID: "dev", ProjectID: "proj", CameraID: "cam",
		ListPath: filepath.Join(t.TempDir(), "missing.txt"), Render: queue.DefaultRenderOptions()}
	runner := &fakeRunner{}
	err := NewEngine(cfg, logging.NewNop(), runner).Execute(context.Background(), job)
	if !errors.Is(err, services.ErrMissingListFile) {
		t.Fatalf("expected ErrMissingListFile, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("ffmpeg must not run without a selection list")
	}
}

func TestExecuteWithMusicAndProbeFallback(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubProbe(t, ffprobe.Result{}, errors.New("ffprobe missing"))
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MusicDir, "track.mp3"), 32)

	opts := queue.DefaultRenderOptions()
	opts.Music = true
	opts.MusicTrack = "track.mp3"
	opts.DurationSeconds = 2
	job := newVideoJob(t, cfg, 50, opts)

	runner := &fakeRunner{}
	if err := NewEngine(cfg, logging.NewNop(), runner).Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	final := strings.Join(runner.calls[len(runner.calls)-1], " ")
	if !strings.Contains(final, "-shortest") || !strings.Contains(final, "track.mp3") {
		t.Fatalf("final pass missing music args: %s", final)
	}
	if job.OutputDurationSeconds != 2 {
		t.Fatalf("expected fallback duration 2, got %v", job.OutputDurationSeconds)
	}
	if job.OutputSizeBytes != int64(len("media")) {
		t.Fatalf("expected stat size fallback, got %d", job.OutputSizeBytes)
	}
}

func TestExecuteMissingMusicTrackFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	opts := queue.DefaultRenderOptions()
	opts.Music = true
	opts.MusicTrack = "absent.mp3"
	job := newVideoJob(t, cfg, 5, opts)
	runner := &fakeRunner{}
	err := NewEngine(cfg, logging.NewNop(), runner).Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, statErr := os.Stat(job.ListPath); !os.IsNotExist(statErr) {
		t.Fatal("selection list must be consumed on failure")
	}
}

func TestPrepareRejectsPhotoJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	err := NewEngine(cfg, logging.NewNop(), &fakeRunner{}).Prepare(context.Background(), &queue.Job{Kind: queue.KindPhoto, ListPath: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
