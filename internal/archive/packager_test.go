package archive

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"lapse/internal/config"
	"lapse/internal/logging"
	"lapse/internal/queue"
	"lapse/internal/selector"
	"lapse/internal/services"
	"lapse/internal/testsupport"
)

func newPhotoJob(t *testing.T, cfg *config.Config, count int) (*queue.Job, []string) {
	t.Helper()
	camera := cfg.CameraDir("dev", "proj", "cam")
	stills := testsupport.WriteStills(t, camera, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), time.Minute, count)
	manifest, err := selector.Select(camera, selector.Range{DateFrom: "20240101", DateTo: "20240101", HourFrom: "08", HourTo: "09"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	job := &queue.Job{
		ID:          "fedcba9876543210fedcba98",
		Kind:        queue.KindPhoto,
		Status:      queue.StatusStarting,
		DeveloperID: "dev",
		ProjectID:   "proj",
		CameraID:    "cam",
		ImageCount:  manifest.Len(),
		ListPath:    filepath.Join(cfg.OutputDir("dev", "proj", "cam"), "list_fedcba9876543210fedcba98.txt"),
	}
	if err := selector.WriteList(job.ListPath, manifest); err != nil {
		t.Fatalf("WriteList: %v", err)
	}
	return job, stills
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer r.Close()
	var names []string
	for _, f := range r.File {
		if f.Method != zip.Deflate {
			t.Fatalf("entry %s not deflated", f.Name)
		}
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestExecuteSkipsDeletedSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job, stills := newPhotoJob(t, cfg, 4)
	// A still removed after selection must not fail the archive.
	if err := os.Remove(stills[1]); err != nil {
		t.Fatal(err)
	}

	packager := NewPackager(cfg, logging.NewNop())
	if err := packager.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := packager.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []string{filepath.Base(stills[0]), filepath.Base(stills[2]), filepath.Base(stills[3])}
	got := zipEntries(t, job.OutputPath)
	if len(got) != len(want) {
		t.Fatalf("entries %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries %v want %v", got, want)
		}
	}
	if job.ImageCount != 3 || job.OutputSizeBytes <= 0 {
		t.Fatalf("unexpected job outputs %+v", job)
	}
	if filepath.Base(job.OutputPath) != ArtifactName(job.ID) {
		t.Fatalf("unexpected output %q", job.OutputPath)
	}
	if _, err := os.Stat(job.ListPath); !os.IsNotExist(err) {
		t.Fatal("selection list should be consumed")
	}
	if _, err := os.Stat(job.OutputPath + ".partial"); !os.IsNotExist(err) {
		t.Fatal("partial archive should be gone")
	}
}

func TestExecuteCancelledRemovesPartial(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job, _ := newPhotoJob(t, cfg, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPackager(cfg, logging.NewNop()).Execute(ctx, job)
	if !errors.Is(err, services.ErrArchiveWrite) {
		t.Fatalf("expected ErrArchiveWrite, got %v", err)
	}
	entries, readErr := os.ReadDir(cfg.OutputDir("dev", "proj", "cam"))
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty output dir, found %d entries", len(entries))
	}
}

func TestExecuteMissingList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := &queue.Job{ID: "x", Kind: queue.KindPhoto, DeveloperID: "dev", ProjectID: "proj", CameraID: "cam",
		ListPath: filepath.Join(t.TempDir(), "list_x.txt")}
	err := NewPackager(cfg, logging.NewNop()).Execute(context.Background(), job)
	if !errors.Is(err, services.ErrMissingListFile) {
		t.Fatalf("expected ErrMissingListFile, got %v", err)
	}
}

func TestPrepareRejectsVideoJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	err := NewPackager(cfg, logging.NewNop()).Prepare(context.Background(), &queue.Job{Kind: queue.KindVideo, ListPath: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
