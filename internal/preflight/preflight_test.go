package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lapse/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckReadable(t *testing.T) {
	f := filepath.Join(t.TempDir(), "font.ttf")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckReadable("font", f); !r.Passed {
		t.Fatalf("expected readable file, got %s", r.Detail)
	}
	if r := CheckReadable("font", f+".missing"); r.Passed {
		t.Fatal("expected failure for missing file")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("space", dir, 1); !r.Passed {
		t.Fatalf("expected pass with tiny minimum, got %s", r.Detail)
	}
	if r := CheckFreeSpace("space", dir, ^uint64(0)); r.Passed {
		t.Fatal("expected failure with impossible minimum")
	}
	if r := CheckFreeSpace("space", filepath.Join(dir, "nope"), 1); r.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestRunAllReportsMissingDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Render.FontFile = filepath.Join(t.TempDir(), "absent.ttf")
	results := RunAll(context.Background(), cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 checks, got %d", len(results))
	}
	failed := Failed(results)
	// Nothing has created the directories yet.
	if len(failed) == 0 {
		t.Fatal("expected failures for missing directories")
	}

	for _, dir := range []string{cfg.Paths.MediaRoot, cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.MusicDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cfg.Render.FontFile = ""
	for _, r := range RunAll(context.Background(), cfg) {
		if r.Name == "Media root free space" {
			continue
		}
		if !r.Passed {
			t.Fatalf("check %s failed: %s", r.Name, r.Detail)
		}
	}
}
