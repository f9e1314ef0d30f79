package deps

import (
	"os"
	"path/filepath"
	"testing"

	"lapse/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Optional", Command: "also-not-present", Optional: true},
		{Name: "Empty"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[3].Detail != "command not configured" {
		t.Fatalf("unexpected detail for empty command: %q", results[3].Detail)
	}

	missing := MissingRequired(results)
	if len(missing) != 2 || missing[0] != "Missing" || missing[1] != "Empty" {
		t.Fatalf("unexpected missing list %v", missing)
	}
}

func TestRequirementsUseConfiguredBinaries(t *testing.T) {
	cfg := config.Default()
	cfg.Render.FFmpegBinary = "/opt/ffmpeg/bin/ffmpeg"
	reqs := Requirements(&cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "/opt/ffmpeg/bin/ffmpeg" || reqs[1].Command != "ffprobe" {
		t.Fatalf("unexpected commands %+v", reqs)
	}
	if reqs[0].Optional || !reqs[1].Optional {
		t.Fatalf("expected ffmpeg required and ffprobe optional, got %+v", reqs)
	}
}
