package preflight

import (
	"context"
	"strings"

	"lapse/internal/config"
)

// minFreeBytes is the free space below which the media root check fails.
const minFreeBytes = 2 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for cfg.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Media root", cfg.Paths.MediaRoot),
		CheckFreeSpace("Media root free space", cfg.Paths.MediaRoot, minFreeBytes),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	// Music is read-only and only needed for videos with a soundtrack.
	if strings.TrimSpace(cfg.Paths.MusicDir) != "" {
		results = append(results, CheckReadable("Music library", cfg.Paths.MusicDir))
	}
	if font := strings.TrimSpace(cfg.Render.FontFile); font != "" {
		results = append(results, CheckReadable("Caption font", font))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
