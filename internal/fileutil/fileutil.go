package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"lapse/internal/logging"
)

// PartialSuffix marks artifacts that are still being written.
const PartialSuffix = ".partial"

// PartialPath returns the in-progress path for final.
func PartialPath(final string) string {
	return final + PartialSuffix
}

// Publish moves a completed partial file into place, replacing any previous
// artifact at final.
func Publish(partial, final string) error {
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("ensure artifact dir: %w", err)
	}
	if err := os.Rename(partial, final); err != nil {
		return fmt.Errorf("publish %s: %w", filepath.Base(final), err)
	}
	return nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// FileSize returns the size of path, or zero when it cannot be stat'ed.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Scratch tracks intermediate files produced during a job so they can be
// removed on every exit path.
type Scratch struct {
	mu     sync.Mutex
	paths  []string
	logger *slog.Logger
}

// NewScratch returns an empty tracker.
func NewScratch(logger *slog.Logger) *Scratch {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scratch{logger: logger}
}

// Track registers paths for later cleanup.
func (s *Scratch) Track(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		if p != "" {
			s.paths = append(s.paths, p)
		}
	}
}

// Release stops tracking path so Cleanup leaves it in place.
func (s *Scratch) Release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.paths[:0]
	for _, p := range s.paths {
		if p != path {
			kept = append(kept, p)
		}
	}
	s.paths = kept
}

// Cleanup removes every tracked path and returns how many were deleted.
// Failures are logged, not returned.
func (s *Scratch) Cleanup() int {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			s.logger.Warn("scratch cleanup failed",
				logging.String("path", p),
				logging.Error(err),
				logging.String(logging.FieldEventType, "scratch_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the file manually"),
			)
		}
	}
	return removed
}
