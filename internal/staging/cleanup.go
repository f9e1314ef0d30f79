package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"lapse/internal/logging"
)

const partialSuffix = ".partial"

// CleanResult contains the outcome of an orphan sweep.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// WorkDirs returns every <developer>/<project>/<camera>/videos directory
// under mediaRoot.
func WorkDirs(mediaRoot string) ([]string, error) {
	mediaRoot = strings.TrimSpace(mediaRoot)
	if mediaRoot == "" {
		return nil, nil
	}
	return filepath.Glob(filepath.Join(mediaRoot, "*", "*", "*", "videos"))
}

// IsArtifact reports whether name is a published job artifact:
// video_<id>.mp4 or photos_<id>.zip.
func IsArtifact(name string) bool {
	for _, form := range [][2]string{{"video_", ".mp4"}, {"photos_", ".zip"}} {
		if strings.HasPrefix(name, form[0]) && strings.HasSuffix(name, form[1]) &&
			len(name) > len(form[0])+len(form[1]) {
			return true
		}
	}
	return false
}

// JobIDFromName returns the job that owns a working file, or "" when the
// name is not a working file. Published artifacts are not working files.
func JobIDFromName(name string) string {
	if strings.HasSuffix(name, partialSuffix) {
		base := strings.TrimSuffix(name, partialSuffix)
		for _, prefix := range []string{"video_", "photos_"} {
			if strings.HasPrefix(base, prefix) {
				return strings.TrimSuffix(strings.TrimPrefix(base, prefix), filepath.Ext(base))
			}
		}
		return ""
	}
	if strings.HasPrefix(name, "list_") && strings.HasSuffix(name, ".txt") {
		return strings.TrimSuffix(strings.TrimPrefix(name, "list_"), ".txt")
	}
	for _, marker := range []string{"_batch_", "_concat.txt", "_joined.mp4"} {
		if idx := strings.Index(name, marker); idx > 0 {
			return name[:idx]
		}
	}
	return ""
}

// CleanOrphaned removes working files whose job is not in active. Queued
// jobs must be listed in active or their selection lists will be lost.
func CleanOrphaned(ctx context.Context, mediaRoot string, active map[string]struct{}, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	dirs, err := WorkDirs(mediaRoot)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: mediaRoot, Error: err})
		return result
	}

	for _, dir := range dirs {
		if ctx.Err() != nil {
			return result
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			jobID := JobIDFromName(entry.Name())
			if jobID == "" {
				continue
			}
			if _, ok := active[jobID]; ok {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				if logger != nil {
					logger.Warn("failed to remove orphaned working file",
						logging.String("path", path),
						logging.Error(err),
						logging.String(logging.FieldEventType, "staging_cleanup_failed"),
						logging.String(logging.FieldErrorHint, "check media_root permissions"),
						logging.String(logging.FieldImpact, "disk space not reclaimed"),
					)
				}
				continue
			}
			result.Removed = append(result.Removed, path)
			if logger != nil {
				logger.Info("removed orphaned working file",
					logging.String("path", path),
					logging.String(logging.FieldJobID, jobID),
					logging.String(logging.FieldEventType, "staging_cleanup"),
				)
			}
		}
	}

	return result
}
