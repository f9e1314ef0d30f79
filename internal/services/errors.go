package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptySelection reports that no stills matched the requested range.
	ErrEmptySelection = errors.New("empty selection")
	// ErrMissingListFile reports that a job's selection list is gone.
	ErrMissingListFile = errors.New("missing list file")
	// ErrTranscode reports an ffmpeg batch, concat or finishing failure.
	ErrTranscode = errors.New("transcode error")
	// ErrArchiveWrite reports a failure producing a photo archive.
	ErrArchiveWrite = errors.New("archive write error")

	ErrExternalTool = errors.New("external tool error")
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrTimeout      = errors.New("timeout")
	ErrTransient    = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for the first sentinel found in err's chain.
// It is used for log fields, metrics labels, and HTTP status mapping.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptySelection):
		return "empty_selection"
	case errors.Is(err, ErrMissingListFile):
		return "missing_list_file"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTranscode):
		return "transcode"
	case errors.Is(err, ErrArchiveWrite):
		return "archive_write"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
