package selector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"lapse/internal/services"
)

// TimestampLayout is the capture time encoding used in still filenames.
const TimestampLayout = "20060102150405"

var frameNamePattern = regexp.MustCompile(`(?i)^(\d{14})\.jpe?g$`)

// Frame is one selected still.
type Frame struct {
	Path     string
	Captured time.Time
}

// Name returns the frame's base filename.
func (f Frame) Name() string { return filepath.Base(f.Path) }

// Manifest is the ordered set of stills selected for one job. Frames are
// sorted ascending by capture time.
type Manifest struct {
	Frames []Frame
}

// Len reports the number of frames.
func (m Manifest) Len() int { return len(m.Frames) }

// Paths returns the frame paths in manifest order.
func (m Manifest) Paths() []string {
	out := make([]string, len(m.Frames))
	for i, f := range m.Frames {
		out[i] = f.Path
	}
	return out
}

// Batches partitions the manifest into consecutive slices of at most size
// frames. Empty slices are never returned.
func (m Manifest) Batches(size int) [][]Frame {
	if size <= 0 || len(m.Frames) == 0 {
		return nil
	}
	out := make([][]Frame, 0, (len(m.Frames)+size-1)/size)
	for start := 0; start < len(m.Frames); start += size {
		end := min(start+size, len(m.Frames))
		out = append(out, m.Frames[start:end])
	}
	return out
}

// Range bounds a selection. Dates are YYYYMMDD, hours HH, both inclusive.
type Range struct {
	DateFrom string
	DateTo   string
	HourFrom string
	HourTo   string
}

// Normalize converts accepted input forms (YYYY-MM-DD dates, single digit
// hours) to the fixed-width keys used for comparison.
func (r Range) Normalize() (Range, error) {
	var (
		out Range
		err error
	)
	if out.DateFrom, err = normalizeDate(r.DateFrom); err != nil {
		return Range{}, services.Wrap(services.ErrValidation, "selector", "date_from", err.Error(), nil)
	}
	if out.DateTo, err = normalizeDate(r.DateTo); err != nil {
		return Range{}, services.Wrap(services.ErrValidation, "selector", "date_to", err.Error(), nil)
	}
	if out.HourFrom, err = normalizeHour(r.HourFrom); err != nil {
		return Range{}, services.Wrap(services.ErrValidation, "selector", "hour_from", err.Error(), nil)
	}
	if out.HourTo, err = normalizeHour(r.HourTo); err != nil {
		return Range{}, services.Wrap(services.ErrValidation, "selector", "hour_to", err.Error(), nil)
	}
	if out.DateFrom > out.DateTo {
		return Range{}, services.Wrap(services.ErrValidation, "selector", "range",
			fmt.Sprintf("date_from %s is after date_to %s", out.DateFrom, out.DateTo), nil)
	}
	if out.HourFrom > out.HourTo {
		return Range{}, services.Wrap(services.ErrValidation, "selector", "range",
			fmt.Sprintf("hour_from %s is after hour_to %s", out.HourFrom, out.HourTo), nil)
	}
	return out, nil
}

// Contains reports whether a capture timestamp key (YYYYMMDDHHMMSS) falls in the range.
func (r Range) Contains(stamp string) bool {
	if len(stamp) != len(TimestampLayout) {
		return false
	}
	date, hour := stamp[:8], stamp[8:10]
	return date >= r.DateFrom && date <= r.DateTo && hour >= r.HourFrom && hour <= r.HourTo
}

// Select lists cameraDir and returns the stills whose filename timestamp lies
// inside r. A missing directory or an empty result yields ErrEmptySelection.
func Select(cameraDir string, r Range) (Manifest, error) {
	rng, err := r.Normalize()
	if err != nil {
		return Manifest{}, err
	}

	entries, err := os.ReadDir(cameraDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, services.Wrap(services.ErrEmptySelection, "selector", "list", "camera directory not found: "+cameraDir, nil)
		}
		return Manifest{}, services.Wrap(services.ErrExternalTool, "selector", "list", cameraDir, err)
	}

	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		captured, ok := ParseFrameName(entry.Name())
		if !ok {
			continue
		}
		if !rng.Contains(captured.Format(TimestampLayout)) {
			continue
		}
		frames = append(frames, Frame{Path: filepath.Join(cameraDir, entry.Name()), Captured: captured})
	}
	if len(frames) == 0 {
		return Manifest{}, services.Wrap(services.ErrEmptySelection, "selector", "filter",
			fmt.Sprintf("no stills in %s between %s..%s hours %s..%s", cameraDir, rng.DateFrom, rng.DateTo, rng.HourFrom, rng.HourTo), nil)
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].Name() < frames[j].Name() })
	return Manifest{Frames: frames}, nil
}

// ParseFrameName decodes the capture time from a still filename such as
// 20240101083000.jpg. Names that do not encode a real timestamp are rejected.
func ParseFrameName(name string) (time.Time, bool) {
	match := frameNamePattern.FindStringSubmatch(name)
	if match == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(TimestampLayout, match[1])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func normalizeDate(value string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "-", "")
	if trimmed == "" {
		return "", errors.New("date is required")
	}
	if _, err := time.Parse("20060102", trimmed); err != nil {
		return "", fmt.Errorf("invalid date %q", value)
	}
	return trimmed, nil
}

func normalizeHour(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", errors.New("hour is required")
	}
	hour, err := strconv.Atoi(trimmed)
	if err != nil || hour < 0 || hour > 23 || len(trimmed) > 2 {
		return "", fmt.Errorf("invalid hour %q", value)
	}
	return fmt.Sprintf("%02d", hour), nil
}
