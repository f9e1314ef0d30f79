package selector

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lapse/internal/services"
)

// WriteList persists the manifest as one absolute path per line.
func WriteList(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create list directory: %w", err)
	}
	var b strings.Builder
	for _, f := range m.Frames {
		b.WriteString(f.Path)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write selection list: %w", err)
	}
	return nil
}

// ReadList loads a manifest written by WriteList. A missing file is reported
// as ErrMissingListFile.
func ReadList(path string) (Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, services.Wrap(services.ErrMissingListFile, "selector", "read list", path, nil)
		}
		return Manifest{}, fmt.Errorf("open selection list: %w", err)
	}
	defer file.Close()

	var frames []Frame
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		captured, ok := ParseFrameName(filepath.Base(line))
		if !ok {
			return Manifest{}, services.Wrap(services.ErrValidation, "selector", "read list",
				fmt.Sprintf("unexpected entry %q in %s", line, path), nil)
		}
		frames = append(frames, Frame{Path: line, Captured: captured})
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, fmt.Errorf("read selection list: %w", err)
	}
	if len(frames) == 0 {
		return Manifest{}, services.Wrap(services.ErrEmptySelection, "selector", "read list", path+" is empty", nil)
	}
	return Manifest{Frames: frames}, nil
}
