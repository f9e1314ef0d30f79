package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteStills creates count camera stills in dir named by capture time,
// starting at start and spaced by step. It returns the paths in order.
func WriteStills(t testing.TB, dir string, start time.Time, step time.Duration, count int) []string {
	t.Helper()

	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		name := start.Add(time.Duration(i)*step).Format("20060102150405") + ".jpg"
		path := filepath.Join(dir, name)
		WriteFile(t, path, 16)
		paths = append(paths, path)
	}
	return paths
}
