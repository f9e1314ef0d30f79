package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"lapse/internal/testsupport"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := Run(ctx, cfg, Options{LogLevel: "error", Version: "test"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatal("pid file should be removed on exit")
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, "lapse.log")); err != nil {
		t.Fatalf("expected current log pointer: %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lapsed.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file %q", data)
	}
}

func TestEnsureCurrentLogPointerReplaces(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "lapse-1.log")
	second := filepath.Join(dir, "lapse-2.log")
	testsupport.WriteFile(t, first, 1)
	testsupport.WriteFile(t, second, 2)

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatal(err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(dir, "lapse.log"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 2 {
		t.Fatalf("pointer should target the newest log, size %d", info.Size())
	}
}
