package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lapse/internal/config"
	"lapse/internal/logging"
	"lapse/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "info"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("job queued", logging.String(logging.FieldJobID, "abc"))

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "lapse.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", data, err)
	}
	if record["msg"] != "job queued" || record["job_id"] != "abc" || record["level"] != "info" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestConsoleLoggerFormatsSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "0123456789abcdef01234567")
	ctx = services.WithJobKind(ctx, "video")
	ctx = services.WithStage(ctx, "render")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "workflow")).Info("batch encoded",
		logging.Int("batch", 2),
		logging.String("note", "two words"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INFO workflow: [video 01234567 render] batch encoded", "batch=2", `note="two words"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestFanoutRespectsLevel(t *testing.T) {
	dir := t.TempDir()
	consolePath := filepath.Join(dir, "console.log")
	jsonPath := filepath.Join(dir, "json.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "warn",
		OutputPaths: []string{consolePath},
		JSONPaths:   []string{jsonPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logging.WarnWithContext(logger, "disk nearly full", "disk_pressure")

	for _, path := range []string{consolePath, jsonPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		text := string(data)
		if strings.Contains(text, "hidden") {
			t.Fatalf("info line leaked into %s: %q", path, text)
		}
		if !strings.Contains(text, "disk nearly full") || !strings.Contains(text, "disk_pressure") {
			t.Fatalf("expected warning in %s, got %q", path, text)
		}
	}
}

func TestTeeLoggerDuplicatesRecords(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.log")
	base, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{basePath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	extraPath := filepath.Join(dir, "run.log")
	handler, closer, err := logging.NewJSONFileHandler(extraPath, "info")
	if err != nil {
		t.Fatalf("NewJSONFileHandler returned error: %v", err)
	}
	defer closer.Close()

	logging.TeeLogger(base, handler).Error("boom", logging.Error(errors.New("bad")))

	for _, path := range []string{basePath, extraPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if !strings.Contains(string(data), `"error":"bad"`) {
			t.Fatalf("expected error record in %s, got %q", path, data)
		}
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "lapsed-old.log")
	freshPath := filepath.Join(dir, "lapsed-new.log")
	keepPath := filepath.Join(dir, "lapsed-current.log")
	for _, path := range []string{oldPath, freshPath, keepPath} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{oldPath, keepPath} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "lapsed-*.log",
		Exclude: []string{keepPath},
	})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{freshPath, keepPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}

func TestWarnWithContextFillsMissingFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "probe failed", "probe_fallback",
		logging.String(logging.FieldErrorHint, "install ffprobe"),
		logging.Camera("dev", "proj", "cam"),
	)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	want := map[string]string{
		logging.FieldEventType: "probe_fallback",
		logging.FieldErrorHint: "install ffprobe",
		logging.FieldImpact:    "processing continues",
		"camera":               "dev/proj/cam",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("%s = %v, want %q (record %v)", key, record[key], value, record)
		}
	}
}
