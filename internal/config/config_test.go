package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lapse/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "lapse", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "lapse", "media"); cfg.Paths.MediaRoot != want {
		t.Fatalf("unexpected media root: got %q want %q", cfg.Paths.MediaRoot, want)
	}
	if cfg.Render.BatchSize != 200 {
		t.Fatalf("expected batch size 200, got %d", cfg.Render.BatchSize)
	}
	if cfg.Render.DefaultFPS != 25 {
		t.Fatalf("expected default fps 25, got %d", cfg.Render.DefaultFPS)
	}
	if cfg.Render.Preset != "slow" {
		t.Fatalf("expected slow preset, got %q", cfg.Render.Preset)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "lapse.toml")

	cfg := config.Default()
	cfg.Paths.MediaRoot = filepath.Join(dir, "media")
	cfg.Paths.PublicBaseURL = "https://media.example.com/"
	cfg.Render.BatchSize = 50
	cfg.Logging.Format = "JSON"

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %q to be loaded, got %q (exists=%v)", path, resolved, exists)
	}
	if loaded.Render.BatchSize != 50 {
		t.Fatalf("expected batch size 50, got %d", loaded.Render.BatchSize)
	}
	if loaded.Logging.Format != "json" {
		t.Fatalf("expected normalized json format, got %q", loaded.Logging.Format)
	}
	if loaded.Paths.PublicBaseURL != "https://media.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", loaded.Paths.PublicBaseURL)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	mediaRoot := t.TempDir()
	t.Setenv("LAPSE_MEDIA_ROOT", mediaRoot)
	t.Setenv("LAPSE_RENDER_CRF", "18")
	t.Setenv("LAPSE_API_TOKEN", "secret")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.MediaRoot != mediaRoot {
		t.Fatalf("expected media root override, got %q", cfg.Paths.MediaRoot)
	}
	if cfg.Render.CRF != 18 {
		t.Fatalf("expected crf override 18, got %d", cfg.Render.CRF)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected api token override, got %q", cfg.Paths.APIToken)
	}
	if cfg.Render.BatchSize != 200 {
		t.Fatalf("expected untouched batch size, got %d", cfg.Render.BatchSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"batch size", func(c *config.Config) { c.Render.BatchSize = 0 }, "render.batch_size"},
		{"crf", func(c *config.Config) { c.Render.CRF = 60 }, "render.crf"},
		{"compression", func(c *config.Config) { c.Archive.CompressionLevel = 12 }, "archive.compression_level"},
		{"heartbeat", func(c *config.Config) { c.Workflow.HeartbeatTimeout = 1 }, "workflow.heartbeat_timeout"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"public url", func(c *config.Config) { c.Paths.PublicBaseURL = "ftp://host" }, "paths.public_base_url"},
		{"ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" }, "notifications.ntfy_topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.MediaRoot = "/srv/media"
			cfg.Paths.StateDir = "/srv/state"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Archive.CompressionLevel != 9 {
		t.Fatalf("expected compression level 9, got %d", cfg.Archive.CompressionLevel)
	}
}

func TestCameraDirJoinsSegments(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.MediaRoot = "/srv/media"
	if got := cfg.CameraDir("dev", "proj", "cam"); got != filepath.Join("/srv/media", "dev", "proj", "cam") {
		t.Fatalf("unexpected camera dir %q", got)
	}
}
