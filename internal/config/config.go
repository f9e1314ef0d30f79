package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPrefix is prepended to every environment override variable.
const EnvPrefix = "LAPSE_"

// Paths contains directory and bind address configuration.
type Paths struct {
	MediaRoot     string `toml:"media_root" env:"MEDIA_ROOT"`
	MusicDir      string `toml:"music_dir" env:"MUSIC_DIR"`
	StateDir      string `toml:"state_dir" env:"STATE_DIR"`
	LogDir        string `toml:"log_dir" env:"LOG_DIR"`
	APIBind       string `toml:"api_bind" env:"API_BIND"`
	APIToken      string `toml:"api_token" env:"API_TOKEN"`
	PublicBaseURL string `toml:"public_base_url" env:"PUBLIC_BASE_URL"`
}

// Render contains configuration for timelapse encoding.
type Render struct {
	BatchSize     int    `toml:"batch_size" env:"RENDER_BATCH_SIZE"`
	DefaultFPS    int    `toml:"default_fps" env:"RENDER_DEFAULT_FPS"`
	CRF           int    `toml:"crf" env:"RENDER_CRF"`
	Preset        string `toml:"preset" env:"RENDER_PRESET"`
	StageTimeout  int    `toml:"stage_timeout" env:"RENDER_STAGE_TIMEOUT"`
	FontFile      string `toml:"font_file" env:"RENDER_FONT_FILE"`
	FFmpegBinary  string `toml:"ffmpeg_binary" env:"FFMPEG_BINARY"`
	FFprobeBinary string `toml:"ffprobe_binary" env:"FFPROBE_BINARY"`
}

// Archive contains configuration for photo archive packaging.
type Archive struct {
	CompressionLevel int `toml:"compression_level" env:"ARCHIVE_COMPRESSION_LEVEL"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval" env:"QUEUE_POLL_INTERVAL"`
	ErrorRetryInterval int `toml:"error_retry_interval" env:"ERROR_RETRY_INTERVAL"`
	HeartbeatInterval  int `toml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout" env:"HEARTBEAT_TIMEOUT"`
	JobTimeout         int `toml:"job_timeout" env:"JOB_TIMEOUT"`
}

// Notifications contains ntfy delivery settings. An empty topic disables
// notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout" env:"NTFY_REQUEST_TIMEOUT"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" env:"LOG_FORMAT"`
	Level         string `toml:"level" env:"LOG_LEVEL"`
	RetentionDays int    `toml:"retention_days" env:"LOG_RETENTION_DAYS"`
}

// Config encapsulates all configuration values for lapse.
//
// Configuration sections by subsystem:
//   - Paths: media tree, state and log directories, API bind address
//   - Render: batch size, frame rate and encoder settings for timelapses
//   - Archive: photo archive compression
//   - Workflow: daemon polling intervals and timeouts
//   - Notifications: ntfy topic for job results
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Render        Render        `toml:"render"`
	Archive       Archive       `toml:"archive"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lapse/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// overrides (LAPSE_*) are applied after the file is decoded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, "", false, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lapse.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// MediaRoot is not created: it is populated by camera uploads.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite job database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "lapsed.lock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "lapsed.pid")
}

// CameraDir returns the directory holding the stills for a camera.
func (c *Config) CameraDir(developerID, projectID, cameraID string) string {
	return filepath.Join(c.Paths.MediaRoot, developerID, projectID, cameraID)
}

// OutputDir returns the directory for a camera's job artifacts and working
// files.
func (c *Config) OutputDir(developerID, projectID, cameraID string) string {
	return filepath.Join(c.CameraDir(developerID, projectID, cameraID), "videos")
}

// FFmpegBinary returns the ffmpeg executable used for encoding.
func (c *Config) FFmpegBinary() string {
	if b := strings.TrimSpace(c.Render.FFmpegBinary); b != "" {
		return b
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if b := strings.TrimSpace(c.Render.FFprobeBinary); b != "" {
		return b
	}
	return defaultFFprobeBinary
}

// StageTimeout bounds a single external tool invocation.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Render.StageTimeout) * time.Second
}

// JobTimeout bounds one job from claim to terminal state. Zero disables it.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Workflow.JobTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
