package config

import (
	"compress/flate"
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.MediaRoot == "" {
		return errors.New("paths.media_root must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	if url := c.Paths.PublicBaseURL; url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("paths.public_base_url must start with http:// or https://, got %q", url)
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.BatchSize <= 0 {
		return errors.New("render.batch_size must be positive")
	}
	if c.Render.DefaultFPS <= 0 {
		return errors.New("render.default_fps must be positive")
	}
	if c.Render.CRF < 0 || c.Render.CRF > 51 {
		return fmt.Errorf("render.crf must be between 0 and 51, got %d", c.Render.CRF)
	}
	if c.Render.StageTimeout < 0 {
		return errors.New("render.stage_timeout must be zero or positive")
	}
	return nil
}

func (c *Config) validateArchive() error {
	level := c.Archive.CompressionLevel
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return fmt.Errorf("archive.compression_level must be between %d and %d, got %d", flate.HuffmanOnly, flate.BestCompression, level)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.JobTimeout < 0 {
		return errors.New("workflow.job_timeout must be zero or positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", topic)
	}
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}
