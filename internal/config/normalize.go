package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRender()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"paths.media_root", &c.Paths.MediaRoot},
		{"paths.music_dir", &c.Paths.MusicDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Paths.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Paths.PublicBaseURL), "/")
	return nil
}

func (c *Config) normalizeRender() {
	c.Render.Preset = strings.TrimSpace(c.Render.Preset)
	if c.Render.Preset == "" {
		c.Render.Preset = defaultPreset
	}
	if font := strings.TrimSpace(c.Render.FontFile); font != "" {
		if expanded, err := expandPath(font); err == nil {
			c.Render.FontFile = expanded
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
