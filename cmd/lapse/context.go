package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"lapse/internal/client"
	"lapse/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	outputFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag, outputFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		outputFlag: outputFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// client targets --api when given, otherwise the configured bind address.
func (c *commandContext) client() (*client.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if c.apiFlag != nil {
		if api := strings.TrimSpace(*c.apiFlag); api != "" {
			return client.New(client.BaseURL(api), cfg.Paths.APIToken), nil
		}
	}
	return client.FromConfig(cfg), nil
}

func (c *commandContext) output() string {
	if c.outputFlag == nil {
		return outputTable
	}
	return strings.ToLower(strings.TrimSpace(*c.outputFlag))
}

func (c *commandContext) validateOutput() error {
	switch c.output() {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use table, json, or yaml)", c.output())
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
