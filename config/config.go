// Package config holds the YAML configuration for the acquisition service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	// Listen is the HTTP control address. Default: "127.0.0.1:8170".
	Listen string `yaml:"listen"`
	// OutputDir receives captures and companions. Default: "captures".
	OutputDir string `yaml:"output_dir"`
	// DatabasePath is the extraction catalog. Empty disables cataloguing.
	DatabasePath string `yaml:"database_path"`
	// Markdown toggles the .md companion per capture. Default: true.
	Markdown *bool `yaml:"markdown"`

	Browser BrowserConfig `yaml:"browser"`
	Acquire AcquireConfig `yaml:"acquire"`
}

// BrowserConfig controls the attended Chrome session.
type BrowserConfig struct {
	// Bin is an explicit browser binary. Empty = search the host.
	Bin             string        `yaml:"bin"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
}

// AcquireConfig controls the worker's pacing.
type AcquireConfig struct {
	StabilizeDelay  time.Duration `yaml:"stabilize_delay"`
	PreCaptureDelay time.Duration `yaml:"pre_capture_delay"`
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8170"
	}
	if c.OutputDir == "" {
		c.OutputDir = "captures"
	}
	if c.Markdown == nil {
		v := true
		c.Markdown = &v
	}
	if c.Browser.PageLoadTimeout <= 0 {
		c.Browser.PageLoadTimeout = 30 * time.Second
	}
	if c.Acquire.StabilizeDelay <= 0 {
		c.Acquire.StabilizeDelay = 1500 * time.Millisecond
	}
	if c.Acquire.PreCaptureDelay <= 0 {
		c.Acquire.PreCaptureDelay = time.Second
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML config file and applies defaults to absent fields.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}
