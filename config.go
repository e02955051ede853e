// Package feedwatch wires the whole watcher: database, broker, message
// channel, page source, post locator, and overlay.
package feedwatch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/philverify/feedwatch/internal/frame"
)

// Config is the top-level feedwatch configuration.
type Config struct {
	Page    PageConfig    `yaml:"page"`
	Browser BrowserConfig `yaml:"browser"`
	HTTP    HTTPConfig    `yaml:"http"`
	MCP     MCPConfig     `yaml:"mcp"`
	Frame   FrameConfig   `yaml:"frame"`

	// DBPath is the SQLite database holding cache, history, settings, and
	// channel routes.
	DBPath string `yaml:"db_path"`
}

// PageConfig names the page to watch.
type PageConfig struct {
	URL string `yaml:"url"`

	// FetchTimeout bounds the one-shot page fetch when no browser is
	// attached. Default: 30s.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// BrowserConfig controls the live-page attachment.
type BrowserConfig struct {
	// Attach opens a Chrome session on the page. Off = fetch the HTML once
	// and watch a static tree.
	Attach  bool   `yaml:"attach"`
	Remote  string `yaml:"remote"`
	Headful bool   `yaml:"headful"`
}

// HTTPConfig controls the HTTP mirror of the channel surface.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// MCPConfig controls the MCP tool surface (stdio).
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// FrameConfig controls the frame loop.
type FrameConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("feedwatch: parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Page.FetchTimeout <= 0 {
		c.Page.FetchTimeout = 30 * time.Second
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8790"
	}
	if c.Frame.Interval <= 0 {
		c.Frame.Interval = frame.DefaultInterval
	}
	if c.DBPath == "" {
		c.DBPath = "feedwatch.db"
	}
}

// DefaultConfig returns a Config for watching one URL with defaults applied.
func DefaultConfig(pageURL string) *Config {
	cfg := &Config{Page: PageConfig{URL: pageURL}}
	cfg.applyDefaults()
	return cfg
}
