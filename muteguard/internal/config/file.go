// CLAUDE:SUMMARY Defines muteguard config structs and parses YAML configuration files with defaults.
// Package config handles muteguard configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level muteguard configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Pages     []PageConfig    `yaml:"pages"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Policy    PolicyConfig    `yaml:"policy"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	// Remote is a DevTools WebSocket URL or a host:port of a Chrome started
	// with --remote-debugging-port. Empty launches a local Chrome.
	Remote      string `yaml:"remote"`
	Stealth     string `yaml:"stealth"` // headless | headful
	XvfbDisplay string `yaml:"xvfb_display"`
	UserDataDir string `yaml:"user_data_dir"`
	Bin         string `yaml:"bin"`
}

// PageConfig defines a page to guard. URL opens a new tab; Attach adopts
// every existing tab whose URL starts with the given prefix.
type PageConfig struct {
	ID     string `yaml:"id"`
	URL    string `yaml:"url"`
	Attach string `yaml:"attach"`
}

// DiscoveryConfig controls how often attach prefixes are matched against
// the browser's open tabs.
type DiscoveryConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// PolicyConfig holds the reaction timings. The defaults were chosen to
// let Meet finish its own mute handling; they are tunable, not a contract.
type PolicyConfig struct {
	RecheckDelay  time.Duration `yaml:"recheck_delay"`
	Cooldown      time.Duration `yaml:"cooldown"`
	FrameSource   string        `yaml:"frame_source"` // ticker | raf
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// MetricsConfig enables the /metrics and /healthz endpoints.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headful"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Discovery.Interval <= 0 {
		c.Discovery.Interval = 2 * time.Second
	}
	if c.Policy.RecheckDelay <= 0 {
		c.Policy.RecheckDelay = 100 * time.Millisecond
	}
	if c.Policy.Cooldown <= 0 {
		c.Policy.Cooldown = 500 * time.Millisecond
	}
	if c.Policy.FrameSource == "" {
		c.Policy.FrameSource = "ticker"
	}
	if c.Policy.FrameInterval <= 0 {
		c.Policy.FrameInterval = 16 * time.Millisecond
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.stealth %q: want headless or headful", c.Browser.Stealth)
	}
	switch c.Policy.FrameSource {
	case "ticker", "raf":
	default:
		return fmt.Errorf("config: policy.frame_source %q: want ticker or raf", c.Policy.FrameSource)
	}
	if len(c.Pages) == 0 {
		return fmt.Errorf("config: no pages")
	}
	for i, p := range c.Pages {
		if (p.URL == "") == (p.Attach == "") {
			return fmt.Errorf("config: pages[%d]: set exactly one of url or attach", i)
		}
	}
	return nil
}
