package muteguard

import (
	"github.com/hazyhaar/horosmeet/muteguard/internal/config"
)

// Config is the top-level muteguard configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a page to guard.
type PageConfig = config.PageConfig

// DiscoveryConfig controls tab discovery for attach prefixes.
type DiscoveryConfig = config.DiscoveryConfig

// PolicyConfig holds reaction timings and the frame source.
type PolicyConfig = config.PolicyConfig

// MetricsConfig enables the observability endpoints.
type MetricsConfig = config.MetricsConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}
