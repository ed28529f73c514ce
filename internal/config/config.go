// Package config loads the monitor's JSON configuration file. Every field
// is optional; Get* accessors return the built-in default for fields the
// file leaves out.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/wellclear/internal/ingest"
	"github.com/banshee-data/wellclear/internal/monitor"
	"github.com/banshee-data/wellclear/internal/registry"
)

// DefaultConfigPath is the checked-in file carrying every default value.
const DefaultConfigPath = "config/wcv.defaults.json"

const (
	defaultRcvBuf           = 1 << 20
	defaultStatsLogInterval = time.Minute
	maxFileSize             = 1 * 1024 * 1024
)

// Config is the root of the configuration file.
type Config struct {
	// Ingest
	ListenAddress    *string `json:"listen_address,omitempty"`
	UDPRcvBuf        *int    `json:"udp_rcv_buf,omitempty"`
	StatsLogInterval *string `json:"stats_log_interval,omitempty"` // duration string like "1m"
	ForwardAddress   *string `json:"forward_address,omitempty"`

	// Registry and monitor
	Capacity   *int              `json:"capacity,omitempty"`
	CycleDelay *string           `json:"cycle_delay,omitempty"` // duration string like "500ms"
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty"`
	Verbose    *bool             `json:"verbose,omitempty"`

	// Outer surfaces; empty disables them.
	HTTPListen *string `json:"http_listen,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
}

// ThresholdsConfig mirrors monitor.Thresholds with optional fields.
type ThresholdsConfig struct {
	DTHR    *float64 `json:"dthr,omitempty"`
	TTHR    *float64 `json:"tthr,omitempty"`
	ZTHR    *float64 `json:"zthr,omitempty"`
	TCOATHR *float64 `json:"tcoathr,omitempty"`
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.Capacity != nil && *c.Capacity < 2 {
		return fmt.Errorf("capacity must be at least 2, got %d", *c.Capacity)
	}
	if c.UDPRcvBuf != nil && *c.UDPRcvBuf < 0 {
		return fmt.Errorf("udp_rcv_buf must be non-negative, got %d", *c.UDPRcvBuf)
	}
	for name, v := range map[string]*string{
		"cycle_delay":        c.CycleDelay,
		"stats_log_interval": c.StatsLogInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	if t := c.Thresholds; t != nil {
		for name, v := range map[string]*float64{"dthr": t.DTHR, "tthr": t.TTHR, "zthr": t.ZTHR, "tcoathr": t.TCOATHR} {
			if v != nil && *v < 0 {
				return fmt.Errorf("thresholds.%s must be non-negative, got %g", name, *v)
			}
		}
	}
	return nil
}

// GetListenAddress returns the UDP telemetry address.
func (c *Config) GetListenAddress() string {
	if c.ListenAddress == nil || *c.ListenAddress == "" {
		return ingest.DefaultAddress
	}
	return *c.ListenAddress
}

// GetUDPRcvBuf returns the requested socket receive buffer in bytes.
func (c *Config) GetUDPRcvBuf() int {
	if c.UDPRcvBuf == nil {
		return defaultRcvBuf
	}
	return *c.UDPRcvBuf
}

// GetStatsLogInterval returns how often ingest counters are logged.
func (c *Config) GetStatsLogInterval() time.Duration {
	return parseDuration(c.StatsLogInterval, defaultStatsLogInterval)
}

// GetForwardAddress returns the downstream address, or "" when forwarding is off.
func (c *Config) GetForwardAddress() string {
	if c.ForwardAddress == nil {
		return ""
	}
	return *c.ForwardAddress
}

// GetCapacity returns the registry capacity.
func (c *Config) GetCapacity() int {
	if c.Capacity == nil {
		return registry.DefaultCapacity
	}
	return *c.Capacity
}

// GetCycleDelay returns the pause between monitor scans.
func (c *Config) GetCycleDelay() time.Duration {
	return parseDuration(c.CycleDelay, monitor.DefaultCycleDelay)
}

// GetThresholds returns the detection thresholds, filling unset fields
// from monitor.DefaultThresholds.
func (c *Config) GetThresholds() monitor.Thresholds {
	th := monitor.DefaultThresholds()
	t := c.Thresholds
	if t == nil {
		return th
	}
	if t.DTHR != nil {
		th.DistanceFt = *t.DTHR
	}
	if t.TTHR != nil {
		th.TauSeconds = *t.TTHR
	}
	if t.ZTHR != nil {
		th.AltitudeFt = *t.ZTHR
	}
	if t.TCOATHR != nil {
		th.TCOASeconds = *t.TCOATHR
	}
	return th
}

// GetVerbose reports whether every pairing check is logged.
func (c *Config) GetVerbose() bool {
	return c.Verbose != nil && *c.Verbose
}

// GetHTTPListen returns the status API address, or "" when disabled.
func (c *Config) GetHTTPListen() string {
	if c.HTTPListen == nil {
		return ""
	}
	return *c.HTTPListen
}

// GetDBPath returns the alert database path, or "" when disabled.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
