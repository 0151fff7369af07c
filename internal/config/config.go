package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/linewatch/internal/lines"
)

// Defaults
const (
	DefaultProbeAttempts   = 3
	DefaultProbeInterval   = 120 * time.Millisecond
	DefaultBufferSize      = 64 * 1024
	DefaultEncoding        = "utf-8"
	DefaultMaxLineBytes    = 1 << 20
	DefaultTimestampLayout = "15:04:05.000"
)

// Config represents the complete linewatch configuration
type Config struct {
	Watch    WatchConfig    `yaml:"watch" toml:"watch"`
	Probe    ProbeConfig    `yaml:"probe" toml:"probe"`
	Snapshot SnapshotConfig `yaml:"snapshot" toml:"snapshot"`
	Report   ReportConfig   `yaml:"report" toml:"report"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// WatchConfig selects the directory to monitor
type WatchConfig struct {
	Path         string `yaml:"path" toml:"path"`
	SeedExisting bool   `yaml:"seed_existing" toml:"seed_existing"`
}

// ProbeConfig tunes stability detection
type ProbeConfig struct {
	Attempts int           `yaml:"attempts" toml:"attempts"`
	Interval time.Duration `yaml:"interval" toml:"interval"`
}

// SnapshotConfig controls how files are read
type SnapshotConfig struct {
	BufferSize   int    `yaml:"buffer_size" toml:"buffer_size"`
	Encoding     string `yaml:"encoding" toml:"encoding"`
	MaxLineBytes int    `yaml:"max_line_bytes" toml:"max_line_bytes"`
}

// ReportConfig controls the report stream
type ReportConfig struct {
	TimestampFormat string `yaml:"timestamp_format" toml:"timestamp_format"`
}

// MetricsConfig configures the optional Prometheus endpoint
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`
}

// Default returns a configuration with every default applied and no
// watch path set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. The format follows the
// extension: .toml is TOML, anything else is YAML.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Watch.Path = os.ExpandEnv(c.Watch.Path)
	c.Metrics.ListenAddr = os.ExpandEnv(c.Metrics.ListenAddr)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Probe.Attempts == 0 {
		c.Probe.Attempts = DefaultProbeAttempts
	}
	if c.Probe.Interval == 0 {
		c.Probe.Interval = DefaultProbeInterval
	}
	if c.Snapshot.BufferSize == 0 {
		c.Snapshot.BufferSize = DefaultBufferSize
	}
	if c.Snapshot.Encoding == "" {
		c.Snapshot.Encoding = DefaultEncoding
	}
	if c.Snapshot.MaxLineBytes == 0 {
		c.Snapshot.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.Report.TimestampFormat == "" {
		c.Report.TimestampFormat = DefaultTimestampLayout
	}
}

// SetWatchPath overrides watch.path, making it absolute.
func (c *Config) SetWatchPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve watch path %s: %w", path, err)
	}
	c.Watch.Path = abs
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Watch.Path == "" {
		return fmt.Errorf("watch.path is required")
	}
	if !filepath.IsAbs(c.Watch.Path) {
		return fmt.Errorf("watch.path must be an absolute path: %s", c.Watch.Path)
	}

	if c.Probe.Attempts < 1 {
		return fmt.Errorf("probe.attempts must be at least 1, got %d", c.Probe.Attempts)
	}
	if c.Probe.Interval <= 0 {
		return fmt.Errorf("probe.interval must be positive, got %s", c.Probe.Interval)
	}

	if c.Snapshot.BufferSize < 2 {
		return fmt.Errorf("snapshot.buffer_size must be at least 2, got %d", c.Snapshot.BufferSize)
	}
	if c.Snapshot.MaxLineBytes < 1 {
		return fmt.Errorf("snapshot.max_line_bytes must be positive, got %d", c.Snapshot.MaxLineBytes)
	}
	if _, err := lines.LookupEncoding(c.Snapshot.Encoding); err != nil {
		return fmt.Errorf("invalid snapshot.encoding: %w", err)
	}

	if strings.TrimSpace(c.Report.TimestampFormat) == "" {
		return fmt.Errorf("report.timestamp_format must not be blank")
	}

	return nil
}

// TextEncoding resolves snapshot.encoding.
func (c *Config) TextEncoding() (lines.Encoding, error) {
	return lines.LookupEncoding(c.Snapshot.Encoding)
}

// MetricsEnabled returns true if a metrics listen address is configured
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.ListenAddr != ""
}
