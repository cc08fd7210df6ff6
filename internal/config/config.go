// Package config loads and validates the pas configuration file.
//
// Both YAML (.yaml, .yml) and TOML (.toml) files are accepted. Environment
// variables in the file are expanded before parsing, and every field not
// present in the file keeps its default from the top-level config package.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	defaults "github.com/ITNoesis/pas/config"
	"github.com/ITNoesis/pas/internal/errors"
)

// Config is the complete pas configuration.
type Config struct {
	Source   SourceConfig   `yaml:"source" toml:"source"`
	Sampling SamplingConfig `yaml:"sampling" toml:"sampling"`
	Archive  ArchiveConfig  `yaml:"archive" toml:"archive"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// SourceConfig selects the monitored database.
type SourceConfig struct {
	// Driver is "postgres" or "mongodb".
	Driver string `yaml:"driver" toml:"driver"`

	// DSN is the driver connection string.
	DSN string `yaml:"dsn" toml:"dsn"`

	// ConnectTimeout bounds the initial connection.
	ConnectTimeout Duration `yaml:"connect_timeout" toml:"connect_timeout"`

	// MaxQueryLength truncates captured session query text.
	MaxQueryLength int `yaml:"max_query_length" toml:"max_query_length"`

	// Categories restricts and orders the sampled categories. Empty means
	// every category the driver provides.
	Categories []string `yaml:"categories" toml:"categories"`
}

// SamplingConfig configures the sampler and the in-memory store.
type SamplingConfig struct {
	// Interval between two ticks.
	Interval Duration `yaml:"interval" toml:"interval"`

	// History kept in memory per category.
	History Duration `yaml:"history" toml:"history"`

	// Capacity overrides History / Interval when positive.
	Capacity int `yaml:"capacity" toml:"capacity"`

	// FetchTimeout bounds one category fetch; zero uses Interval.
	FetchTimeout Duration `yaml:"fetch_timeout" toml:"fetch_timeout"`
}

// ArchiveConfig configures windowed archive files.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Dir     string `yaml:"dir" toml:"dir"`
	Prefix  string `yaml:"prefix" toml:"prefix"`

	// Interval is the window width; a whole number of minutes.
	Interval Duration `yaml:"interval" toml:"interval"`

	// Tick is how often due windows are checked.
	Tick Duration `yaml:"tick" toml:"tick"`

	// Delay holds a window open after its end for late appends. Zero
	// derives it from the sampling cycle, see ArchiveDelay.
	Delay Duration `yaml:"delay" toml:"delay"`

	// Format is "json" or "parquet".
	Format string `yaml:"format" toml:"format"`

	// Compression is "zstd" or "none".
	Compression string `yaml:"compression" toml:"compression"`

	// Retention deletes windows older than this; zero keeps everything.
	Retention Duration `yaml:"retention" toml:"retention"`

	// Restore reloads the newest N windows into memory at startup.
	Restore int `yaml:"restore" toml:"restore"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	JSON  bool   `yaml:"json" toml:"json"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Driver:         defaults.DefaultSourceDriver,
			ConnectTimeout: Duration(defaults.DefaultConnectTimeout),
			MaxQueryLength: defaults.DefaultMaxQueryLength,
		},
		Sampling: SamplingConfig{
			Interval:     Duration(defaults.DefaultSampleInterval),
			History:      Duration(defaults.DefaultHistory),
			FetchTimeout: Duration(defaults.DefaultFetchTimeout),
		},
		Archive: ArchiveConfig{
			Enabled:     true,
			Dir:         defaults.DefaultArchiveDir,
			Prefix:      defaults.DefaultArchivePrefix,
			Interval:    Duration(defaults.DefaultArchiveInterval),
			Tick:        Duration(defaults.DefaultArchiveTick),
			Format:      defaults.DefaultArchiveFormat,
			Compression: defaults.DefaultArchiveCompression,
			Retention:   Duration(defaults.DefaultArchiveRetention),
		},
		Logging: LoggingConfig{
			Level: defaults.DefaultLogLevel,
		},
	}
}

// =============================================================================
// Load
// =============================================================================

// Load reads, parses and validates the configuration file at path. The
// format is chosen by file extension.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: validate config: %w", path, err)
	}
	return cfg, nil
}

// Read reads and parses the configuration file at path without validating
// it, so that command line overrides can be applied first.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses configuration data in format "yaml" or "toml" on top of
// DefaultConfig. The result is not validated.
func Parse(data []byte, format string) (*Config, error) {
	expanded := os.ExpandEnv(string(data))
	cfg := DefaultConfig()

	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case "toml":
		md, err := toml.Decode(expanded, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse config: unknown keys %v: %w", undecoded, errors.ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("config format %q: %w", format, errors.ErrInvalidConfig)
	}

	return cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// =============================================================================
// Derived values
// =============================================================================

// StoreCapacity returns the per-category store capacity: the explicit
// capacity if set, otherwise History / Interval rounded up.
func (c *Config) StoreCapacity() int {
	if c.Sampling.Capacity > 0 {
		return c.Sampling.Capacity
	}
	interval := c.Sampling.Interval.D()
	if interval <= 0 {
		return 0
	}
	history := c.Sampling.History.D()
	n := int(history / interval)
	if history%interval != 0 {
		n++
	}
	return n
}

// ArchiveDelay returns the effective archive delay for a sampler running
// the given number of categories: the explicit delay if set, otherwise one
// sampling interval plus one fetch timeout per category, which bounds the
// time between a sample's timestamp and its append.
func (c *Config) ArchiveDelay(categories int) time.Duration {
	if c.Archive.Delay > 0 {
		return c.Archive.Delay.D()
	}
	if categories < 1 {
		categories = 1
	}
	return c.Sampling.Interval.D() + time.Duration(categories)*c.FetchTimeout()
}

// ArchiveHistoryNeed returns how much in-memory history the archiver needs
// so that a window is still complete in the store when it is written.
func (c *Config) ArchiveHistoryNeed(categories int) time.Duration {
	return c.Archive.Interval.D() + c.Archive.Tick.D() + c.ArchiveDelay(categories)
}

// FetchTimeout returns the effective per-fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	if c.Sampling.FetchTimeout > 0 {
		return c.Sampling.FetchTimeout.D()
	}
	return c.Sampling.Interval.D()
}
