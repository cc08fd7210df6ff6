// Package config provides configuration defaults for pas.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via pas.yaml, pas.toml, flags or
// environment variables.
package config

import "time"

// =============================================================================
// Sampling Defaults
// =============================================================================

const (
	// DefaultSampleInterval is the time between two sampling ticks.
	// Override via config: sampling.interval
	DefaultSampleInterval = time.Second

	// DefaultHistory is how much history is kept in memory per category.
	// Store capacity is History / Interval. It must exceed the archive
	// interval plus tick and delay.
	// Override via config: sampling.history
	DefaultHistory = 90 * time.Minute

	// DefaultFetchTimeout bounds a single category fetch. Zero means the
	// sampling interval is used.
	// Override via config: sampling.fetch_timeout
	DefaultFetchTimeout = time.Duration(0)

	// MinSampleInterval rejects intervals that would make rates meaningless
	// at millisecond timestamp resolution.
	MinSampleInterval = 10 * time.Millisecond

	// MaxStoreCapacity caps the number of samples kept per category.
	MaxStoreCapacity = 10_000_000
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveDir is where archive windows are written.
	// Override via config: archive.dir
	DefaultArchiveDir = "./archive"

	// DefaultArchiveInterval is the width of one archive window.
	// Override via config: archive.interval
	DefaultArchiveInterval = time.Hour

	// DefaultArchiveTick is how often the archiver checks for due windows.
	// Override via config: archive.tick
	DefaultArchiveTick = 10 * time.Second

	// DefaultArchiveFormat is the on-disk encoding (json or parquet).
	// Override via config: archive.format
	DefaultArchiveFormat = "json"

	// DefaultArchiveCompression applies to the json format (zstd or none).
	// Override via config: archive.compression
	DefaultArchiveCompression = "zstd"

	// DefaultArchivePrefix is the file name prefix of archive windows.
	// Override via config: archive.prefix
	DefaultArchivePrefix = "pas"

	// DefaultArchiveRetention of zero keeps archive files forever.
	// Override via config: archive.retention
	DefaultArchiveRetention = time.Duration(0)

	// DefaultCatalogCacheSize is the number of decoded windows kept by the
	// archive catalog.
	DefaultCatalogCacheSize = 16
)

// =============================================================================
// Source Defaults
// =============================================================================

const (
	// DefaultSourceDriver selects the monitored database kind.
	// Override via config: source.driver
	DefaultSourceDriver = "postgres"

	// DefaultConnectTimeout bounds the initial connection attempt.
	// Override via config: source.connect_timeout
	DefaultConnectTimeout = 10 * time.Second

	// DefaultMaxQueryLength truncates captured session query text.
	// Override via config: source.max_query_length
	DefaultMaxQueryLength = 1024
)

// =============================================================================
// History Query Defaults
// =============================================================================

const (
	// DefaultQueryMemoryLimit is the DuckDB memory limit for offline queries.
	DefaultQueryMemoryLimit = "512MB"
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum logged level.
	// Override via config: logging.level
	DefaultLogLevel = "info"
)
