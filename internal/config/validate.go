package config

import (
	"fmt"
	"time"

	defaults "github.com/ITNoesis/pas/config"
	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/logging"
	"github.com/ITNoesis/pas/internal/validation"
)

// Validate checks the configuration for errors. All problems are reported
// together.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	c.Source.validate(v)
	c.Sampling.validate(v)
	if c.Archive.Enabled {
		c.Archive.validate(v)
		// A window must still be in memory when it is archived.
		if need := c.ArchiveHistoryNeed(len(c.Source.Categories)); c.Sampling.Capacity == 0 && c.Sampling.History.D() < need {
			v.AddField("sampling.history", fmt.Sprintf("must be at least archive.interval + archive.tick + archive delay (%v)", need))
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		v.AddField("logging.level", err.Error())
	}
	if n := c.StoreCapacity(); n > defaults.MaxStoreCapacity {
		v.AddField("sampling.capacity", fmt.Sprintf("%d exceeds maximum %d", n, defaults.MaxStoreCapacity))
	}

	return v.Err()
}

func (c *SourceConfig) validate(v *errors.ValidationErrors) {
	switch c.Driver {
	case "postgres", "mongodb":
	case "":
		v.AddMissing("source.driver")
	default:
		v.Add(fmt.Errorf("source.driver %q: %w", c.Driver, errors.ErrUnknownDriver))
	}
	if c.DSN == "" {
		v.AddMissing("source.dsn")
	}
	if c.ConnectTimeout < 0 {
		v.AddField("source.connect_timeout", "must not be negative")
	}
	if c.MaxQueryLength < 0 {
		v.AddField("source.max_query_length", "must not be negative")
	}
	for _, name := range c.Categories {
		if err := validation.ValidateCategory(name); err != nil {
			v.AddField("source.categories", err.Error())
		}
	}
}

func (c *SamplingConfig) validate(v *errors.ValidationErrors) {
	if c.Interval.D() < defaults.MinSampleInterval {
		v.Add(fmt.Errorf("sampling.interval %v below %v: %w", c.Interval, defaults.MinSampleInterval, errors.ErrInvalidInterval))
	}
	if c.Capacity < 0 {
		v.AddField("sampling.capacity", "must not be negative")
	}
	if c.Capacity == 0 && c.History < c.Interval {
		v.AddField("sampling.history", "must be at least sampling.interval")
	}
	if c.FetchTimeout < 0 {
		v.AddField("sampling.fetch_timeout", "must not be negative")
	}
}

func (c *ArchiveConfig) validate(v *errors.ValidationErrors) {
	if c.Dir == "" {
		v.AddMissing("archive.dir")
	}
	if c.Prefix == "" {
		v.AddMissing("archive.prefix")
	} else if err := validation.ValidatePrefix(c.Prefix); err != nil {
		v.AddField("archive.prefix", err.Error())
	}

	interval := c.Interval.D()
	if interval < time.Minute || interval%time.Minute != 0 {
		v.Add(fmt.Errorf("archive.interval %v must be a positive whole number of minutes: %w", interval, errors.ErrInvalidInterval))
	}
	if c.Tick <= 0 {
		v.Add(fmt.Errorf("archive.tick %v: %w", c.Tick, errors.ErrInvalidInterval))
	}
	if c.Delay < 0 {
		v.AddField("archive.delay", "must not be negative")
	}

	switch c.Format {
	case "json", "parquet":
	default:
		v.Add(fmt.Errorf("archive.format %q: %w", c.Format, errors.ErrUnknownFormat))
	}
	switch c.Compression {
	case "zstd", "none":
	default:
		v.AddField("archive.compression", fmt.Sprintf("%q is not zstd or none", c.Compression))
	}

	if c.Retention < 0 {
		v.AddField("archive.retention", "must not be negative")
	} else if c.Retention > 0 && c.Retention < c.Interval {
		v.AddField("archive.retention", "must be zero or at least archive.interval")
	}
	if c.Restore < 0 {
		v.AddField("archive.restore", "must not be negative")
	}
}
