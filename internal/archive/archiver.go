package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ITNoesis/pas/config"
	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/logging"
	"github.com/ITNoesis/pas/internal/series"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds archiver configuration.
type Config struct {
	// Dir receives the window files. It is created if missing.
	Dir string

	// Prefix starts every window file name.
	Prefix string

	// Interval is the window width.
	Interval time.Duration

	// Tick is how often due windows are checked.
	Tick time.Duration

	// Delay holds a window open for this long after its end so that a
	// sample stamped inside the window but appended after a slow fetch is
	// still included. It should cover the longest sampling cycle.
	Delay time.Duration

	// Codec encodes windows. Defaults to zstd-compressed json.
	Codec Codec

	// Retention removes windows that ended more than Retention ago after
	// each write. Zero keeps every window.
	Retention time.Duration

	// Collector identifies this process in written files. A random UUID
	// is used when empty.
	Collector string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns default archiver configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:       config.DefaultArchiveDir,
		Prefix:    config.DefaultArchivePrefix,
		Interval:  config.DefaultArchiveInterval,
		Tick:      config.DefaultArchiveTick,
		Retention: config.DefaultArchiveRetention,
	}
}

// =============================================================================
// Archiver
// =============================================================================

// Archiver writes completed windows of a store to disk.
//
// The high-water mark starts at the first window boundary after creation,
// so the partial window in progress at startup is archived once it
// completes. Windows are written at most once; the live store is only read.
type Archiver struct {
	store     *series.Store
	dir       string
	prefix    string
	interval  time.Duration
	tick      time.Duration
	delay     time.Duration
	codec     Codec
	collector string
	now       func() time.Time
	retention *Retention
	log       *slog.Logger

	mu        sync.Mutex
	highWater time.Time

	windowsWritten atomic.Int64
	windowsSkipped atomic.Int64
	bytesWritten   atomic.Int64
	samplesWritten atomic.Int64
	lastWindow     atomic.Value // string
}

// New creates an archiver for store.
func New(store *series.Store, cfg *Config) (*Archiver, error) {
	if store == nil {
		return nil, errors.NewMissingField("store")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Dir == "" {
		return nil, errors.NewMissingField("archive dir")
	}
	if cfg.Prefix == "" {
		return nil, errors.NewMissingField("archive prefix")
	}
	if cfg.Interval < time.Minute || cfg.Interval%time.Minute != 0 {
		return nil, fmt.Errorf("archive interval %v: %w", cfg.Interval, errors.ErrInvalidInterval)
	}
	if cfg.Tick <= 0 {
		return nil, fmt.Errorf("archive tick %v: %w", cfg.Tick, errors.ErrInvalidInterval)
	}
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("archive delay %v: %w", cfg.Delay, errors.ErrInvalidInterval)
	}

	codec := cfg.Codec
	if codec == nil {
		codec = &jsonCodec{zstd: true}
	}
	collector := cfg.Collector
	if collector == "" {
		collector = uuid.NewString()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	a := &Archiver{
		store:     store,
		dir:       cfg.Dir,
		prefix:    cfg.Prefix,
		interval:  cfg.Interval,
		tick:      cfg.Tick,
		delay:     cfg.Delay,
		codec:     codec,
		collector: collector,
		now:       now,
		log:       logging.Component("archiver"),
	}
	if cfg.Retention > 0 {
		a.retention = NewRetention(cfg.Dir, cfg.Prefix, cfg.Interval, cfg.Retention)
	}

	start := now()
	a.highWater = start.Truncate(cfg.Interval).Add(cfg.Interval)

	if n, err := removeStaleTemp(cfg.Dir, time.Minute, start); err != nil {
		a.log.Warn("temp file cleanup failed", "dir", cfg.Dir, "error", err)
	} else if n > 0 {
		a.log.Info("removed stale temp files", "dir", cfg.Dir, "count", n)
	}

	return a, nil
}

// Run checks for due windows every tick until ctx is cancelled, then checks
// once more. Windows still inside the delay at that point are left for
// Flush. A write failure is returned immediately; the caller must treat it
// as fatal.
func (a *Archiver) Run(ctx context.Context) error {
	a.log.Info("archiver started",
		"dir", a.dir,
		"interval", a.interval,
		"delay", a.delay,
		"format", a.codec.Format(),
		"first_window_end", a.HighWater().UTC(),
		"collector", a.collector)

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := a.CatchUp(a.now()); err != nil {
				return err
			}
			a.log.Info("archiver stopped", "windows_written", a.windowsWritten.Load())
			return nil
		case <-ticker.C:
			if _, err := a.CatchUp(a.now()); err != nil {
				return err
			}
		}
	}
}

// CatchUp writes every window that ended more than the configured delay
// before now, oldest first, and returns how many windows were processed.
// CatchUp must not be called concurrently with itself, Flush or Run.
func (a *Archiver) CatchUp(now time.Time) (int, error) {
	return a.catchUp(now, a.delay)
}

// Flush writes every window that ended before now, ignoring the delay. It
// is meant for shutdown, once nothing appends to the store any more.
func (a *Archiver) Flush(now time.Time) (int, error) {
	return a.catchUp(now, 0)
}

func (a *Archiver) catchUp(now time.Time, delay time.Duration) (int, error) {
	processed := 0
	for {
		a.mu.Lock()
		high := a.highWater
		a.mu.Unlock()

		if !now.After(high.Add(delay)) {
			return processed, nil
		}

		if err := a.writeWindow(high.Add(-a.interval), high); err != nil {
			return processed, err
		}
		processed++

		a.mu.Lock()
		a.highWater = high.Add(a.interval)
		a.mu.Unlock()
	}
}

func (a *Archiver) writeWindow(low, high time.Time) error {
	name := FileName(a.prefix, low, a.codec.Ext())

	win := &Window{
		Low:       low,
		High:      high,
		Collector: a.collector,
		Created:   a.now(),
		Series:    make(map[string][]series.Sample),
	}
	for _, cat := range a.store.Categories() {
		win.Series[cat] = a.store.SnapshotRange(cat, low.UnixMilli(), high.UnixMilli())
	}

	var buf bytes.Buffer
	if err := a.codec.Encode(&buf, win); err != nil {
		return fmt.Errorf("%w: encode %s: %v", errors.ErrArchiveWrite, name, err)
	}

	err := writeFileAtomic(a.dir, name, buf.Bytes())
	switch {
	case errors.Is(err, errors.ErrWindowExists):
		a.windowsSkipped.Add(1)
		a.log.Warn("window file already exists, not overwriting", "file", name)
		return nil
	case err != nil:
		return fmt.Errorf("%w: %s: %v", errors.ErrArchiveWrite, name, err)
	}

	a.windowsWritten.Add(1)
	a.bytesWritten.Add(int64(buf.Len()))
	a.samplesWritten.Add(int64(win.NumSamples()))
	a.lastWindow.Store(name)

	a.log.Info("window archived",
		"file", name,
		"low", low.UTC(),
		"high", high.UTC(),
		"categories", len(win.Series),
		"samples", win.NumSamples(),
		"bytes", buf.Len())

	if a.retention != nil {
		res := a.retention.Purge(a.now())
		if res.FilesDeleted > 0 || len(res.Errors) > 0 {
			a.log.Info("archive retention",
				"deleted", res.FilesDeleted,
				"bytes_freed", res.BytesFreed,
				"errors", len(res.Errors))
		}
	}
	return nil
}

// HighWater returns the end of the next window to be written.
func (a *Archiver) HighWater() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.highWater
}

// Stats holds archiver statistics.
type Stats struct {
	WindowsWritten int64
	WindowsSkipped int64
	BytesWritten   int64
	SamplesWritten int64
	LastWindow     string
	HighWater      time.Time
	Retention      *RetentionStats
}

// Stats returns current archiver statistics.
func (a *Archiver) Stats() Stats {
	last, _ := a.lastWindow.Load().(string)
	s := Stats{
		WindowsWritten: a.windowsWritten.Load(),
		WindowsSkipped: a.windowsSkipped.Load(),
		BytesWritten:   a.bytesWritten.Load(),
		SamplesWritten: a.samplesWritten.Load(),
		LastWindow:     last,
		HighWater:      a.HighWater(),
	}
	if a.retention != nil {
		rs := a.retention.Stats()
		s.Retention = &rs
	}
	return s
}
