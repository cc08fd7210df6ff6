// Package sampler drives the periodic sampling pipeline.
//
// On every tick the Orchestrator fetches each category in a fixed order,
// converts cumulative counters to rates through a delta engine, and appends
// the result to the series store. A failing category is logged and skipped;
// it never aborts the tick or the other categories.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ITNoesis/pas/config"
	"github.com/ITNoesis/pas/internal/delta"
	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/logging"
	"github.com/ITNoesis/pas/internal/series"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator configuration.
type Config struct {
	// Interval is the time between ticks.
	Interval time.Duration

	// FetchTimeout bounds a single category fetch. Zero uses Interval.
	FetchTimeout time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:     config.DefaultSampleInterval,
		FetchTimeout: config.DefaultFetchTimeout,
	}
}

// =============================================================================
// Orchestrator
// =============================================================================

type categoryCounters struct {
	appended   atomic.Int64
	suppressed atomic.Int64
	failed     atomic.Int64
	lastError  atomic.Value // string
	warn       *rate.Sometimes
}

// Orchestrator samples all categories into a store.
//
// Run and Tick must not be called concurrently; Stats may be called from
// any goroutine.
type Orchestrator struct {
	store      *series.Store
	categories []Category
	engine     *delta.Engine

	interval     time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	counters map[string]*categoryCounters
	log      *slog.Logger

	ticks       atomic.Int64
	missedTicks atomic.Int64
	overruns    atomic.Int64
}

// New creates an orchestrator sampling categories, in the given order, into
// store.
func New(store *series.Store, categories []Category, cfg *Config) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.NewMissingField("store")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("sampling interval %v: %w", cfg.Interval, errors.ErrInvalidInterval)
	}
	if err := validateCategories(categories); err != nil {
		return nil, err
	}

	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = cfg.Interval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	o := &Orchestrator{
		store:        store,
		categories:   append([]Category(nil), categories...),
		engine:       delta.New(),
		interval:     cfg.Interval,
		fetchTimeout: timeout,
		now:          now,
		counters:     make(map[string]*categoryCounters, len(categories)),
		log:          logging.Component("sampler"),
	}
	for _, c := range categories {
		o.counters[c.Name] = &categoryCounters{
			warn: &rate.Sometimes{First: 3, Interval: time.Minute},
		}
	}
	return o, nil
}

// Run samples once immediately and then on every interval until ctx is
// cancelled. Ticks that elapse while a cycle is still running are
// coalesced into a single follow-up cycle.
func (o *Orchestrator) Run(ctx context.Context) error {
	names := make([]string, len(o.categories))
	for i, c := range o.categories {
		names[i] = c.Name
	}
	o.log.Info("sampler started",
		"interval", o.interval,
		"fetch_timeout", o.fetchTimeout,
		"categories", names)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			o.log.Info("sampler stopped", "ticks", o.ticks.Load(), "missed_ticks", o.missedTicks.Load())
			return nil
		case <-ticker.C:
			o.cycle(ctx)
		}
	}
}

// cycle runs one tick and accounts for ticks lost while it ran.
func (o *Orchestrator) cycle(ctx context.Context) {
	start := time.Now()
	o.Tick(ctx)
	elapsed := time.Since(start)

	if elapsed >= o.interval {
		o.overruns.Add(1)
		// One pending tick stays buffered in the ticker; the rest are dropped.
		if missed := int64(elapsed/o.interval) - 1; missed > 0 {
			o.missedTicks.Add(missed)
		}
		o.log.Debug("sampling cycle overran interval", "elapsed", elapsed, "interval", o.interval)
	}
}

// Tick samples every category once, in order.
func (o *Orchestrator) Tick(ctx context.Context) {
	o.ticks.Add(1)
	tickTime := o.now()

	for _, c := range o.categories {
		if ctx.Err() != nil {
			return
		}

		cctx := logging.ContextWithCategory(ctx, c.Name)
		raw, err := o.fetch(cctx, c)
		if err != nil {
			o.fail(cctx, c, err)
			continue
		}

		ts := tickTime.UnixMilli()
		if !raw.Timestamp.IsZero() {
			ts = raw.Timestamp.UnixMilli()
		}

		switch c.Kind {
		case Cumulative:
			o.appendCumulative(c, ts, raw)
		default:
			o.store.Append(c.Name, series.Sample{
				TimestampMs: ts,
				Values:      finite(raw.Values),
				Sessions:    raw.Sessions,
			})
			o.counters[c.Name].appended.Add(1)
		}
	}
}

// appendCumulative feeds every counter through the engine and stores the
// rates when the key metric produced a valid rate.
func (o *Orchestrator) appendCumulative(c Category, ts int64, raw Raw) {
	rates := make(map[string]float64, len(raw.Values))
	keyValid := false

	for field, v := range raw.Values {
		st := o.engine.Observe(c.Name+"."+field, ts, v)
		rates[field] = st.Rate
		if field == c.KeyMetric {
			keyValid = st.Valid
		}
	}

	if !keyValid {
		o.counters[c.Name].suppressed.Add(1)
		o.log.Debug("rate not yet valid", "category", c.Name, "key_metric", c.KeyMetric, "ts", ts)
		return
	}

	o.store.Append(c.Name, series.Sample{TimestampMs: ts, Values: rates})
	o.counters[c.Name].appended.Add(1)
}

// finite copies values without NaN and infinite entries, which cannot be
// archived.
func finite(values map[string]float64) map[string]float64 {
	if values == nil {
		return nil
	}
	out := make(map[string]float64, len(values))
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}

// fetch runs the category fetch under the fetch timeout and converts a
// panic into an error. A fetch that ignores its context is abandoned when
// the timeout expires.
func (o *Orchestrator) fetch(ctx context.Context, c Category) (Raw, error) {
	fctx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	type result struct {
		raw Raw
		err error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: %v", errors.ErrFetchPanic, r)}
			}
		}()
		raw, err := c.Fetch(fctx)
		ch <- result{raw: raw, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(fctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Raw{}, fmt.Errorf("%w after %v: %v", errors.ErrFetchTimeout, o.fetchTimeout, r.err)
		}
		return r.raw, r.err
	case <-fctx.Done():
		if ctx.Err() != nil {
			return Raw{}, ctx.Err()
		}
		return Raw{}, fmt.Errorf("%w after %v", errors.ErrFetchTimeout, o.fetchTimeout)
	}
}

func (o *Orchestrator) fail(ctx context.Context, c Category, err error) {
	if ctx.Err() != nil {
		// Shutdown in progress.
		return
	}
	cc := o.counters[c.Name]
	cc.failed.Add(1)
	cc.lastError.Store(err.Error())
	cc.warn.Do(func() {
		logging.WithContext(o.log, ctx).Warn("fetch failed",
			"error", err,
			"failures", cc.failed.Load(),
			"retriable", errors.IsRetriable(err))
	})
}

// =============================================================================
// Statistics
// =============================================================================

// CategoryStats counts outcomes for one category.
type CategoryStats struct {
	Name       string
	Kind       Kind
	Appended   int64
	Suppressed int64 // cumulative samples withheld because the key rate was invalid
	Failed     int64
	LastError  string
}

// Stats summarizes orchestrator activity.
type Stats struct {
	Ticks       int64
	MissedTicks int64
	Overruns    int64
	Categories  []CategoryStats
}

// Stats returns a snapshot of the orchestrator counters, categories in
// sampling order.
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		Ticks:       o.ticks.Load(),
		MissedTicks: o.missedTicks.Load(),
		Overruns:    o.overruns.Load(),
		Categories:  make([]CategoryStats, 0, len(o.categories)),
	}
	for _, c := range o.categories {
		cc := o.counters[c.Name]
		lastErr, _ := cc.lastError.Load().(string)
		s.Categories = append(s.Categories, CategoryStats{
			Name:       c.Name,
			Kind:       c.Kind,
			Appended:   cc.appended.Load(),
			Suppressed: cc.suppressed.Load(),
			Failed:     cc.failed.Load(),
			LastError:  lastErr,
		})
	}
	return s
}

// Categories returns the sampled category names in order.
func (o *Orchestrator) Categories() []string {
	out := make([]string, len(o.categories))
	for i, c := range o.categories {
		out[i] = c.Name
	}
	return out
}
