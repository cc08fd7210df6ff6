package sampler

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	paserrors "github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/series"
	pastesting "github.com/ITNoesis/pas/internal/testing"
)

// counterFetch returns the given values in order, one per call.
func counterFetch(points ...[2]float64) FetchFunc {
	i := 0
	return func(ctx context.Context) (Raw, error) {
		p := points[i%len(points)]
		i++
		return Raw{
			Timestamp: time.UnixMilli(int64(p[0])),
			Values:    map[string]float64{"xact_commit": p[1], "blks_read": p[1] * 2},
		}, nil
	}
}

func newTestOrchestrator(t *testing.T, store *series.Store, cats ...Category) *Orchestrator {
	t.Helper()
	o, err := New(store, cats, &Config{Interval: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestCumulativeRate(t *testing.T) {
	store := series.NewStore(10)
	o := newTestOrchestrator(t, store, Category{
		Name:      "database",
		Kind:      Cumulative,
		KeyMetric: "xact_commit",
		Fetch:     counterFetch([2]float64{1000, 100}, [2]float64{6000, 150}),
	})

	ctx := context.Background()
	o.Tick(ctx)
	if n := store.Len("database"); n != 0 {
		t.Fatalf("first observation should not be stored, got %d samples", n)
	}

	o.Tick(ctx)
	got := store.Snapshot("database")
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0].TimestampMs != 6000 {
		t.Errorf("expected ts=6000, got %d", got[0].TimestampMs)
	}
	if got[0].Values["xact_commit"] != 10 {
		t.Errorf("expected rate 10, got %v", got[0].Values["xact_commit"])
	}
	if got[0].Values["blks_read"] != 20 {
		t.Errorf("expected rate 20, got %v", got[0].Values["blks_read"])
	}

	stats := o.Stats()
	if stats.Categories[0].Appended != 1 || stats.Categories[0].Suppressed != 1 {
		t.Errorf("unexpected stats %+v", stats.Categories[0])
	}
}

func TestCumulativeResetSuppressed(t *testing.T) {
	store := series.NewStore(10)
	o := newTestOrchestrator(t, store, Category{
		Name:      "database",
		Kind:      Cumulative,
		KeyMetric: "xact_commit",
		Fetch: counterFetch(
			[2]float64{1000, 100},
			[2]float64{2000, 40},
			[2]float64{3000, 50},
		),
	})

	for i := 0; i < 3; i++ {
		o.Tick(context.Background())
	}

	got := store.Snapshot("database")
	if len(got) != 1 {
		t.Fatalf("expected 1 sample after reset, got %d", len(got))
	}
	if got[0].TimestampMs != 3000 || got[0].Values["xact_commit"] != 10 {
		t.Errorf("unexpected sample %+v", got[0])
	}
}

func TestInstantaneousAlwaysAppended(t *testing.T) {
	store := series.NewStore(10)
	clock := time.UnixMilli(0)
	o, err := New(store, []Category{{
		Name: "sessions",
		Kind: Instantaneous,
		Fetch: func(ctx context.Context) (Raw, error) {
			return Raw{
				Values:   map[string]float64{"active": 3},
				Sessions: []series.Session{{PID: 42, State: "active"}},
			}, nil
		},
	}}, &Config{
		Interval: time.Second,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	o.Tick(context.Background())
	o.Tick(context.Background())

	got := store.Snapshot("sessions")
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0].TimestampMs != 1000 || got[1].TimestampMs != 2000 {
		t.Errorf("expected tick timestamps, got %d and %d", got[0].TimestampMs, got[1].TimestampMs)
	}
	if len(got[1].Sessions) != 1 || got[1].Sessions[0].PID != 42 {
		t.Errorf("unexpected sessions %+v", got[1].Sessions)
	}
}

func TestFailureIsolated(t *testing.T) {
	logs := pastesting.CaptureLogs(t)
	store := series.NewStore(10)

	brokenCalls := 0
	o := newTestOrchestrator(t, store,
		Category{
			Name: "broken",
			Kind: Instantaneous,
			Fetch: func(ctx context.Context) (Raw, error) {
				brokenCalls++
				if brokenCalls == 1 {
					return Raw{}, errors.New("relation does not exist")
				}
				return Raw{Values: map[string]float64{"ok": 1}}, nil
			},
		},
		Category{
			Name:  "panics",
			Kind:  Instantaneous,
			Fetch: func(ctx context.Context) (Raw, error) { panic("nil row") },
		},
		Category{
			Name:  "waits",
			Kind:  Instantaneous,
			Fetch: func(ctx context.Context) (Raw, error) { return Raw{Values: map[string]float64{"CPU": 1}}, nil },
		},
	)

	o.Tick(context.Background())

	if n := store.Len("waits"); n != 1 {
		t.Errorf("expected healthy category to be stored, got %d", n)
	}
	if n := store.Len("broken"); n != 0 {
		t.Errorf("expected no samples for failing category, got %d", n)
	}

	stats := o.Stats()
	if stats.Categories[0].Failed != 1 || stats.Categories[1].Failed != 1 {
		t.Errorf("expected failures counted, got %+v", stats.Categories)
	}
	if !logs.Contains("relation does not exist") || !logs.Contains("fetch panicked") {
		t.Errorf("expected failures logged, got %q", logs.String())
	}

	// The next tick runs every category again; the recovered one appends.
	o.Tick(context.Background())

	if n := store.Len("broken"); n != 1 {
		t.Errorf("expected recovered category to append on the next tick, got %d", n)
	}
	if n := store.Len("waits"); n != 2 {
		t.Errorf("expected healthy category to keep appending, got %d", n)
	}
	if n := store.Len("panics"); n != 0 {
		t.Errorf("expected no samples for panicking category, got %d", n)
	}

	stats = o.Stats()
	if stats.Ticks != 2 {
		t.Errorf("expected 2 ticks, got %d", stats.Ticks)
	}
	if c := stats.Categories[0]; c.Failed != 1 || c.Appended != 1 {
		t.Errorf("recovered category: %+v", c)
	}
	if c := stats.Categories[1]; c.Failed != 2 {
		t.Errorf("panicking category: expected 2 failures, got %+v", c)
	}
}

func TestFetchTimeout(t *testing.T) {
	pastesting.CaptureLogs(t)
	store := series.NewStore(10)

	block := make(chan struct{})
	defer close(block)

	o, err := New(store, []Category{
		{
			Name: "stuck",
			Kind: Instantaneous,
			Fetch: func(ctx context.Context) (Raw, error) {
				<-block
				return Raw{}, nil
			},
		},
		{
			Name:  "after",
			Kind:  Instantaneous,
			Fetch: func(ctx context.Context) (Raw, error) { return Raw{Values: map[string]float64{"x": 1}}, nil },
		},
	}, &Config{Interval: time.Second, FetchTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	err = pastesting.WithTimeout(time.Second, func() error {
		o.Tick(context.Background())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if store.Len("after") != 1 {
		t.Error("category after a timed out fetch should still be sampled")
	}
	stats := o.Stats()
	if stats.Categories[0].Failed != 1 {
		t.Errorf("expected timeout counted as failure, got %+v", stats.Categories[0])
	}
}

func TestFetchTimeoutError(t *testing.T) {
	store := series.NewStore(10)
	o, err := New(store, []Category{{
		Name: "slow",
		Kind: Instantaneous,
		Fetch: func(ctx context.Context) (Raw, error) {
			<-ctx.Done()
			return Raw{}, ctx.Err()
		},
	}}, &Config{Interval: time.Second, FetchTimeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	_, err = o.fetch(context.Background(), o.categories[0])
	if !paserrors.Is(err, paserrors.ErrFetchTimeout) {
		t.Errorf("expected ErrFetchTimeout, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	fetch := func(ctx context.Context) (Raw, error) { return Raw{}, nil }

	tests := []struct {
		name string
		cats []Category
		cfg  *Config
	}{
		{"duplicate", []Category{{Name: "a", Kind: Instantaneous, Fetch: fetch}, {Name: "a", Kind: Instantaneous, Fetch: fetch}}, nil},
		{"no fetch", []Category{{Name: "a", Kind: Instantaneous}}, nil},
		{"no key metric", []Category{{Name: "a", Kind: Cumulative, Fetch: fetch}}, nil},
		{"no name", []Category{{Kind: Instantaneous, Fetch: fetch}}, nil},
		{"zero interval", []Category{{Name: "a", Kind: Instantaneous, Fetch: fetch}}, &Config{}},
	}

	for _, tt := range tests {
		if _, err := New(series.NewStore(1), tt.cats, tt.cfg); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	pastesting.CaptureLogs(t)
	store := series.NewStore(100)
	o, err := New(store, []Category{{
		Name:  "sessions",
		Kind:  Instantaneous,
		Fetch: func(ctx context.Context) (Raw, error) { return Raw{Values: map[string]float64{"active": 1}}, nil },
	}}, &Config{Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	if err := pastesting.Eventually(time.Second, time.Millisecond, func() bool {
		return store.Len("sessions") >= 3
	}); err != nil {
		t.Fatal(err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFilter(t *testing.T) {
	fetch := func(ctx context.Context) (Raw, error) { return Raw{}, nil }
	cats := []Category{{Name: "a", Fetch: fetch}, {Name: "b", Fetch: fetch}, {Name: "c", Fetch: fetch}}

	got, err := Filter(cats, []string{"c", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "c" || got[1].Name != "a" {
		t.Errorf("unexpected filter result %+v", got)
	}

	if _, err := Filter(cats, []string{"zzz"}); !paserrors.Is(err, paserrors.ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestNonFiniteValuesDropped(t *testing.T) {
	store := series.NewStore(10)
	o := newTestOrchestrator(t, store, Category{
		Name: "sessions",
		Kind: Instantaneous,
		Fetch: func(ctx context.Context) (Raw, error) {
			return Raw{
				Timestamp: time.UnixMilli(1000),
				Values:    map[string]float64{"active": 2, "ratio": math.NaN(), "skew": math.Inf(1)},
			}, nil
		},
	})

	o.Tick(context.Background())

	got, ok := store.Latest("sessions")
	if !ok {
		t.Fatal("no sample appended")
	}
	if len(got.Values) != 1 || got.Values["active"] != 2 {
		t.Errorf("values = %v, want only active=2", got.Values)
	}
}
