package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ITNoesis/pas/internal/series"
)

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	codec, _ := NewCodec("json", "none")

	for h := 3; h >= 0; h-- {
		writeWindow(t, dir, codec, base.Add(time.Duration(h)*time.Hour), at(time.Duration(h)*time.Hour+time.Minute))
	}
	os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "other-20240101-1000.json"), []byte("x"), 0o644)

	cat, err := NewCatalog(dir, "pas", 2)
	if err != nil {
		t.Fatal(err)
	}

	all, err := cat.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(all))
	}
	for i, e := range all {
		if want := base.Add(time.Duration(i) * time.Hour); !e.Start.Equal(want) {
			t.Errorf("entry %d: expected start %v, got %v", i, want, e.Start)
		}
	}

	between, _ := cat.Between(base.Add(time.Hour), base.Add(3*time.Hour))
	if len(between) != 3 || between[0].Name() != "pas-20240101-1000.json" || between[2].Name() != "pas-20240101-1200.json" {
		t.Errorf("unexpected Between result %+v", between)
	}
	if early, _ := cat.Between(base.Add(-time.Hour), base.Add(30*time.Minute)); len(early) != 1 || early[0].Name() != "pas-20240101-1000.json" {
		t.Errorf("unexpected Between result before first window %+v", early)
	}

	latest, _ := cat.Latest(2)
	if len(latest) != 2 || latest[1].Name() != "pas-20240101-1300.json" {
		t.Errorf("unexpected Latest result %+v", latest)
	}
	if none, _ := cat.Latest(0); len(none) != 0 {
		t.Errorf("Latest(0) should be empty, got %d", len(none))
	}

	w1, err := cat.Open(all[0])
	if err != nil {
		t.Fatal(err)
	}
	w2, _ := cat.Open(all[0])
	if w1 != w2 {
		t.Error("expected cached window on second open")
	}
	for _, e := range all {
		cat.Open(e)
	}
	if cat.Cached() != 2 {
		t.Errorf("expected cache bounded at 2, got %d", cat.Cached())
	}
}

func TestCatalogMissingDir(t *testing.T) {
	cat, _ := NewCatalog(filepath.Join(t.TempDir(), "nope"), "pas", 1)
	if _, err := cat.List(); err == nil {
		t.Error("expected error for missing dir")
	}
}

func TestRetention(t *testing.T) {
	dir := t.TempDir()
	codec, _ := NewCodec("json", "none")
	for h := 0; h < 5; h++ {
		writeWindow(t, dir, codec, base.Add(time.Duration(h)*time.Hour))
	}

	r := NewRetention(dir, "pas", time.Hour, 2*time.Hour)
	now := base.Add(5 * time.Hour)

	dry := r.DryRun(now)
	if dry.FilesDeleted != 3 {
		t.Errorf("dry run: expected 3 expired windows, got %d", dry.FilesDeleted)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 5 {
		t.Errorf("dry run deleted files")
	}

	res := r.Purge(now)
	if res.FilesDeleted != 3 || res.FilesKept != 2 || len(res.Errors) != 0 {
		t.Errorf("unexpected purge result %+v", res)
	}
	if res.BytesFreed <= 0 {
		t.Error("expected bytes freed")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected 2 remaining files, got %d", len(entries))
	}

	stats := r.Stats()
	if stats.Runs != 1 || stats.FilesDeleted != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestArchiverAppliesRetention(t *testing.T) {
	dir := t.TempDir()
	codec, _ := NewCodec("json", "none")
	old := writeWindow(t, dir, codec, base.Add(-48*time.Hour))

	clk := &clock{t: base}
	a, err := New(nil, &Config{Dir: dir, Prefix: "pas", Interval: time.Hour, Tick: time.Second, Now: clk.now})
	if err == nil || a != nil {
		t.Fatal("expected error for nil store")
	}

	store := series.NewStore(10)
	a, err = New(store, &Config{
		Dir:       dir,
		Prefix:    "pas",
		Interval:  time.Hour,
		Tick:      time.Second,
		Codec:     codec,
		Retention: 24 * time.Hour,
		Now:       clk.now,
	})
	if err != nil {
		t.Fatal(err)
	}

	clk.t = base.Add(61 * time.Minute)
	if _, err := a.CatchUp(clk.t); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired window should have been purged")
	}
	if st := a.Stats(); st.Retention == nil || st.Retention.FilesDeleted != 1 {
		t.Errorf("unexpected retention stats %+v", st.Retention)
	}
}
