package series

import (
	"fmt"
	"sync"
	"testing"

	pastesting "github.com/ITNoesis/pas/internal/testing"
)

func sample(ts int64, v float64) Sample {
	return Sample{TimestampMs: ts, Values: map[string]float64{"v": v}}
}

func TestStoreAppendSnapshot(t *testing.T) {
	s := NewStore(5, "db")

	if got := s.Snapshot("db"); len(got) != 0 {
		t.Errorf("expected empty snapshot, got %d", len(got))
	}

	for i := int64(1); i <= 3; i++ {
		s.Append("db", sample(i*1000, float64(i)))
	}

	got := s.Snapshot("db")
	if len(got) != 3 {
		t.Fatalf("expected len=3, got %d", len(got))
	}
	for i, smp := range got {
		if want := int64(i+1) * 1000; smp.TimestampMs != want {
			t.Errorf("sample %d: expected ts=%d, got %d", i, want, smp.TimestampMs)
		}
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	s := NewStore(3, "db")

	for i := int64(1); i <= 4; i++ {
		s.Append("db", sample(i, float64(i)))
	}

	got := s.Snapshot("db")
	if len(got) != 3 {
		t.Fatalf("expected len=3, got %d", len(got))
	}
	want := []int64{2, 3, 4}
	for i := range want {
		if got[i].TimestampMs != want[i] {
			t.Errorf("index %d: expected ts=%d, got %d", i, want[i], got[i].TimestampMs)
		}
	}

	stats := s.Stats()
	if len(stats) != 1 || stats[0].Evicted != 1 || stats[0].Appended != 4 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestStoreBoundedAfterManyAppends(t *testing.T) {
	const capacity = 10
	s := NewStore(capacity)

	for i := int64(0); i < 1000; i++ {
		s.Append("waits", sample(i, 0))
		if n := s.Len("waits"); n > capacity {
			t.Fatalf("len %d exceeds capacity after %d appends", n, i+1)
		}
	}

	got := s.Snapshot("waits")
	if got[0].TimestampMs != 990 || got[len(got)-1].TimestampMs != 999 {
		t.Errorf("expected last %d samples, got %d..%d", capacity, got[0].TimestampMs, got[len(got)-1].TimestampMs)
	}
}

func TestStoreSnapshotRange(t *testing.T) {
	s := NewStore(100)
	for ts := int64(100); ts <= 500; ts += 100 {
		s.Append("db", sample(ts, 0))
	}

	tests := []struct {
		low, high int64
		want      []int64
	}{
		{100, 300, []int64{200, 300}},
		{0, 100, []int64{100}},
		{500, 1000, nil},
		{0, 1000, []int64{100, 200, 300, 400, 500}},
		{300, 300, nil},
	}

	for _, tt := range tests {
		got := s.SnapshotRange("db", tt.low, tt.high)
		if len(got) != len(tt.want) {
			t.Errorf("(%d,%d]: expected %d samples, got %d", tt.low, tt.high, len(tt.want), len(got))
			continue
		}
		for i := range got {
			if got[i].TimestampMs != tt.want[i] {
				t.Errorf("(%d,%d] index %d: expected %d, got %d", tt.low, tt.high, i, tt.want[i], got[i].TimestampMs)
			}
		}
	}

	if got := s.SnapshotRange("missing", 0, 1000); len(got) != 0 {
		t.Errorf("unknown category should be empty, got %d", len(got))
	}
}

func TestStoreCategoriesAndLatest(t *testing.T) {
	s := NewStore(4, "database", "bgwriter")
	s.Append("sessions", sample(7, 1))

	cats := s.Categories()
	want := []string{"database", "bgwriter", "sessions"}
	if fmt.Sprint(cats) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, cats)
	}

	if _, ok := s.Latest("database"); ok {
		t.Error("expected no latest sample for empty category")
	}
	latest, ok := s.Latest("sessions")
	if !ok || latest.TimestampMs != 7 {
		t.Errorf("unexpected latest %+v, %v", latest, ok)
	}
}

func TestStoreAppendNormalizesEmpty(t *testing.T) {
	s := NewStore(4)
	s.Append("activity", Sample{TimestampMs: 1, Values: map[string]float64{}, Sessions: []Session{}})

	got, ok := s.Latest("activity")
	if !ok {
		t.Fatal("sample not appended")
	}
	if got.Values != nil || got.Sessions != nil {
		t.Errorf("expected nil values and sessions, got %#v", got)
	}
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore(4)
	s.Append("db", sample(1, 1))

	snap := s.Snapshot("db")
	snap[0].TimestampMs = 99

	if got := s.Snapshot("db"); got[0].TimestampMs != 1 {
		t.Errorf("snapshot mutation leaked into store: %d", got[0].TimestampMs)
	}
}

func TestStoreConcurrentReadersWriter(t *testing.T) {
	s := NewStore(50)
	h := pastesting.NewTestHelper(t)

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for i := int64(1); i <= 2000; i++ {
			s.Append("db", sample(i, float64(i)))
		}
	}()

	for r := 0; r < 4; r++ {
		h.Add(1)
		go func(id int) {
			defer h.Done()
			for i := 0; i < 500; i++ {
				snap := s.Snapshot("db")
				if len(snap) > 50 {
					h.Errorf("reader %d: len %d exceeds capacity", id, len(snap))
					return
				}
				for j := 1; j < len(snap); j++ {
					if snap[j].TimestampMs <= snap[j-1].TimestampMs {
						h.Errorf("reader %d: out of order %d after %d", id, snap[j].TimestampMs, snap[j-1].TimestampMs)
						return
					}
				}
			}
		}(r)
	}

	writer.Wait()
	h.Wait()
}
