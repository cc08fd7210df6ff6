package series

import (
	"sort"
	"sync"
)

// DefaultCapacity is used when a Store is created with a non-positive capacity.
const DefaultCapacity = 3600

// Store maps category names to bounded rings of samples.
//
// Store is safe for concurrent use: one writer (the sampler) and any number
// of readers (archiver, renderers) may operate on it at once. Readers always
// receive copies and never observe a partially written sample.
type Store struct {
	mu       sync.RWMutex
	rings    map[string]*ring
	order    []string
	capacity int
}

// NewStore creates a store whose rings all hold at most capacity samples.
// The listed categories are created up front; others are created on first
// Append.
func NewStore(capacity int, categories ...string) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		rings:    make(map[string]*ring, len(categories)),
		capacity: capacity,
	}
	for _, c := range categories {
		s.ring(c)
	}
	return s
}

// ring returns the ring for category, creating it if needed.
func (s *Store) ring(category string) *ring {
	s.mu.RLock()
	r, ok := s.rings[category]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rings[category]; ok {
		return r
	}
	r = newRing(s.capacity)
	s.rings[category] = r
	s.order = append(s.order, category)
	return r
}

func (s *Store) lookup(category string) *ring {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rings[category]
}

// Append adds sample to category. If the category is at capacity the oldest
// sample is evicted. Append never blocks on capacity and never fails.
// Empty Values and Sessions are stored as nil, the form archives decode to.
func (s *Store) Append(category string, sample Sample) {
	if len(sample.Values) == 0 {
		sample.Values = nil
	}
	if len(sample.Sessions) == 0 {
		sample.Sessions = nil
	}
	s.ring(category).push(sample)
}

// Snapshot returns a copy of every sample of category, oldest first.
// An unknown category yields an empty result.
func (s *Store) Snapshot(category string) []Sample {
	r := s.lookup(category)
	if r == nil {
		return nil
	}
	return r.snapshot(nil)
}

// SnapshotRange returns a copy of the samples of category whose timestamp
// lies in the half-open interval (lowMs, highMs], oldest first.
func (s *Store) SnapshotRange(category string, lowMs, highMs int64) []Sample {
	r := s.lookup(category)
	if r == nil || highMs <= lowMs {
		return nil
	}
	return r.snapshot(func(smp *Sample) bool {
		return smp.TimestampMs > lowMs && smp.TimestampMs <= highMs
	})
}

// Latest returns the newest sample of category.
func (s *Store) Latest(category string) (Sample, bool) {
	r := s.lookup(category)
	if r == nil {
		return Sample{}, false
	}
	return r.newest()
}

// Len returns the number of samples held for category.
func (s *Store) Len(category string) int {
	r := s.lookup(category)
	if r == nil {
		return 0
	}
	return r.len()
}

// Capacity returns the per-category capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Categories returns the known categories in creation order.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// CategoryStats describes one ring.
type CategoryStats struct {
	Category   string
	Len        int
	Appended   int64
	Evicted    int64
	OldestMs   int64
	NewestMs   int64
	UsageRatio float64
}

// Stats returns per-category statistics sorted by category name.
func (s *Store) Stats() []CategoryStats {
	s.mu.RLock()
	rings := make(map[string]*ring, len(s.rings))
	for k, v := range s.rings {
		rings[k] = v
	}
	s.mu.RUnlock()

	out := make([]CategoryStats, 0, len(rings))
	for name, r := range rings {
		oldest, newest := r.timeRange()
		n := r.len()
		out = append(out, CategoryStats{
			Category:   name,
			Len:        n,
			Appended:   r.pushCount.Load(),
			Evicted:    r.evictCount.Load(),
			OldestMs:   oldest,
			NewestMs:   newest,
			UsageRatio: float64(n) / float64(s.capacity),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
