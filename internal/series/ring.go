package series

import (
	"sync"
	"sync/atomic"
)

// ring is a fixed-capacity FIFO of samples. A push at capacity overwrites
// the oldest element.
type ring struct {
	mu       sync.RWMutex
	data     []Sample
	head     int64 // next write position
	tail     int64 // oldest element position
	count    int64
	capacity int64

	pushCount  atomic.Int64
	evictCount atomic.Int64
}

func newRing(capacity int) *ring {
	return &ring{
		data:     make([]Sample, capacity),
		capacity: int64(capacity),
	}
}

func (r *ring) push(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count >= r.capacity {
		r.data[r.tail%r.capacity] = Sample{}
		r.tail++
		r.count--
		r.evictCount.Add(1)
	}

	r.data[r.head%r.capacity] = s
	r.head++
	r.count++
	r.pushCount.Add(1)
}

// snapshot copies the samples for which keep returns true, oldest first.
// A nil keep copies everything.
func (r *ring) snapshot(keep func(*Sample) bool) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Sample, 0, r.count)
	for i := int64(0); i < r.count; i++ {
		s := &r.data[(r.tail+i)%r.capacity]
		if keep == nil || keep(s) {
			out = append(out, *s)
		}
	}
	return out
}

func (r *ring) newest() (Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return Sample{}, false
	}
	return r.data[(r.head-1)%r.capacity], true
}

func (r *ring) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.count)
}

// timeRange returns the oldest and newest timestamps.
func (r *ring) timeRange() (oldest, newest int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return 0, 0
	}
	return r.data[r.tail%r.capacity].TimestampMs, r.data[(r.head-1)%r.capacity].TimestampMs
}
