package archive

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Retention deletes window files whose window ended more than MaxAge ago.
// Failures are reported in the result and never stop the archiver.
type Retention struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	interval time.Duration
	maxAge   time.Duration
	stats    RetentionStats
}

// RetentionStats holds cumulative retention statistics.
type RetentionStats struct {
	LastRunTime  time.Time
	Runs         int64
	FilesDeleted int64
	BytesFreed   int64
	Errors       int64
}

// PurgeResult holds the result of one purge.
type PurgeResult struct {
	Cutoff       time.Time
	FilesDeleted int
	BytesFreed   int64
	FilesKept    int
	Deleted      []string
	Errors       []error
}

// NewRetention creates a retention policy for the windows in dir.
func NewRetention(dir, prefix string, interval, maxAge time.Duration) *Retention {
	return &Retention{
		dir:      dir,
		prefix:   prefix,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Purge deletes expired windows.
func (r *Retention) Purge(now time.Time) PurgeResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.run(now, false)

	r.stats.LastRunTime = now
	r.stats.Runs++
	r.stats.FilesDeleted += int64(res.FilesDeleted)
	r.stats.BytesFreed += res.BytesFreed
	r.stats.Errors += int64(len(res.Errors))
	return res
}

// DryRun reports what Purge would delete without deleting anything.
func (r *Retention) DryRun(now time.Time) PurgeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(now, true)
}

func (r *Retention) run(now time.Time, dryRun bool) PurgeResult {
	res := PurgeResult{Cutoff: now.Add(-r.maxAge)}

	entries, err := scan(r.dir, r.prefix)
	if err != nil {
		res.Errors = append(res.Errors, err)
		return res
	}

	for _, e := range entries {
		end := e.Start.Add(r.interval)
		if end.After(res.Cutoff) {
			res.FilesKept++
			continue
		}
		if !dryRun {
			if err := os.Remove(e.Path); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("remove %s: %w", e.Path, err))
				continue
			}
		}
		res.FilesDeleted++
		res.BytesFreed += e.Size
		res.Deleted = append(res.Deleted, e.Path)
	}
	return res
}

// Stats returns cumulative retention statistics.
func (r *Retention) Stats() RetentionStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
