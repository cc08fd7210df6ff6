// Package series keeps the bounded in-memory history of sampled metrics.
//
// A Store holds one fixed-capacity ring per category. Appending to a full
// ring evicts the oldest sample, so memory is bounded by
// capacity × categories regardless of uptime.
package series

import "time"

// Sample is one timestamped observation of a category.
//
// Aggregate categories fill Values (field name to value; for cumulative
// categories the values are per-second rates). Session categories fill
// Sessions. A Sample must not be mutated after it has been appended.
type Sample struct {
	TimestampMs int64              `json:"ts"`
	Values      map[string]float64 `json:"values,omitempty"`
	Sessions    []Session          `json:"sessions,omitempty"`
}

// Session is the state of one database session at sampling time.
type Session struct {
	PID           int64  `json:"pid"`
	User          string `json:"user,omitempty"`
	Database      string `json:"database,omitempty"`
	Application   string `json:"application,omitempty"`
	BackendType   string `json:"backend_type,omitempty"`
	State         string `json:"state,omitempty"`
	WaitEventType string `json:"wait_event_type,omitempty"`
	WaitEvent     string `json:"wait_event,omitempty"`
	WaitClass     string `json:"wait_class,omitempty"`
	Query         string `json:"query,omitempty"`
	DurationMs    int64  `json:"duration_ms,omitempty"`
}

// Time returns the sample timestamp as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.TimestampMs)
}

// Value returns the named aggregate field.
func (s Sample) Value(field string) (float64, bool) {
	v, ok := s.Values[field]
	return v, ok
}
