// Package delta converts monotonically increasing counters into per-second
// rates.
//
// Each named metric keeps the last observed value and timestamp. The first
// observation, a repeated timestamp and a counter reset all produce an
// invalid state; callers use State.Valid to decide whether the rate may be
// published.
package delta

import "math"

// State is the derived state of one cumulative metric.
type State struct {
	LastTimestampMs int64
	LastValue       float64
	Delta           float64
	Rate            float64 // per second
	Valid           bool
}

// Engine tracks State per metric name. States are created on first
// observation and never removed.
//
// Engine is not safe for concurrent use. It is owned by the single sampling
// goroutine.
type Engine struct {
	states map[string]*State
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{states: make(map[string]*State)}
}

// Observe records value at timestampMs for name and returns the updated state.
//
//   - first observation: baseline only, not valid
//   - same timestamp as the previous observation: ignored, not valid
//   - value below the previous one (counter reset or wraparound): new
//     baseline, zero delta and rate, not valid
//   - otherwise: delta and rate are computed and the state is valid; a
//     non-finite rate is published as 0
//
// Timestamps earlier than the previous one are treated like a repeated
// timestamp and ignored.
func (e *Engine) Observe(name string, timestampMs int64, value float64) State {
	st, ok := e.states[name]
	if !ok {
		st = &State{LastTimestampMs: timestampMs, LastValue: value}
		e.states[name] = st
		return *st
	}

	if timestampMs <= st.LastTimestampMs {
		st.Valid = false
		return *st
	}

	if value < st.LastValue {
		st.LastTimestampMs = timestampMs
		st.LastValue = value
		st.Delta = 0
		st.Rate = 0
		st.Valid = false
		return *st
	}

	d := value - st.LastValue
	rate := d / (float64(timestampMs-st.LastTimestampMs) / 1000)
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = 0
	}

	st.Delta = d
	st.Rate = rate
	st.LastTimestampMs = timestampMs
	st.LastValue = value
	st.Valid = true
	return *st
}

// State returns the current state of name.
func (e *Engine) State(name string) (State, bool) {
	st, ok := e.states[name]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Len returns the number of tracked metrics.
func (e *Engine) Len() int {
	return len(e.states)
}
