package series

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

// SummaryAccuracy is the relative accuracy of summary percentiles.
const SummaryAccuracy = 0.01

// Summary condenses one field of a run of samples.
type Summary struct {
	Field string
	Count int64
	Min   float64
	Max   float64
	Sum   float64
	Avg   float64
	First int64 // timestamp of the first contributing sample
	Last  int64 // timestamp of the last contributing sample

	// Percentiles (zero if no sample carried the field)
	P50 float64
	P90 float64
	P95 float64
	P99 float64
}

// Summarize computes count, extrema, mean and approximate percentiles of
// field over samples. Samples without the field, and non-finite values,
// are skipped.
func Summarize(samples []Sample, field string) Summary {
	sum := Summary{Field: field, Min: math.Inf(1), Max: math.Inf(-1)}

	sketch, err := ddsketch.NewDefaultDDSketch(SummaryAccuracy)
	if err != nil {
		sketch = nil
	}

	for i := range samples {
		v, ok := samples[i].Values[field]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if sum.Count == 0 {
			sum.First = samples[i].TimestampMs
		}
		sum.Last = samples[i].TimestampMs
		sum.Count++
		sum.Sum += v
		if v < sum.Min {
			sum.Min = v
		}
		if v > sum.Max {
			sum.Max = v
		}
		if sketch != nil {
			_ = sketch.Add(v)
		}
	}

	if sum.Count == 0 {
		sum.Min, sum.Max = 0, 0
		return sum
	}

	sum.Avg = sum.Sum / float64(sum.Count)
	if sketch != nil {
		sum.P50, _ = sketch.GetValueAtQuantile(0.50)
		sum.P90, _ = sketch.GetValueAtQuantile(0.90)
		sum.P95, _ = sketch.GetValueAtQuantile(0.95)
		sum.P99, _ = sketch.GetValueAtQuantile(0.99)
	}
	return sum
}

// Fields returns the union of aggregate field names present in samples.
func Fields(samples []Sample) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range samples {
		for k := range samples[i].Values {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
