package series

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	var samples []Sample
	for i := 1; i <= 100; i++ {
		samples = append(samples, sample(int64(i), float64(i)))
	}
	samples = append(samples, Sample{TimestampMs: 200, Values: map[string]float64{"other": 1}})
	samples = append(samples, Sample{TimestampMs: 201, Values: map[string]float64{"v": math.NaN()}})

	sum := Summarize(samples, "v")

	if sum.Count != 100 {
		t.Errorf("expected count=100, got %d", sum.Count)
	}
	if sum.Min != 1 || sum.Max != 100 {
		t.Errorf("expected min=1 max=100, got %v %v", sum.Min, sum.Max)
	}
	if sum.Avg != 50.5 {
		t.Errorf("expected avg=50.5, got %v", sum.Avg)
	}
	if sum.First != 1 || sum.Last != 100 {
		t.Errorf("unexpected first/last %d/%d", sum.First, sum.Last)
	}
	if math.Abs(sum.P50-50) > 2 {
		t.Errorf("expected p50 near 50, got %v", sum.P50)
	}
	if math.Abs(sum.P99-99) > 3 {
		t.Errorf("expected p99 near 99, got %v", sum.P99)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil, "v")
	if sum.Count != 0 || sum.Min != 0 || sum.Max != 0 || sum.Avg != 0 {
		t.Errorf("expected zero summary, got %+v", sum)
	}
}

func TestFields(t *testing.T) {
	got := Fields([]Sample{
		{Values: map[string]float64{"a": 1}},
		{Values: map[string]float64{"a": 2, "b": 3}},
	})
	if len(got) != 2 {
		t.Errorf("expected 2 fields, got %v", got)
	}
}
