package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/series"
	"github.com/ITNoesis/pas/internal/validation"
)

// Kind says how a category's values are turned into samples.
type Kind int

const (
	// Cumulative values are monotonically increasing counters. They are
	// converted to per-second rates before they are stored.
	Cumulative Kind = iota

	// Instantaneous values are point-in-time gauges or session lists and
	// are stored as fetched.
	Instantaneous
)

func (k Kind) String() string {
	switch k {
	case Cumulative:
		return "cumulative"
	case Instantaneous:
		return "instantaneous"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Raw is what a fetch returns for one tick.
type Raw struct {
	// Timestamp of the observation. The tick time is used when zero.
	Timestamp time.Time

	Values   map[string]float64
	Sessions []series.Session
}

// FetchFunc queries the monitored database for one category.
type FetchFunc func(ctx context.Context) (Raw, error)

// Category describes one sampled category.
type Category struct {
	Name string
	Kind Kind

	// KeyMetric is the field whose rate validity decides whether a
	// cumulative sample is stored. Ignored for instantaneous categories.
	KeyMetric string

	Fetch FetchFunc
}

// Source provides the categories of one monitored database.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Categories returns the categories in sampling order.
	Categories() []Category

	Close() error
}

// validateCategories checks names are unique and descriptors complete.
func validateCategories(cats []Category) error {
	v := errors.NewValidationErrors()
	seen := make(map[string]struct{}, len(cats))

	for i, c := range cats {
		if c.Name == "" {
			v.AddMissing(fmt.Sprintf("categories[%d].name", i))
			continue
		}
		if err := validation.ValidateCategory(c.Name); err != nil {
			v.AddField("categories."+c.Name, err.Error())
		}
		if _, ok := seen[c.Name]; ok {
			v.AddField("categories."+c.Name, "duplicate category")
		}
		seen[c.Name] = struct{}{}

		if c.Fetch == nil {
			v.AddMissing("categories." + c.Name + ".fetch")
		}
		if c.Kind == Cumulative && c.KeyMetric == "" {
			v.AddMissing("categories." + c.Name + ".key_metric")
		}
		if c.Kind != Cumulative && c.Kind != Instantaneous {
			v.AddField("categories."+c.Name+".kind", c.Kind.String())
		}
	}

	return v.Err()
}

// Filter returns the categories whose names are listed, in the listed
// order. An empty list returns cats unchanged.
func Filter(cats []Category, names []string) ([]Category, error) {
	if len(names) == 0 {
		return cats, nil
	}

	byName := make(map[string]Category, len(cats))
	for _, c := range cats {
		byName[c.Name] = c
	}

	out := make([]Category, 0, len(names))
	for _, n := range names {
		c, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%q: %w", n, errors.ErrUnknownCategory)
		}
		out = append(out, c)
	}
	return out, nil
}
