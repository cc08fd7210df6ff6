// Package archive writes the in-memory series history to time-windowed
// files and loads such files back.
//
// An archive window covers the half-open interval (Low, High] and holds,
// per category, the samples whose timestamp falls in it. Each window is
// one file named after its start time in UTC at minute granularity, for
// example pas-20240101-1000.json.zst.
package archive

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ITNoesis/pas/internal/series"
)

// FormatVersion is written into every archive file.
const FormatVersion = 1

// nameLayout is the time part of window file names.
const nameLayout = "20060102-1504"

// Window is one archived time range.
type Window struct {
	Low  time.Time // exclusive
	High time.Time // inclusive

	Collector string    // instance id of the writing process
	Created   time.Time // when the file was written

	Series map[string][]series.Sample
}

// Categories returns the window's category names in sorted order.
func (w *Window) Categories() []string {
	out := make([]string, 0, len(w.Series))
	for c := range w.Series {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// NumSamples returns the total sample count over all categories.
func (w *Window) NumSamples() int {
	n := 0
	for _, s := range w.Series {
		n += len(s)
	}
	return n
}

// FileName returns the file name for a window starting at start.
func FileName(prefix string, start time.Time, ext string) string {
	return prefix + "-" + start.UTC().Format(nameLayout) + ext
}

// ParseFileName extracts the window start from a file name produced by
// FileName. The codec is chosen from the extension.
func ParseFileName(prefix, name string) (time.Time, Codec, error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, prefix+"-") {
		return time.Time{}, nil, fmt.Errorf("%s: prefix is not %q", base, prefix)
	}

	codec, err := CodecForPath(base)
	if err != nil {
		return time.Time{}, nil, err
	}

	stamp := strings.TrimSuffix(strings.TrimPrefix(base, prefix+"-"), codec.Ext())
	start, err := time.ParseInLocation(nameLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%s: bad window time: %w", base, err)
	}
	return start, codec, nil
}
