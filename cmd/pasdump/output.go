package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/term"
)

// warnings receives messages about windows that could not be used.
var warnings io.Writer = os.Stderr

func warnf(format string, args ...any) {
	fmt.Fprintf(warnings, "pasdump: "+format+"\n", args...)
}

// printer writes tables for terminals and JSON otherwise.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(forceJSON bool) *printer {
	return &printer{
		w:    os.Stdout,
		json: forceJSON || !term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// table prints rows under header. v is encoded instead when printing JSON.
func (p *printer) table(header []string, rows [][]string, v any) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

// parseTime accepts RFC 3339 times and durations relative to now
// ("2h" means two hours ago). Empty returns def.
func parseTime(s string, now, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: want RFC 3339 or a duration", s)
	}
	return t, nil
}

// timeRange parses -from and -to. The default range is the last hour.
func timeRange(from, to string) (time.Time, time.Time, error) {
	now := time.Now()
	lo, err := parseTime(from, now, now.Add(-time.Hour))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	hi, err := parseTime(to, now, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !hi.After(lo) {
		return time.Time{}, time.Time{}, fmt.Errorf("empty time range %s .. %s", lo.Format(time.RFC3339), hi.Format(time.RFC3339))
	}
	return lo, hi, nil
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05.000")
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.6g", v)
}
