package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/ITNoesis/pas/internal/archive"
	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/series"
)

type showCmd struct {
	archiveFlags
	category string
	field    string
	from     string
	to       string
}

func (cmd *showCmd) register(fs *flag.FlagSet) {
	cmd.archiveFlags.register(fs)
	fs.StringVar(&cmd.category, "category", "", "category to print (required)")
	fs.StringVar(&cmd.field, "field", "", "restrict output to one field")
	fs.StringVar(&cmd.from, "from", "", "range start: RFC 3339 or duration ago (default 1h)")
	fs.StringVar(&cmd.to, "to", "", "range end: RFC 3339 or duration ago (default now)")
}

func newShowCmd() *ffcli.Command {
	args := &showCmd{}
	set := flag.NewFlagSet("show", flag.ExitOnError)
	args.register(set)

	return &ffcli.Command{
		Name:       "show",
		Exec:       args.exec,
		ShortUsage: "show -category NAME [-field NAME] [-from T] [-to T]",
		ShortHelp:  "Print archived samples of one category",
		FlagSet:    set,
	}
}

func newSummaryCmd() *ffcli.Command {
	args := &showCmd{}
	set := flag.NewFlagSet("summary", flag.ExitOnError)
	args.register(set)

	return &ffcli.Command{
		Name:       "summary",
		Exec:       args.summary,
		ShortUsage: "summary -category NAME [-field NAME] [-from T] [-to T]",
		ShortHelp:  "Print count, extrema, mean and percentiles per field",
		FlagSet:    set,
	}
}

// samples loads the category's samples with timestamps in (from, to] from
// the windows overlapping the range. Windows that fail to decode are
// reported and skipped.
func (cmd *showCmd) samples() ([]series.Sample, error) {
	if cmd.category == "" {
		return nil, errors.NewMissingField("category")
	}
	from, to, err := timeRange(cmd.from, cmd.to)
	if err != nil {
		return nil, err
	}

	catalog, err := archive.NewCatalog(cmd.dir, cmd.prefix, 0)
	if err != nil {
		return nil, err
	}
	entries, err := catalog.Between(from, to)
	if err != nil {
		return nil, err
	}

	lowMs, highMs := from.UnixMilli(), to.UnixMilli()
	var out []series.Sample
	for _, e := range entries {
		win, err := catalog.Open(e)
		if err != nil {
			warnf("skipping %s: %v", e.Name(), err)
			continue
		}
		for _, s := range win.Series[cmd.category] {
			if s.TimestampMs > lowMs && s.TimestampMs <= highMs {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (cmd *showCmd) fields(samples []series.Sample) []string {
	if cmd.field != "" {
		return []string{cmd.field}
	}
	return series.Fields(samples)
}

func (cmd *showCmd) exec(context.Context, []string) error {
	samples, err := cmd.samples()
	if err != nil {
		return err
	}
	fields := cmd.fields(samples)

	header := append([]string{"TIME"}, fields...)
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		row := []string{formatMs(s.TimestampMs)}
		for _, f := range fields {
			if v, ok := s.Value(f); ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "-")
			}
		}
		if n := len(s.Sessions); n > 0 {
			row = append(row, fmt.Sprintf("(%d sessions)", n))
		}
		rows = append(rows, row)
	}
	return newPrinter(cmd.json).table(header, rows, samples)
}

func (cmd *showCmd) summary(context.Context, []string) error {
	samples, err := cmd.samples()
	if err != nil {
		return err
	}

	var out []series.Summary
	var rows [][]string
	for _, f := range cmd.fields(samples) {
		s := series.Summarize(samples, f)
		out = append(out, s)
		rows = append(rows, []string{
			f, fmt.Sprint(s.Count),
			formatFloat(s.Min), formatFloat(s.Avg), formatFloat(s.Max),
			formatFloat(s.P50), formatFloat(s.P95), formatFloat(s.P99),
		})
	}
	header := []string{"FIELD", "COUNT", "MIN", "AVG", "MAX", "P50", "P95", "P99"}
	return newPrinter(cmd.json).table(header, rows, out)
}
