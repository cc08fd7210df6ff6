package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"

	defaults "github.com/ITNoesis/pas/config"
	"github.com/ITNoesis/pas/internal/history"
	"github.com/ITNoesis/pas/internal/source"
)

// queryCmd runs DuckDB queries over the parquet windows of an archive.
type queryCmd struct {
	archiveFlags
	category    string
	from        string
	to          string
	limit       int
	memoryLimit string
}

func (cmd *queryCmd) register(fs *flag.FlagSet) {
	cmd.archiveFlags.register(fs)
	fs.StringVar(&cmd.category, "category", "activity", "session category")
	fs.StringVar(&cmd.from, "from", "", "range start: RFC 3339 or duration ago (default 1h)")
	fs.StringVar(&cmd.to, "to", "", "range end: RFC 3339 or duration ago (default now)")
	fs.StringVar(&cmd.memoryLimit, "memory-limit", defaults.DefaultQueryMemoryLimit, "DuckDB memory limit")
}

// open starts a history service over the archive. JSON windows are left
// out of every query, so a mixed archive is reported before querying.
func (cmd *queryCmd) open() (*history.Service, error) {
	svc, err := history.New(history.Options{
		Dir:         cmd.dir,
		Prefix:      cmd.prefix,
		MemoryLimit: cmd.memoryLimit,
	})
	if err != nil {
		return nil, err
	}
	parquet, other, err := svc.Coverage()
	if err != nil {
		svc.Close()
		return nil, err
	}
	if parquet > 0 && other > 0 {
		warnf("%d json windows in %s are not queried", other, cmd.dir)
	}
	return svc, nil
}

func newWaitsCmd() *ffcli.Command {
	args := &queryCmd{}
	set := flag.NewFlagSet("waits", flag.ExitOnError)
	args.register(set)

	return &ffcli.Command{
		Name:       "waits",
		Exec:       args.waits,
		ShortUsage: "waits [-category NAME] [-from T] [-to T]",
		ShortHelp:  "Average active sessions per wait class",
		FlagSet:    set,
	}
}

func newTopCmd() *ffcli.Command {
	args := &queryCmd{}
	set := flag.NewFlagSet("top", flag.ExitOnError)
	args.register(set)
	set.IntVar(&args.limit, "limit", 10, "number of queries")

	return &ffcli.Command{
		Name:       "top",
		Exec:       args.top,
		ShortUsage: "top [-category NAME] [-from T] [-to T] [-limit N]",
		ShortHelp:  "Queries seen in the most session samples",
		FlagSet:    set,
	}
}

func newSQLCmd() *ffcli.Command {
	args := &queryCmd{}
	set := flag.NewFlagSet("sql", flag.ExitOnError)
	args.register(set)

	return &ffcli.Command{
		Name:       "sql",
		Exec:       args.sql,
		ShortUsage: "sql 'SELECT ... FROM archive'",
		ShortHelp:  "Run SQL against the archive view",
		FlagSet:    set,
	}
}

func (cmd *queryCmd) waits(ctx context.Context, _ []string) error {
	from, to, err := timeRange(cmd.from, cmd.to)
	if err != nil {
		return err
	}
	svc, err := cmd.open()
	if err != nil {
		return err
	}
	defer svc.Close()

	shares, err := svc.WaitProfile(ctx, cmd.category, from, to)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(shares))
	for _, s := range shares {
		rows = append(rows, []string{s.WaitClass, fmt.Sprint(s.Samples), fmt.Sprintf("%.2f", s.AAS)})
	}
	return newPrinter(cmd.json).table([]string{"WAIT CLASS", "SAMPLES", "AAS"}, rows, shares)
}

func (cmd *queryCmd) top(ctx context.Context, _ []string) error {
	from, to, err := timeRange(cmd.from, cmd.to)
	if err != nil {
		return err
	}
	svc, err := cmd.open()
	if err != nil {
		return err
	}
	defer svc.Close()

	queries, err := svc.TopQueries(ctx, cmd.category, from, to, cmd.limit)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(queries))
	for _, q := range queries {
		rows = append(rows, []string{fmt.Sprint(q.Samples), oneLine(q.Query, 100)})
	}
	return newPrinter(cmd.json).table([]string{"SAMPLES", "QUERY"}, rows, queries)
}

func (cmd *queryCmd) sql(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return flag.ErrHelp
	}
	svc, err := cmd.open()
	if err != nil {
		return err
	}
	defer svc.Close()

	cols, result, err := svc.ExecuteSQL(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(result))
	objects := make([]map[string]any, 0, len(result))
	for _, r := range result {
		row := make([]string, len(r))
		obj := make(map[string]any, len(r))
		for i, v := range r {
			row[i] = fmt.Sprint(v)
			if i < len(cols) {
				obj[cols[i]] = v
			}
		}
		rows = append(rows, row)
		objects = append(objects, obj)
	}
	return newPrinter(cmd.json).table(cols, rows, objects)
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		s = source.Truncate(s, max-3) + "..."
	}
	return s
}
