package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/ITNoesis/pas/internal/archive"
)

type listCmd struct {
	archiveFlags
	windows bool
}

func newListCmd() *ffcli.Command {
	args := &listCmd{}

	set := flag.NewFlagSet("list", flag.ExitOnError)
	args.register(set)
	set.BoolVar(&args.windows, "windows", false, "decode every file and show sample counts")

	return &ffcli.Command{
		Name:       "list",
		Exec:       args.exec,
		ShortUsage: "list [-dir DIR] [-windows]",
		ShortHelp:  "List archived windows, oldest first",
		FlagSet:    set,
	}
}

type listEntry struct {
	File       string    `json:"file"`
	Start      time.Time `json:"start"`
	Format     string    `json:"format"`
	Size       int64     `json:"size"`
	Categories []string  `json:"categories,omitempty"`
	Samples    int       `json:"samples,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (cmd *listCmd) exec(context.Context, []string) error {
	catalog, err := archive.NewCatalog(cmd.dir, cmd.prefix, 0)
	if err != nil {
		return err
	}
	entries, err := catalog.List()
	if err != nil {
		return err
	}

	out := make([]listEntry, 0, len(entries))
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		le := listEntry{
			File:   e.Name(),
			Start:  e.Start,
			Format: e.Codec.Format(),
			Size:   e.Size,
		}
		if cmd.windows {
			if win, err := catalog.Open(e); err != nil {
				le.Error = err.Error()
			} else {
				le.Categories = win.Categories()
				le.Samples = win.NumSamples()
			}
		}
		out = append(out, le)

		row := []string{le.File, le.Start.Format(time.RFC3339), le.Format, fmt.Sprint(le.Size)}
		if cmd.windows {
			row = append(row, fmt.Sprint(le.Samples), le.Error)
		}
		rows = append(rows, row)
	}

	header := []string{"FILE", "START", "FORMAT", "BYTES"}
	if cmd.windows {
		header = append(header, "SAMPLES", "ERROR")
	}
	return newPrinter(cmd.json).table(header, rows, out)
}
