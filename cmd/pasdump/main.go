// pasdump inspects pas archive directories.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"

	defaults "github.com/ITNoesis/pas/config"
	"github.com/ITNoesis/pas/internal/errors"
)

// archiveFlags are shared by every subcommand.
type archiveFlags struct {
	dir    string
	prefix string
	json   bool
}

func (a *archiveFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&a.dir, "dir", defaults.DefaultArchiveDir, "archive directory")
	fs.StringVar(&a.prefix, "prefix", defaults.DefaultArchivePrefix, "window file prefix")
	fs.BoolVar(&a.json, "json", false, "print JSON even on a terminal")
}

func main() {
	root := ffcli.Command{
		Name:       "pasdump",
		ShortUsage: "pasdump <subcommand> [flags]",
		ShortHelp:  "Inspect and query archived activity windows",
		Subcommands: []*ffcli.Command{
			newListCmd(),
			newShowCmd(),
			newSummaryCmd(),
			newWaitsCmd(),
			newTopCmd(),
			newSQLCmd(),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	if err := root.ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "pasdump: %v\n", err)
			os.Exit(1)
		}
	}
}
