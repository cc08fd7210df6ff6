// pasd samples database activity into memory and archives it to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ITNoesis/pas/internal/archive"
	"github.com/ITNoesis/pas/internal/config"
	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/logging"
	"github.com/ITNoesis/pas/internal/sampler"
	"github.com/ITNoesis/pas/internal/series"
	"github.com/ITNoesis/pas/internal/source/mongo"
	"github.com/ITNoesis/pas/internal/source/postgres"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pasd: %v\n", err)
		if errors.IsValidation(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("pasd", flag.ExitOnError)
	cfgPath := fs.String("config", "pas.yaml", "config file path (yaml or toml)")
	driver := fs.String("driver", "", "source driver: postgres or mongodb")
	dsn := fs.String("dsn", "", "source connection string")
	interval := fs.Duration("interval", 0, "sample interval")
	history := fs.Duration("history", 0, "in-memory history per category")
	archiveDir := fs.String("archive-dir", "", "archive directory")
	archiveFormat := fs.String("archive-format", "", "archive format: json or parquet")
	noArchive := fs.Bool("no-archive", false, "disable archiving")
	restore := fs.Int("restore", 0, "reload the newest N archive windows at startup")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	logJSON := fs.Bool("log-json", false, "log as JSON")

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("PAS")); err != nil {
		return err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// Load config
	cfg, err := config.Read(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || set["config"] {
			return err
		}
		cfg = config.DefaultConfig()
	}

	// CLI overrides
	if set["driver"] {
		cfg.Source.Driver = *driver
	}
	if set["dsn"] {
		cfg.Source.DSN = *dsn
	}
	if set["interval"] {
		cfg.Sampling.Interval = config.Duration(*interval)
	}
	if set["history"] {
		cfg.Sampling.History = config.Duration(*history)
	}
	if set["archive-dir"] {
		cfg.Archive.Dir = *archiveDir
	}
	if set["archive-format"] {
		cfg.Archive.Format = *archiveFormat
	}
	if *noArchive {
		cfg.Archive.Enabled = false
	}
	if set["restore"] {
		cfg.Archive.Restore = *restore
	}
	if set["log-level"] {
		cfg.Logging.Level = *logLevel
	}
	if set["log-json"] {
		cfg.Logging.JSON = *logJSON
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.JSON)
	log := logging.Component("pasd")
	log.Info("pasd starting", "version", Version, "driver", cfg.Source.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Source
	// =========================================================================

	src, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	cats, err := sampler.Filter(src.Categories(), cfg.Source.Categories)
	if err != nil {
		return err
	}

	// =========================================================================
	// Store
	// =========================================================================

	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	store := series.NewStore(cfg.StoreCapacity(), names...)
	log.Info("store ready", "capacity", store.Capacity(), "categories", names)

	if cfg.Archive.Restore > 0 {
		restoreWindows(log, store, cfg)
	}

	// =========================================================================
	// Sampler and archiver
	// =========================================================================

	orch, err := sampler.New(store, cats, &sampler.Config{
		Interval:     cfg.Sampling.Interval.D(),
		FetchTimeout: cfg.FetchTimeout(),
	})
	if err != nil {
		return err
	}

	var arch *archive.Archiver
	if cfg.Archive.Enabled {
		delay := cfg.ArchiveDelay(len(cats))
		held := time.Duration(store.Capacity()) * cfg.Sampling.Interval.D()
		if need := cfg.ArchiveHistoryNeed(len(cats)); held < need {
			return errors.NewValidation("sampling.history",
				fmt.Sprintf("%v holds less than a delayed archive window (%v) for %d categories", held, need, len(cats)))
		}

		codec, err := archive.NewCodec(cfg.Archive.Format, cfg.Archive.Compression)
		if err != nil {
			return err
		}
		arch, err = archive.New(store, &archive.Config{
			Dir:       cfg.Archive.Dir,
			Prefix:    cfg.Archive.Prefix,
			Interval:  cfg.Archive.Interval.D(),
			Tick:      cfg.Archive.Tick.D(),
			Delay:     delay,
			Codec:     codec,
			Retention: cfg.Archive.Retention.D(),
		})
		if err != nil {
			return err
		}
		log.Info("archiving enabled",
			"dir", cfg.Archive.Dir,
			"format", codec.Format(),
			"interval", cfg.Archive.Interval.D(),
			"delay", delay,
			"first_window", arch.HighWater())

		if retention := cfg.Archive.Retention.D(); retention > 0 {
			pending := archive.NewRetention(cfg.Archive.Dir, cfg.Archive.Prefix, cfg.Archive.Interval.D(), retention).DryRun(time.Now())
			log.Info("archive retention",
				"max_age", retention,
				"expired_windows", pending.FilesDeleted,
				"expired_bytes", pending.BytesFreed,
				"kept_windows", pending.FilesKept)
		}
	} else {
		log.Info("archiving disabled")
	}

	// =========================================================================
	// Run
	// =========================================================================

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })
	if arch != nil {
		g.Go(func() error { return arch.Run(gctx) })
	}

	err = g.Wait()

	// Sampling has stopped; windows held open by the delay can be closed.
	if arch != nil && err == nil {
		if _, err = arch.Flush(time.Now()); err != nil {
			log.Error("final archive flush failed", "error", err)
		}
	}

	st := orch.Stats()
	log.Info("pasd stopped",
		"ticks", st.Ticks,
		"missed_ticks", st.MissedTicks,
		"overruns", st.Overruns)
	if arch != nil {
		as := arch.Stats()
		log.Info("archive totals",
			"windows_written", as.WindowsWritten,
			"windows_skipped", as.WindowsSkipped,
			"bytes_written", as.BytesWritten)
	}
	return err
}

func openSource(ctx context.Context, cfg *config.Config) (sampler.Source, error) {
	timeout := cfg.Source.ConnectTimeout.D()
	switch cfg.Source.Driver {
	case "postgres":
		src, err := postgres.Open(ctx, cfg.Source.DSN, postgres.Options{
			ConnectTimeout: timeout,
			MaxQueryLength: cfg.Source.MaxQueryLength,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	case "mongodb":
		src, err := mongo.Open(ctx, cfg.Source.DSN, mongo.Options{
			ConnectTimeout: timeout,
			MaxQueryLength: cfg.Source.MaxQueryLength,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownDriver, cfg.Source.Driver)
	}
}

// restoreWindows reloads the newest archived windows. Failures are logged;
// the daemon starts with whatever could be read.
func restoreWindows(log *slog.Logger, store *series.Store, cfg *config.Config) {
	catalog, err := archive.NewCatalog(cfg.Archive.Dir, cfg.Archive.Prefix, 0)
	if err != nil {
		log.Warn("restore skipped", "error", err)
		return
	}
	entries, err := catalog.Latest(cfg.Archive.Restore)
	if err != nil {
		log.Warn("restore skipped", "error", err)
		return
	}

	start := time.Now()
	report := archive.Load(store, archive.Paths(entries))
	for _, f := range report.Files {
		if f.Err != nil {
			log.Warn("restore failed", "file", f.Path, "error", f.Err)
		}
	}
	log.Info("restored archive",
		"files", report.Loaded,
		"failed", report.Failed,
		"samples", report.Samples,
		"elapsed", time.Since(start))
}
