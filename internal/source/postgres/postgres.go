// Package postgres samples PostgreSQL statistics views.
//
// Categories:
//
//	database  cumulative     pg_stat_database totals, key xact_commit
//	bgwriter  cumulative     pg_stat_bgwriter buffer counters, key buffers_alloc
//	sessions  instantaneous  client backends per state
//	waits     instantaneous  non-idle sessions per wait class
//	activity  instantaneous  one record per non-idle session
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/ITNoesis/pas/config"
	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/logging"
	"github.com/ITNoesis/pas/internal/sampler"
	"github.com/ITNoesis/pas/internal/series"
	"github.com/ITNoesis/pas/internal/source"
	"github.com/ITNoesis/pas/internal/waitclass"
)

// Category names.
const (
	CategoryDatabase = "database"
	CategoryBgwriter = "bgwriter"
	CategorySessions = "sessions"
	CategoryWaits    = "waits"
	CategoryActivity = "activity"
)

// Options configures a Source.
type Options struct {
	ConnectTimeout time.Duration
	MaxQueryLength int
	Classifier     waitclass.Classifier
}

// Source samples one PostgreSQL server.
type Source struct {
	db             *sql.DB
	classifier     waitclass.Classifier
	maxQueryLength int
	log            *slog.Logger
}

// Open connects to the server at dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts Options) (*Source, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = config.DefaultConnectTimeout
	}
	if opts.Classifier == nil {
		opts.Classifier = waitclass.Default
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	// One tick issues its queries sequentially.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	pctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: postgres: %v", errors.ErrConnectionFailed, err)
	}

	return &Source{
		db:             db,
		classifier:     opts.Classifier,
		maxQueryLength: opts.MaxQueryLength,
		log:            logging.Component("postgres"),
	}, nil
}

// Name implements sampler.Source.
func (s *Source) Name() string { return "postgres" }

// Close closes the connection pool.
func (s *Source) Close() error { return s.db.Close() }

// Categories implements sampler.Source.
func (s *Source) Categories() []sampler.Category {
	return []sampler.Category{
		{Name: CategoryDatabase, Kind: sampler.Cumulative, KeyMetric: "xact_commit", Fetch: s.fetchDatabase},
		{Name: CategoryBgwriter, Kind: sampler.Cumulative, KeyMetric: "buffers_alloc", Fetch: s.fetchBgwriter},
		{Name: CategorySessions, Kind: sampler.Instantaneous, Fetch: s.fetchSessionStates},
		{Name: CategoryWaits, Kind: sampler.Instantaneous, Fetch: s.fetchWaits},
		{Name: CategoryActivity, Kind: sampler.Instantaneous, Fetch: s.fetchActivity},
	}
}

// =============================================================================
// Cumulative categories
// =============================================================================

var databaseFields = []string{
	"xact_commit", "xact_rollback",
	"blks_read", "blks_hit",
	"tup_returned", "tup_fetched", "tup_inserted", "tup_updated", "tup_deleted",
	"conflicts", "temp_files", "temp_bytes", "deadlocks",
}

var bgwriterFields = []string{"buffers_clean", "maxwritten_clean", "buffers_alloc"}

// sumQuery selects the column totals of view as float8, in fields order.
func sumQuery(view string, fields []string) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = fmt.Sprintf("coalesce(sum(%s), 0)::float8", f)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + view
}

func (s *Source) fetchCounters(ctx context.Context, view string, fields []string) (sampler.Raw, error) {
	values := make([]float64, len(fields))
	dest := make([]any, len(fields))
	for i := range values {
		dest[i] = &values[i]
	}

	if err := s.db.QueryRowContext(ctx, sumQuery(view, fields)).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sampler.Raw{}, fmt.Errorf("%s: %w", view, errors.ErrNoRows)
		}
		return sampler.Raw{}, errors.Wrap(err, view)
	}

	raw := sampler.Raw{Values: make(map[string]float64, len(fields))}
	for i, f := range fields {
		raw.Values[f] = values[i]
	}
	return raw, nil
}

func (s *Source) fetchDatabase(ctx context.Context) (sampler.Raw, error) {
	return s.fetchCounters(ctx, "pg_stat_database", databaseFields)
}

func (s *Source) fetchBgwriter(ctx context.Context) (sampler.Raw, error) {
	return s.fetchCounters(ctx, "pg_stat_bgwriter", bgwriterFields)
}

// =============================================================================
// Session categories
// =============================================================================

const sessionStatesQuery = `
	SELECT coalesce(state, 'unknown'), count(*)::float8
	FROM pg_stat_activity
	WHERE backend_type = 'client backend'
	GROUP BY 1`

func (s *Source) fetchSessionStates(ctx context.Context) (sampler.Raw, error) {
	rows, err := s.db.QueryContext(ctx, sessionStatesQuery)
	if err != nil {
		return sampler.Raw{}, errors.Wrap(err, "pg_stat_activity")
	}
	defer rows.Close()

	values := map[string]float64{"active": 0, "idle": 0, "idle in transaction": 0, "total": 0}
	for rows.Next() {
		var state string
		var n float64
		if err := rows.Scan(&state, &n); err != nil {
			return sampler.Raw{}, fmt.Errorf("scan session state: %w", err)
		}
		values[state] += n
		values["total"] += n
	}
	if err := rows.Err(); err != nil {
		return sampler.Raw{}, err
	}
	return sampler.Raw{Values: values}, nil
}

const activityQuery = `
	SELECT pid,
	       coalesce(usename::text, ''),
	       coalesce(datname::text, ''),
	       coalesce(application_name, ''),
	       coalesce(backend_type, ''),
	       coalesce(state, ''),
	       coalesce(wait_event_type, ''),
	       coalesce(wait_event, ''),
	       coalesce(query, ''),
	       coalesce((extract(epoch FROM clock_timestamp() - query_start) * 1000)::bigint, 0)
	FROM pg_stat_activity
	WHERE pid <> pg_backend_pid()
	  AND state IS DISTINCT FROM 'idle'`

func (s *Source) sessions(ctx context.Context) ([]series.Session, error) {
	rows, err := s.db.QueryContext(ctx, activityQuery)
	if err != nil {
		return nil, errors.Wrap(err, "pg_stat_activity")
	}
	defer rows.Close()

	var out []series.Session
	for rows.Next() {
		var sess series.Session
		err := rows.Scan(
			&sess.PID, &sess.User, &sess.Database, &sess.Application, &sess.BackendType,
			&sess.State, &sess.WaitEventType, &sess.WaitEvent, &sess.Query, &sess.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Query = source.Truncate(sess.Query, s.maxQueryLength)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Source) fetchWaits(ctx context.Context) (sampler.Raw, error) {
	sessions, err := s.sessions(ctx)
	if err != nil {
		return sampler.Raw{}, err
	}
	return sampler.Raw{Values: waitclass.Tally(sessions, s.classifier)}, nil
}

func (s *Source) fetchActivity(ctx context.Context) (sampler.Raw, error) {
	sessions, err := s.sessions(ctx)
	if err != nil {
		return sampler.Raw{}, err
	}
	sessions = waitclass.Apply(sessions, s.classifier)
	return sampler.Raw{
		Values:   map[string]float64{"sessions": float64(len(sessions))},
		Sessions: sessions,
	}, nil
}
