// Package history answers questions about archived windows with SQL.
//
// Parquet windows written by the archiver are queried in place with an
// in-memory DuckDB instance. JSON windows cannot be queried; an archive
// holding only JSON windows is reported as ErrNoParquetWindows.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/ITNoesis/pas/config"
	"github.com/ITNoesis/pas/internal/errors"
)

// ArchiveView is the view name ExecuteSQL exposes over all parquet windows.
const ArchiveView = "archive"

// Options configures the history service.
type Options struct {
	Dir         string
	Prefix      string
	MemoryLimit string
}

// Service runs queries over archived parquet windows.
type Service struct {
	mu     sync.Mutex
	db     *sql.DB
	glob   string
	prefix string
	dir    string

	queries atomic.Int64
	rows    atomic.Int64
	errors  atomic.Int64
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// New opens an in-memory DuckDB instance for the archive in opts.Dir.
func New(opts Options) (*Service, error) {
	if opts.Prefix == "" {
		opts.Prefix = config.DefaultArchivePrefix
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = config.DefaultQueryMemoryLimit
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", quote(opts.MemoryLimit))); err != nil {
		db.Close()
		return nil, fmt.Errorf("set memory limit: %w", err)
	}

	return &Service{
		db:     db,
		dir:    opts.Dir,
		prefix: opts.Prefix,
		glob:   filepath.Join(opts.Dir, opts.Prefix+"-*.parquet"),
	}, nil
}

// Close closes the DuckDB instance.
func (s *Service) Close() error {
	return s.db.Close()
}

// Stats returns query statistics.
func (s *Service) Stats() Stats {
	return Stats{
		QueriesExecuted: s.queries.Load(),
		RowsReturned:    s.rows.Load(),
		Errors:          s.errors.Load(),
	}
}

// Coverage counts the window files in the archive directory that queries
// can read (parquet) and those they cannot (json).
func (s *Service) Coverage() (parquet, other int, err error) {
	matches, err := filepath.Glob(s.glob)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "glob %s", s.glob)
	}
	jsonGlob := filepath.Join(s.dir, s.prefix+"-*.json*")
	others, err := filepath.Glob(jsonGlob)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "glob %s", jsonGlob)
	}
	return len(matches), len(others), nil
}

// source returns the read_parquet expression over all windows, or "" when
// the archive holds no window at all.
func (s *Service) source() (string, error) {
	parquet, other, err := s.Coverage()
	if err != nil {
		return "", err
	}
	if parquet == 0 {
		if other > 0 {
			return "", fmt.Errorf("%w: %s holds %d json windows; set archive.format to parquet",
				errors.ErrNoParquetWindows, s.dir, other)
		}
		return "", nil
	}
	return fmt.Sprintf("read_parquet('%s')", quote(s.glob)), nil
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// =============================================================================
// Queries
// =============================================================================

// Point is one value of a field at a time.
type Point struct {
	TimestampMs int64
	Value       float64
}

// Values returns the archived values of category.field with timestamps in
// (from, to], oldest first.
func (s *Service) Values(ctx context.Context, category, field string, from, to time.Time) ([]Point, error) {
	src, err := s.source()
	if err != nil || src == "" {
		return nil, err
	}

	query := `
		SELECT timestamp_ms, value
		FROM ` + src + `
		WHERE kind = 'value'
		  AND category = ?
		  AND field = ?
		  AND timestamp_ms > ?
		  AND timestamp_ms <= ?
		ORDER BY timestamp_ms`

	rows, err := s.query(ctx, query, category, field, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.TimestampMs, &p.Value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.rows.Add(int64(len(points)))
	return points, nil
}

// ClassShare is the activity of one wait class over a time range.
type ClassShare struct {
	WaitClass string
	Samples   int64   // session rows in the class
	AAS       float64 // average active sessions: Samples per sampling tick
}

// WaitProfile aggregates the session rows of category by wait class over
// (from, to], busiest class first.
func (s *Service) WaitProfile(ctx context.Context, category string, from, to time.Time) ([]ClassShare, error) {
	src, err := s.source()
	if err != nil || src == "" {
		return nil, err
	}

	query := `
		WITH w AS (
			SELECT kind, wait_class
			FROM ` + src + `
			WHERE category = ?
			  AND timestamp_ms > ?
			  AND timestamp_ms <= ?
		),
		ticks AS (
			SELECT count(*) AS n FROM w WHERE kind = 'sample'
		)
		SELECT w.wait_class, count(*) AS samples, count(*)::DOUBLE / greatest(ticks.n, 1) AS aas
		FROM w, ticks
		WHERE w.kind = 'session'
		GROUP BY w.wait_class, ticks.n
		ORDER BY samples DESC, w.wait_class`

	rows, err := s.query(ctx, query, category, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClassShare
	for rows.Next() {
		var c ClassShare
		if err := rows.Scan(&c.WaitClass, &c.Samples, &c.AAS); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, c)
	}
	s.rows.Add(int64(len(out)))
	return out, rows.Err()
}

// QueryCount is how often a statement was seen active.
type QueryCount struct {
	Query   string
	Samples int64
}

// TopQueries returns the statements most often seen in session rows of
// category over (from, to].
func (s *Service) TopQueries(ctx context.Context, category string, from, to time.Time, limit int) ([]QueryCount, error) {
	src, err := s.source()
	if err != nil || src == "" {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT query, count(*) AS samples
		FROM ` + src + `
		WHERE kind = 'session'
		  AND category = ?
		  AND query <> ''
		  AND timestamp_ms > ?
		  AND timestamp_ms <= ?
		GROUP BY query
		ORDER BY samples DESC, query
		LIMIT ?`

	rows, err := s.query(ctx, query, category, from.UnixMilli(), to.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryCount
	for rows.Next() {
		var q QueryCount
		if err := rows.Scan(&q.Query, &q.Samples); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, q)
	}
	s.rows.Add(int64(len(out)))
	return out, rows.Err()
}

// ExecuteSQL runs an ad-hoc query. The view "archive" covers every
// parquet window.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]string, [][]any, error) {
	src, err := s.source()
	if err != nil {
		return nil, nil, err
	}
	if src != "" {
		s.mu.Lock()
		_, err = s.db.ExecContext(ctx, "CREATE OR REPLACE VIEW "+ArchiveView+" AS SELECT * FROM "+src)
		s.mu.Unlock()
		if err != nil {
			s.errors.Add(1)
			return nil, nil, fmt.Errorf("create view: %w", err)
		}
	}

	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, values)
	}
	s.rows.Add(int64(len(out)))
	return columns, out, rows.Err()
}

func (s *Service) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	s.queries.Add(1)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.errors.Add(1)
		return nil, fmt.Errorf("query archive: %w", err)
	}
	return rows, nil
}
