package archive

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/series"
)

const extParquet = ".parquet"

// Row kinds of the long-format parquet layout. Every sample starts with a
// sample row, followed by one value row per aggregate field and one
// session row per session.
const (
	rowSample  = "sample"
	rowValue   = "value"
	rowSession = "session"
)

// Metadata keys of parquet windows.
const (
	metaVersion    = "pas.version"
	metaLowMs      = "pas.low_ms"
	metaHighMs     = "pas.high_ms"
	metaCollector  = "pas.collector"
	metaCreated    = "pas.created"
	metaCategories = "pas.categories"
)

// Row is one row of a parquet window. The layout is shared with the
// history package, which queries these files with DuckDB.
type Row struct {
	Category    string  `parquet:"category,dict"`
	Kind        string  `parquet:"kind,dict"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	Field       string  `parquet:"field,dict"`
	Value       float64 `parquet:"value"`

	PID           int64  `parquet:"pid"`
	User          string `parquet:"user,dict"`
	Database      string `parquet:"database,dict"`
	Application   string `parquet:"application,dict"`
	BackendType   string `parquet:"backend_type,dict"`
	State         string `parquet:"state,dict"`
	WaitEventType string `parquet:"wait_event_type,dict"`
	WaitEvent     string `parquet:"wait_event,dict"`
	WaitClass     string `parquet:"wait_class,dict"`
	Query         string `parquet:"query"`
	DurationMs    int64  `parquet:"duration_ms"`
}

type parquetCodec struct {
	zstd bool
}

func (c *parquetCodec) Format() string { return "parquet" }
func (c *parquetCodec) Ext() string    { return extParquet }

func (c *parquetCodec) compression() compress.Codec {
	if c.zstd {
		return &parquet.Zstd
	}
	return &parquet.Uncompressed
}

// Rows flattens a window into parquet rows, categories in sorted order.
func Rows(win *Window) []Row {
	var rows []Row
	for _, cat := range win.Categories() {
		for _, s := range win.Series[cat] {
			rows = append(rows, Row{Category: cat, Kind: rowSample, TimestampMs: s.TimestampMs})
			for _, field := range sortedFields(s.Values) {
				rows = append(rows, Row{
					Category:    cat,
					Kind:        rowValue,
					TimestampMs: s.TimestampMs,
					Field:       field,
					Value:       s.Values[field],
				})
			}
			for _, sess := range s.Sessions {
				rows = append(rows, Row{
					Category:      cat,
					Kind:          rowSession,
					TimestampMs:   s.TimestampMs,
					PID:           sess.PID,
					User:          sess.User,
					Database:      sess.Database,
					Application:   sess.Application,
					BackendType:   sess.BackendType,
					State:         sess.State,
					WaitEventType: sess.WaitEventType,
					WaitEvent:     sess.WaitEvent,
					WaitClass:     sess.WaitClass,
					Query:         sess.Query,
					DurationMs:    sess.DurationMs,
				})
			}
		}
	}
	return rows
}

func (c *parquetCodec) Encode(w io.Writer, win *Window) error {
	pw := parquet.NewGenericWriter[Row](w,
		parquet.Compression(c.compression()),
		parquet.KeyValueMetadata(metaVersion, strconv.Itoa(FormatVersion)),
		parquet.KeyValueMetadata(metaLowMs, strconv.FormatInt(win.Low.UnixMilli(), 10)),
		parquet.KeyValueMetadata(metaHighMs, strconv.FormatInt(win.High.UnixMilli(), 10)),
		parquet.KeyValueMetadata(metaCollector, win.Collector),
		parquet.KeyValueMetadata(metaCreated, win.Created.UTC().Format(time.RFC3339Nano)),
		parquet.KeyValueMetadata(metaCategories, strings.Join(win.Categories(), ",")),
	)

	if rows := Rows(win); len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			pw.Close()
			return fmt.Errorf("write rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func (c *parquetCodec) Decode(data []byte) (win *Window, err error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.NewCorrupt("parquet", err)
	}

	if v, _ := f.Lookup(metaVersion); v != strconv.Itoa(FormatVersion) {
		return nil, fmt.Errorf("version %q: %w", v, errors.ErrUnsupportedFile)
	}
	low, err1 := lookupInt(f, metaLowMs)
	high, err2 := lookupInt(f, metaHighMs)
	if err1 != nil || err2 != nil {
		return nil, errors.NewCorrupt("parquet", fmt.Errorf("window bounds missing"))
	}

	win = &Window{
		Low:    time.UnixMilli(low),
		High:   time.UnixMilli(high),
		Series: make(map[string][]series.Sample),
	}
	win.Collector, _ = f.Lookup(metaCollector)
	if created, ok := f.Lookup(metaCreated); ok {
		win.Created, _ = time.Parse(time.RFC3339Nano, created)
	}
	if cats, ok := f.Lookup(metaCategories); ok && cats != "" {
		for _, cat := range strings.Split(cats, ",") {
			win.Series[cat] = []series.Sample{}
		}
	}

	// The generic reader panics on schema mismatches.
	defer func() {
		if r := recover(); r != nil {
			win, err = nil, errors.NewCorrupt("parquet", fmt.Errorf("%v", r))
		}
	}()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	rows := make([]Row, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(rows)) {
		return nil, errors.NewCorrupt("parquet", err)
	}

	if err := assemble(win, rows[:n]); err != nil {
		return nil, err
	}
	return win, nil
}

// assemble rebuilds samples from rows written by Rows.
func assemble(win *Window, rows []Row) error {
	var (
		cur    *series.Sample
		curCat string
	)
	flush := func() {
		if cur != nil {
			win.Series[curCat] = append(win.Series[curCat], *cur)
			cur = nil
		}
	}

	for i := range rows {
		r := &rows[i]
		switch r.Kind {
		case rowSample:
			flush()
			cur = &series.Sample{TimestampMs: r.TimestampMs}
			curCat = r.Category
		case rowValue, rowSession:
			if cur == nil || r.Category != curCat || r.TimestampMs != cur.TimestampMs {
				return errors.NewCorrupt("parquet", fmt.Errorf("row %d: %s row without sample", i, r.Kind))
			}
			if r.Kind == rowValue {
				if cur.Values == nil {
					cur.Values = make(map[string]float64)
				}
				cur.Values[r.Field] = r.Value
				continue
			}
			cur.Sessions = append(cur.Sessions, series.Session{
				PID:           r.PID,
				User:          r.User,
				Database:      r.Database,
				Application:   r.Application,
				BackendType:   r.BackendType,
				State:         r.State,
				WaitEventType: r.WaitEventType,
				WaitEvent:     r.WaitEvent,
				WaitClass:     r.WaitClass,
				Query:         r.Query,
				DurationMs:    r.DurationMs,
			})
		default:
			return errors.NewCorrupt("parquet", fmt.Errorf("row %d: unknown kind %q", i, r.Kind))
		}
	}
	flush()
	return nil
}

func lookupInt(f *parquet.File, key string) (int64, error) {
	v, ok := f.Lookup(key)
	if !ok {
		return 0, fmt.Errorf("%s missing", key)
	}
	return strconv.ParseInt(v, 10, 64)
}
