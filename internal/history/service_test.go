package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ITNoesis/pas/internal/archive"
	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/series"
)

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func ms(d time.Duration) int64 { return base.Add(d).UnixMilli() }

func writeParquet(t *testing.T, dir string, win *archive.Window) {
	t.Helper()
	codec, err := archive.NewCodec("parquet", "zstd")
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, archive.FileName("pas", win.Low, codec.Ext())))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := codec.Encode(f, win); err != nil {
		t.Fatal(err)
	}
}

func fixture(t *testing.T) (string, *Service) {
	t.Helper()
	dir := t.TempDir()

	writeParquet(t, dir, &archive.Window{
		Low:  base,
		High: base.Add(time.Hour),
		Series: map[string][]series.Sample{
			"database": {
				{TimestampMs: ms(time.Minute), Values: map[string]float64{"xact_commit": 10}},
				{TimestampMs: ms(2 * time.Minute), Values: map[string]float64{"xact_commit": 20}},
			},
			"activity": {
				{TimestampMs: ms(time.Minute), Sessions: []series.Session{
					{PID: 1, WaitClass: "CPU", Query: "select 1"},
					{PID: 2, WaitClass: "IO", Query: "select 2"},
				}},
				{TimestampMs: ms(2 * time.Minute), Sessions: []series.Session{
					{PID: 1, WaitClass: "CPU", Query: "select 1"},
				}},
			},
		},
	})

	svc, err := New(Options{Dir: dir, Prefix: "pas"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return dir, svc
}

func TestValues(t *testing.T) {
	_, svc := fixture(t)

	points, err := svc.Values(context.Background(), "database", "xact_commit", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if len(points) != 2 || points[0].Value != 10 || points[1].TimestampMs != ms(2*time.Minute) {
		t.Errorf("unexpected points %+v", points)
	}

	points, _ = svc.Values(context.Background(), "database", "xact_commit", base.Add(time.Minute), base.Add(time.Hour))
	if len(points) != 1 {
		t.Errorf("lower bound must be exclusive, got %+v", points)
	}
}

func TestJSONOnlyArchive(t *testing.T) {
	dir := t.TempDir()
	codec, err := archive.NewCodec("json", "zstd")
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, archive.FileName("pas", base, codec.Ext())))
	if err != nil {
		t.Fatal(err)
	}
	if err := codec.Encode(f, &archive.Window{Low: base, High: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	svc, err := New(Options{Dir: dir, Prefix: "pas"})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	parquet, other, err := svc.Coverage()
	if err != nil || parquet != 0 || other != 1 {
		t.Fatalf("Coverage = %d, %d, %v; want 0, 1", parquet, other, err)
	}
	if _, err := svc.WaitProfile(context.Background(), "activity", base, base.Add(time.Hour)); !errors.Is(err, errors.ErrNoParquetWindows) {
		t.Errorf("WaitProfile over json archive: expected ErrNoParquetWindows, got %v", err)
	}
	if _, _, err := svc.ExecuteSQL(context.Background(), "SELECT count(*) FROM archive"); !errors.Is(err, errors.ErrNoParquetWindows) {
		t.Errorf("ExecuteSQL over json archive: expected ErrNoParquetWindows, got %v", err)
	}
}

func TestWaitProfile(t *testing.T) {
	_, svc := fixture(t)

	shares, err := svc.WaitProfile(context.Background(), "activity", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("WaitProfile: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 classes, got %+v", shares)
	}
	if shares[0].WaitClass != "CPU" || shares[0].Samples != 2 || shares[0].AAS != 1 {
		t.Errorf("unexpected CPU share %+v", shares[0])
	}
	if shares[1].WaitClass != "IO" || shares[1].AAS != 0.5 {
		t.Errorf("unexpected IO share %+v", shares[1])
	}
}

func TestTopQueries(t *testing.T) {
	_, svc := fixture(t)

	top, err := svc.TopQueries(context.Background(), "activity", base, base.Add(time.Hour), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Query != "select 1" || top[0].Samples != 2 {
		t.Errorf("unexpected top queries %+v", top)
	}
}

func TestExecuteSQL(t *testing.T) {
	_, svc := fixture(t)

	cols, rows, err := svc.ExecuteSQL(context.Background(), "SELECT count(*) AS n FROM archive WHERE kind = 'sample'")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(cols) != 1 || cols[0] != "n" || len(rows) != 1 {
		t.Fatalf("unexpected result %v %v", cols, rows)
	}
	if n, ok := rows[0][0].(int64); !ok || n != 4 {
		t.Errorf("expected 4 sample rows, got %v", rows[0][0])
	}

	stats := svc.Stats()
	if stats.QueriesExecuted != 1 {
		t.Errorf("expected 1 query executed, got %d", stats.QueriesExecuted)
	}
}

func TestEmptyArchive(t *testing.T) {
	svc, err := New(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	points, err := svc.Values(context.Background(), "database", "x", base, base.Add(time.Hour))
	if err != nil || len(points) != 0 {
		t.Errorf("expected no points, got %v (%v)", points, err)
	}
	shares, err := svc.WaitProfile(context.Background(), "activity", base, base.Add(time.Hour))
	if err != nil || len(shares) != 0 {
		t.Errorf("expected no shares, got %v (%v)", shares, err)
	}
}
