package archive

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/series"
)

const (
	extJSON     = ".json"
	extJSONZstd = ".json.zst"
)

// jsonDocument is the on-disk layout of a json window. Series holds one
// field per category; Digest is the xxh3 hash of the encoded Series bytes.
type jsonDocument struct {
	Version   int             `json:"version"`
	Collector string          `json:"collector,omitempty"`
	Created   time.Time       `json:"created"`
	LowMs     int64           `json:"low_ms"`
	HighMs    int64           `json:"high_ms"`
	Digest    string          `json:"digest"`
	Series    json.RawMessage `json:"series"`
}

type jsonCodec struct {
	zstd bool
}

func (c *jsonCodec) Format() string { return "json" }

func (c *jsonCodec) Ext() string {
	if c.zstd {
		return extJSONZstd
	}
	return extJSON
}

func (c *jsonCodec) Encode(w io.Writer, win *Window) error {
	payload := win.Series
	if payload == nil {
		payload = map[string][]series.Sample{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}

	doc := jsonDocument{
		Version:   FormatVersion,
		Collector: win.Collector,
		Created:   win.Created.UTC(),
		LowMs:     win.Low.UnixMilli(),
		HighMs:    win.High.UnixMilli(),
		Digest:    digest(raw),
		Series:    raw,
	}
	data, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if !c.zstd {
		_, err = w.Write(data)
		return err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("compress: %w", err)
	}
	return enc.Close()
}

func (c *jsonCodec) Decode(data []byte) (*Window, error) {
	if c.zstd {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()

		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, errors.NewCorrupt("zstd", err)
		}
	}

	var doc jsonDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.NewCorrupt("json", err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("version %d: %w", doc.Version, errors.ErrUnsupportedFile)
	}
	if len(doc.Series) == 0 {
		return nil, errors.NewCorrupt("json", fmt.Errorf("no series"))
	}
	if got := digest(doc.Series); got != doc.Digest {
		return nil, fmt.Errorf("have %s, computed %s: %w", doc.Digest, got, errors.ErrDigestMismatch)
	}

	win := &Window{
		Low:       time.UnixMilli(doc.LowMs),
		High:      time.UnixMilli(doc.HighMs),
		Collector: doc.Collector,
		Created:   doc.Created,
	}
	if err := json.Unmarshal(doc.Series, &win.Series); err != nil {
		return nil, errors.NewCorrupt("series", err)
	}
	if win.Series == nil {
		win.Series = map[string][]series.Sample{}
	}
	return win, nil
}

func digest(b []byte) string {
	return strconv.FormatUint(xxh3.Hash(b), 16)
}
