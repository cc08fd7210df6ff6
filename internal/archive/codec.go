package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/ITNoesis/pas/internal/errors"
)

// Codec encodes windows to and from one on-disk format.
type Codec interface {
	// Format is the config name of the format ("json", "parquet").
	Format() string

	// Ext is the file extension including the leading dot.
	Ext() string

	Encode(w io.Writer, win *Window) error
	Decode(data []byte) (*Window, error)
}

// NewCodec returns the codec for a format and compression from the
// configuration. Compression only applies to json; parquet files compress
// their column chunks with zstd unless compression is "none".
func NewCodec(format, compression string) (Codec, error) {
	zst := compression == "zstd"
	if !zst && compression != "none" && compression != "" {
		return nil, fmt.Errorf("compression %q: %w", compression, errors.ErrInvalidConfig)
	}

	switch format {
	case "json":
		return &jsonCodec{zstd: zst}, nil
	case "parquet":
		return &parquetCodec{zstd: zst}, nil
	default:
		return nil, fmt.Errorf("%q: %w", format, errors.ErrUnknownFormat)
	}
}

// CodecForPath selects the codec by file extension.
func CodecForPath(path string) (Codec, error) {
	switch {
	case strings.HasSuffix(path, extJSONZstd):
		return &jsonCodec{zstd: true}, nil
	case strings.HasSuffix(path, extJSON):
		return &jsonCodec{}, nil
	case strings.HasSuffix(path, extParquet):
		return &parquetCodec{zstd: true}, nil
	default:
		return nil, fmt.Errorf("%s: %w", path, errors.ErrUnsupportedFile)
	}
}
