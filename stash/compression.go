package stash

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the algorithm used for stash backing files.
type Compression uint8

const (
	// CompressionLZ4 is the default: fast enough to keep external sorting
	// IO-bound rather than CPU-bound.
	CompressionLZ4 Compression = iota
	// CompressionZstd trades CPU for a better ratio; useful when the work
	// directory is on slow or constrained storage.
	CompressionZstd
	// CompressionNone stores rows uncompressed.
	CompressionNone
)

// String returns the stable name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// newCompressor wraps w in a frame encoder for the chosen algorithm.
// The returned closer finishes the frame without closing w.
func newCompressor(w io.Writer, c Compression) (io.Writer, func() error, error) {
	switch c {
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		return zw, zw.Close, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, nil, err
		}
		return zw, zw.Close, nil
	case CompressionNone:
		return w, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("stash: unsupported compression %s", c)
	}
}

// newDecompressor wraps r in a frame decoder for the chosen algorithm.
func newDecompressor(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case CompressionNone:
		return r, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("stash: unsupported compression %s", c)
	}
}
