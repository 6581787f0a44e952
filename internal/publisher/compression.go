package publisher

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithms accepted for push bodies.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// ValidCompression reports whether algorithm is supported.
func ValidCompression(algorithm string) bool {
	switch algorithm {
	case "", CompressionNone, CompressionGzip, CompressionZstd:
		return true
	}
	return false
}

type compressor struct {
	algorithm string
	encoder   *zstd.Encoder
}

func newCompressor(algorithm string) (*compressor, error) {
	if !ValidCompression(algorithm) {
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
	c := &compressor{algorithm: algorithm}

	if algorithm == CompressionZstd {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		c.encoder = encoder
	}
	return c, nil
}

func (c *compressor) compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		return c.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
	default:
		return data, nil
	}
}

// contentEncoding is the header value for the algorithm, empty for none.
func (c *compressor) contentEncoding() string {
	switch c.algorithm {
	case CompressionGzip, CompressionZstd:
		return c.algorithm
	default:
		return ""
	}
}

func (c *compressor) close() error {
	if c.encoder != nil {
		return c.encoder.Close()
	}
	return nil
}
