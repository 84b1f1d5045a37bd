package encoding

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// DefaultGzipLevel matches the level used by the vendor agents
const DefaultGzipLevel = 6

// CompressionKind selects the body transformation
type CompressionKind string

// Supported compression kinds
const (
	CompressionNone CompressionKind = "none"
	CompressionGzip CompressionKind = "gzip"
)

// Compression is an opt-in, per-sink body compression setting
type Compression struct {
	Kind CompressionKind
	// Level is the gzip level (1-9); 0 selects DefaultGzipLevel
	Level int
}

// ParseCompression builds a Compression from its configuration strings
func ParseCompression(kind string, level int) (Compression, error) {
	switch CompressionKind(kind) {
	case "", CompressionNone:
		return Compression{Kind: CompressionNone}, nil
	case CompressionGzip:
		if level < 0 || level > gzip.BestCompression {
			return Compression{}, fmt.Errorf("gzip level must be between 1 and %d, got %d", gzip.BestCompression, level)
		}
		return Compression{Kind: CompressionGzip, Level: level}, nil
	default:
		return Compression{}, fmt.Errorf("unsupported compression type: %s", kind)
	}
}

// ContentEncoding returns the Content-Encoding header value, or "" when the
// body is sent as is
func (c Compression) ContentEncoding() string {
	if c.Kind == CompressionGzip {
		return "gzip"
	}
	return ""
}

// Compress transforms body according to c
func (c Compression) Compress(body []byte) ([]byte, error) {
	switch c.Kind {
	case "", CompressionNone:
		return body, nil
	case CompressionGzip:
		level := c.Level
		if level == 0 {
			level = DefaultGzipLevel
		}
		var buf bytes.Buffer
		buf.Grow(len(body)/2 + 64)
		gw, err := gzip.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		if _, err := gw.Write(body); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := gw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", c.Kind)
	}
}
