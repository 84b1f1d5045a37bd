package encoding

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompression(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		level   int
		want    Compression
		wantErr bool
	}{
		{name: "empty is none", kind: "", want: Compression{Kind: CompressionNone}},
		{name: "none", kind: "none", want: Compression{Kind: CompressionNone}},
		{name: "gzip default level", kind: "gzip", want: Compression{Kind: CompressionGzip}},
		{name: "gzip level 9", kind: "gzip", level: 9, want: Compression{Kind: CompressionGzip, Level: 9}},
		{name: "gzip level too high", kind: "gzip", level: 10, wantErr: true},
		{name: "gzip negative level", kind: "gzip", level: -1, wantErr: true},
		{name: "unknown", kind: "brotli", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCompression(tt.kind, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompress_None(t *testing.T) {
	body := []byte("plain body")
	out, err := Compression{Kind: CompressionNone}.Compress(body)
	require.NoError(t, err)
	assert.Equal(t, body, out)
	assert.Empty(t, Compression{Kind: CompressionNone}.ContentEncoding())
}

func TestCompress_GzipRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte("a log line that repeats\n"), 200)

	for _, level := range []int{0, 1, 6, 9} {
		c := Compression{Kind: CompressionGzip, Level: level}
		out, err := c.Compress(body)
		require.NoError(t, err)
		assert.Less(t, len(out), len(body))
		assert.Equal(t, "gzip", c.ContentEncoding())

		zr, err := gzip.NewReader(bytes.NewReader(out))
		require.NoError(t, err)
		plain, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, body, plain)
	}
}

func TestCompress_InvalidLevel(t *testing.T) {
	_, err := Compression{Kind: CompressionGzip, Level: 42}.Compress([]byte("x"))
	require.Error(t, err)
}

func TestCompress_UnknownKind(t *testing.T) {
	_, err := Compression{Kind: "lzma"}.Compress([]byte("x"))
	require.Error(t, err)
}

func TestRequest_HTTPRequestIsRepeatable(t *testing.T) {
	r := &Request{
		Method: http.MethodPost,
		URI:    "http://example.invalid/v1/input",
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte("line\n"),
		Events: 1,
	}

	for i := 0; i < 2; i++ {
		req, err := r.HTTPRequest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "text/plain", req.Header.Get("Content-Type"))
		assert.Equal(t, int64(5), req.ContentLength)
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, "line\n", string(body))
	}
}

func TestRequest_HTTPRequestBadURI(t *testing.T) {
	r := &Request{Method: http.MethodPost, URI: "://bad"}
	_, err := r.HTTPRequest(context.Background())
	require.Error(t, err)
}
