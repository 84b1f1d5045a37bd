package datadog

import (
	"net/http"

	"github.com/ibs-source/logship/internal/encoding"
)

// Header names used by the logs intake
const (
	HeaderAPIKey          = "DD-API-KEY"
	ContentTypeJSON       = "application/json"
	ContentTypeText       = "text/plain"
	headerContentType     = "Content-Type"
	headerContentEncoding = "Content-Encoding"
)

// requestTemplate holds what every request of a sink shares
type requestTemplate struct {
	uri         string
	apiKey      string
	contentType string
	compression encoding.Compression
}

// build compresses body and wraps it with the sink headers.
// Content-Length is set from the final body when the request is sent.
func (t requestTemplate) build(body []byte, events int) (*encoding.Request, error) {
	body, err := t.compression.Compress(body)
	if err != nil {
		return nil, err
	}

	header := make(http.Header, 3)
	header.Set(headerContentType, t.contentType)
	header.Set(HeaderAPIKey, t.apiKey)
	if ce := t.compression.ContentEncoding(); ce != "" {
		header.Set(headerContentEncoding, ce)
	}

	return &encoding.Request{
		Method: http.MethodPost,
		URI:    t.uri,
		Header: header,
		Body:   body,
		Events: events,
	}, nil
}
