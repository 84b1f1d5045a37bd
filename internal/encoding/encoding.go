// Package encoding defines the contract between the batch driver and a
// destination: per-event item encoding and per-batch request construction.
package encoding

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/ibs-source/logship/internal/event"
)

// Encoder maps events to destination items of type T and a finished batch of
// items to one outbound request.
type Encoder[T any] interface {
	// EncodeEvent returns the item for ev, or false when the destination
	// cannot represent the event. A false result is a silent drop.
	EncodeEvent(ev event.Event) (T, bool)

	// ItemSize returns the contribution of item to the request body size
	ItemSize(item T) int

	// BuildRequest serializes items into one request body, applying framing
	// and compression. It must accept an empty slice (used by healthchecks).
	BuildRequest(items []T) (*Request, error)
}

// Request is an immutable outbound HTTP request. It can be sent any number
// of times; every send gets a fresh body reader.
type Request struct {
	Method string
	URI    string
	Header http.Header
	Body   []byte
	// Events is the number of items encoded in Body
	Events int
}

// HTTPRequest materializes r for one attempt
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URI, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build http request: %w", err)
	}
	for k, values := range r.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.ContentLength = int64(len(r.Body))
	return req, nil
}
