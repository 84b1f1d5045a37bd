// Package transport sends encoded requests over a pooled, TLS-capable HTTP client.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ibs-source/logship/internal/encoding"
	"github.com/ibs-source/logship/internal/log"
)

// maxResponseBody bounds how much of a response body is kept in memory
const maxResponseBody = 64 * 1024

// errorBodyLimit bounds the body excerpt carried in error messages
const errorBodyLimit = 512

// Settings configures the HTTP client
type Settings struct {
	TLS             TLSSettings
	DialTimeout     time.Duration
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Sender sends one request once. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, req *encoding.Request) (*Response, error)
}

// Client is a Sender backed by net/http. Its connection pool is shared by
// every request of a sink instance.
type Client struct {
	http *http.Client
	log  *log.Logger
}

// Ensure Client implements Sender
var _ Sender = (*Client)(nil)

// NewClient creates an HTTP client with its own connection pool
func NewClient(s Settings, logger *log.Logger) (*Client, error) {
	tlsConfig, err := NewTLSConfig(s.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	dialTimeout := s.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	idle := s.IdleConnTimeout
	if idle <= 0 {
		idle = 90 * time.Second
	}

	rt := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:     tlsConfig,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        max(s.MaxConnsPerHost, 1) * 2,
		MaxIdleConnsPerHost: max(s.MaxConnsPerHost, 1),
		MaxConnsPerHost:     s.MaxConnsPerHost,
		IdleConnTimeout:     idle,
		TLSHandshakeTimeout: dialTimeout,
	}

	return &Client{
		http: &http.Client{Transport: rt},
		log:  logger,
	}, nil
}

// Send performs a single attempt. Non-2xx statuses are returned as a
// Response, not an error; only transport failures produce errors.
func (c *Client) Send(ctx context.Context, req *encoding.Request) (*Response, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Debug("failed to close response body: %v", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Close releases idle pooled connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// StatusError reports a non-2xx response
type StatusError struct {
	StatusCode int
	Body       []byte
}

// NewStatusError captures resp as an error
func NewStatusError(resp *Response) *StatusError {
	return &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned unexpected status: %d %s body: %s",
		e.StatusCode, http.StatusText(e.StatusCode), Truncate(e.Body, errorBodyLimit))
}

// Retryable reports whether the status is expected to be transient
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsStatus reports whether err wraps a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// IsSuccess reports whether code is a 2xx status
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

// Truncate returns body as a string of at most limit bytes, marking the cut
func Truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "...(truncated)"
}
