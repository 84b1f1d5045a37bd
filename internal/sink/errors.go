package sink

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ibs-source/logship/internal/transport"
)

var (
	// ErrConfigInvalid is returned when a sink cannot be built from its configuration
	ErrConfigInvalid = errors.New("invalid sink configuration")
	// ErrEncodeFatal marks a batch that could not be serialized or compressed
	ErrEncodeFatal = errors.New("batch encoding failed")
	// ErrHealthcheckFailed marks every healthcheck failure
	ErrHealthcheckFailed = errors.New("healthcheck failed")
	// ErrUnauthorized marks a healthcheck rejected for bad credentials
	ErrUnauthorized = errors.New("unauthorized")
)

// healthcheckBodyLimit bounds the response excerpt in unexpected-status errors
const healthcheckBodyLimit = 512

// HealthcheckError is a healthcheck failure carrying the message to show
// the operator verbatim
type HealthcheckError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *HealthcheckError) Error() string { return e.Message }

// Unwrap exposes ErrHealthcheckFailed and the specific kind
func (e *HealthcheckError) Unwrap() []error {
	if e.kind == nil {
		return []error{ErrHealthcheckFailed}
	}
	return []error{ErrHealthcheckFailed, e.kind}
}

// Unauthorized reports a credential failure with message
func Unauthorized(statusCode int, message string) *HealthcheckError {
	return &HealthcheckError{StatusCode: statusCode, Message: message, kind: ErrUnauthorized}
}

// UnexpectedStatus reports a status the destination does not document
func UnexpectedStatus(resp *transport.Response) *HealthcheckError {
	return &HealthcheckError{
		StatusCode: resp.StatusCode,
		Message: fmt.Sprintf("Server returned unexpected error status: %d %s body: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), transport.Truncate(resp.Body, healthcheckBodyLimit)),
	}
}

// HealthInterpreter maps a healthcheck response to nil (healthy) or an error
type HealthInterpreter func(resp *transport.Response) error

// DefaultHealth accepts any 2xx, treats 401/403 as a credential failure
// and anything else as unexpected
func DefaultHealth(resp *transport.Response) error {
	switch {
	case transport.IsSuccess(resp.StatusCode):
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Unauthorized(resp.StatusCode, fmt.Sprintf("authentication failed with status %d", resp.StatusCode))
	default:
		return UnexpectedStatus(resp)
	}
}
