// Package event provides the records flowing from an upstream source into the sink and the acknowledgment contract back to it.
package event

import "fmt"

// Token is an opaque marker owned by the upstream source. The sink never
// inspects it; it only hands it back through Acker once the event's batch
// has completed.
type Token any

// Event is a structured record produced upstream
type Event struct {
	Fields map[string]any
	Token  Token
}

// New builds an event from fields and the source token
func New(fields map[string]any, token Token) Event {
	if fields == nil {
		fields = make(map[string]any)
	}
	return Event{Fields: fields, Token: token}
}

// Get returns a field value and whether it was present
func (e Event) Get(key string) (any, bool) {
	if e.Fields == nil {
		return nil, false
	}
	v, ok := e.Fields[key]
	return v, ok
}

// Status is the terminal outcome of a batch as seen by the upstream source
type Status int

const (
	// Delivered means the destination accepted the batch
	Delivered Status = iota
	// Failed means the batch was permanently dropped by the sink (negative ack)
	Failed
	// Rejected means the event was consumed but can never be delivered
	// (unencodable or larger than a batch). Upstream should not redeliver it.
	Rejected
)

// String returns the lowercase status name used in logs, metrics and receipts
func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Acker receives acknowledgments in batch submission order.
// Implementations must not block for long: the sink serializes calls.
type Acker interface {
	Acknowledge(tokens []Token, status Status)
}

// AckerFunc adapts a function to the Acker interface
type AckerFunc func(tokens []Token, status Status)

// Acknowledge calls f(tokens, status)
func (f AckerFunc) Acknowledge(tokens []Token, status Status) {
	f(tokens, status)
}

// NopAcker discards acknowledgments
var NopAcker Acker = AckerFunc(func([]Token, Status) {})
