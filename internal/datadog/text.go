package datadog

import (
	"fmt"
	"maps"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ibs-source/logship/internal/encoding"
	"github.com/ibs-source/logship/internal/event"
)

// TextEncoder sends the message field of every event as one line
type TextEncoder struct {
	messageKey string
	rules      Rules
	template   requestTemplate
}

// Ensure TextEncoder implements encoding.Encoder
var _ encoding.Encoder[string] = (*TextEncoder)(nil)

func newTextEncoder(messageKey string, rules Rules, template requestTemplate) *TextEncoder {
	return &TextEncoder{messageKey: messageKey, rules: rules, template: template}
}

// EncodeEvent returns the message followed by a newline. Events without a
// message after the rules are applied are dropped.
func (e *TextEncoder) EncodeEvent(ev event.Event) (string, bool) {
	fields := ev.Fields
	if len(e.rules.OnlyFields) > 0 || len(e.rules.ExceptFields) > 0 {
		fields = maps.Clone(fields)
		e.rules.apply(fields)
	}

	v, ok := fields[e.messageKey]
	if !ok || v == nil {
		return "", false
	}
	line, err := textValue(v)
	if err != nil {
		return "", false
	}
	return line + "\n", true
}

// ItemSize is the line length including its newline
func (e *TextEncoder) ItemSize(item string) int {
	return len(item)
}

// BuildRequest concatenates the lines
func (e *TextEncoder) BuildRequest(items []string) (*encoding.Request, error) {
	size := 0
	for _, item := range items {
		size += len(item)
	}
	var sb strings.Builder
	sb.Grow(size)
	for _, item := range items {
		sb.WriteString(item)
	}
	return e.template.build([]byte(sb.String()), len(items))
}

func textValue(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}
