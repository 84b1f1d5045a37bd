package datadog

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ibs-source/logship/internal/encoding"
	"github.com/ibs-source/logship/internal/event"
	"github.com/ibs-source/logship/pkg/jsonfast"
)

// Field names expected by the logs intake
const (
	fieldMessage = "message"
	fieldDate    = "date"
	fieldHost    = "host"
)

// JSONEncoder encodes every event as one JSON object and a batch as a JSON
// array of those objects
type JSONEncoder struct {
	keys     Keys
	rules    Rules
	template requestTemplate
	builders sync.Pool
}

// Ensure JSONEncoder implements encoding.Encoder
var _ encoding.Encoder[[]byte] = (*JSONEncoder)(nil)

func newJSONEncoder(keys Keys, rules Rules, template requestTemplate) *JSONEncoder {
	e := &JSONEncoder{keys: keys, rules: rules, template: template}
	e.builders.New = func() any { return jsonfast.New(512) }
	return e
}

// EncodeEvent renames the semantic fields, applies the rules and serializes
// the remaining fields with sorted keys. Events holding values that cannot be
// represented as JSON are dropped.
func (e *JSONEncoder) EncodeEvent(ev event.Event) ([]byte, bool) {
	fields := maps.Clone(ev.Fields)
	if fields == nil {
		fields = make(map[string]any)
	}
	rename(fields, e.keys.Message, fieldMessage)
	rename(fields, e.keys.Timestamp, fieldDate)
	rename(fields, e.keys.Host, fieldHost)
	e.rules.apply(fields)

	b := e.builders.Get().(*jsonfast.Builder)
	defer e.builders.Put(b)
	b.Reset()

	b.BeginObject()
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if err := e.addField(b, name, fields[name]); err != nil {
			return nil, false
		}
	}
	b.EndObject()

	return slices.Clone(b.Bytes()), true
}

// jsonArrayClose is the closing bracket of a request body. ItemSize covers
// the opening bracket and the separators, so batches reserve it up front.
const jsonArrayClose = 1

// ItemSize counts the separator each element needs inside the array
func (e *JSONEncoder) ItemSize(item []byte) int {
	return len(item) + 1
}

// BuildRequest frames items as a JSON array
func (e *JSONEncoder) BuildRequest(items [][]byte) (*encoding.Request, error) {
	size := 2
	for _, item := range items {
		size += len(item) + 1
	}
	b := jsonfast.New(size)
	b.BeginArray()
	for _, item := range items {
		b.AddRawElement(item)
	}
	b.EndArray()
	return e.template.build(b.Bytes(), len(items))
}

func (e *JSONEncoder) addField(b *jsonfast.Builder, name string, value any) error {
	if t, ok := value.(time.Time); ok {
		value = e.rules.timestamp(t)
	}

	switch v := value.(type) {
	case nil:
		b.AddNullField(name)
	case string:
		b.AddStringField(name, v)
	case []byte:
		b.AddStringField(name, string(v))
	case bool:
		b.AddBoolField(name, v)
	case int:
		b.AddIntField(name, int64(v))
	case int32:
		b.AddIntField(name, int64(v))
	case int64:
		b.AddIntField(name, v)
	case uint:
		b.AddUintField(name, uint64(v))
	case uint32:
		b.AddUintField(name, uint64(v))
	case uint64:
		b.AddUintField(name, v)
	case float32:
		b.AddFloatField(name, float64(v))
	case float64:
		b.AddFloatField(name, v)
	case time.Time:
		b.AddTimeField(name, v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		b.AddRawJSONField(name, raw)
	}
	return nil
}
