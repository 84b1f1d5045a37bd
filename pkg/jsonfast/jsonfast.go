/*
Package jsonfast offers a minimal JSON builder optimized for low-allocation encoding paths.

It builds flat objects field by field and arrays of pre-encoded elements,
which covers the two shapes the log encoders produce: one object per event
and one array per request body.
*/
package jsonfast

import (
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// Builder is a minimal JSON builder that operates on a reusable byte slice.
// It is not a general-purpose writer: nesting is limited to raw values the
// caller already encoded.
type Builder struct {
	buf   []byte
	first bool
}

// New creates a new builder with initial capacity.
func New(capacity int) *Builder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Builder{
		buf:   make([]byte, 0, capacity),
		first: true,
	}
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.first = true
}

// Bytes returns the underlying buffer (do not modify after use).
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int {
	return len(b.buf)
}

// BeginObject starts a JSON object.
func (b *Builder) BeginObject() {
	b.buf = append(b.buf, '{')
	b.first = true
}

// EndObject ends a JSON object.
func (b *Builder) EndObject() {
	b.buf = append(b.buf, '}')
}

// BeginArray starts a JSON array.
func (b *Builder) BeginArray() {
	b.buf = append(b.buf, '[')
	b.first = true
}

// EndArray ends a JSON array.
func (b *Builder) EndArray() {
	b.buf = append(b.buf, ']')
}

// AddRawElement appends an already-encoded JSON value to the open array.
func (b *Builder) AddRawElement(rawJSON []byte) {
	b.sep()
	b.buf = append(b.buf, rawJSON...)
}

// AddStringField adds a "name":"value" string field with escaping.
func (b *Builder) AddStringField(name, value string) {
	b.key(name)
	b.buf = append(b.buf, '"')
	b.escapeString(value)
	b.buf = append(b.buf, '"')
}

// AddRawJSONField adds a "name":<raw json> field without escaping.
// The value must be valid JSON.
func (b *Builder) AddRawJSONField(name string, rawJSON []byte) {
	b.key(name)
	b.buf = append(b.buf, rawJSON...)
}

// AddIntField adds a "name":int field.
func (b *Builder) AddIntField(name string, v int64) {
	b.key(name)
	b.buf = strconv.AppendInt(b.buf, v, 10)
}

// AddUintField adds a "name":uint field.
func (b *Builder) AddUintField(name string, v uint64) {
	b.key(name)
	b.buf = strconv.AppendUint(b.buf, v, 10)
}

// AddFloatField adds a "name":float field. NaN and infinities have no JSON
// representation and are written as null.
func (b *Builder) AddFloatField(name string, v float64) {
	b.key(name)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		b.buf = append(b.buf, "null"...)
		return
	}
	b.buf = strconv.AppendFloat(b.buf, v, 'g', -1, 64)
}

// AddBoolField adds a "name":true|false field.
func (b *Builder) AddBoolField(name string, v bool) {
	b.key(name)
	b.buf = strconv.AppendBool(b.buf, v)
}

// AddNullField adds a "name":null field.
func (b *Builder) AddNullField(name string) {
	b.key(name)
	b.buf = append(b.buf, "null"...)
}

// AddTimeField adds a "name":"2006-01-02T15:04:05.000Z" field without using
// time.Format. The value is converted to UTC.
func (b *Builder) AddTimeField(name string, t time.Time) {
	b.key(name)
	b.buf = append(b.buf, '"')
	t = t.UTC()
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()
	b.append4(year)
	b.buf = append(b.buf, '-')
	b.append2(int(month))
	b.buf = append(b.buf, '-')
	b.append2(day)
	b.buf = append(b.buf, 'T')
	b.append2(hour)
	b.buf = append(b.buf, ':')
	b.append2(minute)
	b.buf = append(b.buf, ':')
	b.append2(sec)
	b.buf = append(b.buf, '.')
	b.append3(t.Nanosecond() / int(time.Millisecond))
	b.buf = append(b.buf, 'Z', '"')
}

func (b *Builder) key(name string) {
	b.sep()
	b.buf = append(b.buf, '"')
	b.escapeString(name)
	b.buf = append(b.buf, '"', ':')
}

func (b *Builder) sep() {
	if b.first {
		b.first = false
		return
	}
	b.buf = append(b.buf, ',')
}

// escapeString escapes JSON special characters. Invalid UTF-8 becomes
// U+FFFD and U+2028/U+2029 are escaped, as in encoding/json.
func (b *Builder) escapeString(s string) {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			switch {
			case r == utf8.RuneError && size == 1:
				b.buf = append(b.buf, `\ufffd`...)
			case r == '\u2028' || r == '\u2029':
				b.buf = append(b.buf, '\\', 'u', '2', '0', '2', hex[r&0x0f])
			default:
				b.buf = append(b.buf, s[i:i+size]...)
			}
			i += size - 1
			continue
		}
		switch c := s[i]; c {
		case '\\', '"':
			b.buf = append(b.buf, '\\', c)
		case '\b':
			b.buf = append(b.buf, '\\', 'b')
		case '\f':
			b.buf = append(b.buf, '\\', 'f')
		case '\n':
			b.buf = append(b.buf, '\\', 'n')
		case '\r':
			b.buf = append(b.buf, '\\', 'r')
		case '\t':
			b.buf = append(b.buf, '\\', 't')
		default:
			if c < 0x20 {
				b.buf = append(b.buf, '\\', 'u', '0', '0', hex[c>>4], hex[c&0x0f])
			} else {
				b.buf = append(b.buf, c)
			}
		}
	}
}

func (b *Builder) append2(v int) {
	b.buf = append(b.buf, byte('0'+(v/10)%10), byte('0'+v%10))
}

func (b *Builder) append3(v int) {
	b.buf = append(b.buf, byte('0'+(v/100)%10), byte('0'+(v/10)%10), byte('0'+v%10))
}

func (b *Builder) append4(v int) {
	b.buf = append(b.buf,
		byte('0'+(v/1000)%10),
		byte('0'+(v/100)%10),
		byte('0'+(v/10)%10),
		byte('0'+v%10),
	)
}

var hex = "0123456789abcdef"
