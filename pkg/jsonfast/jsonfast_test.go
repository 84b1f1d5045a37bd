package jsonfast

import (
	"encoding/json"
	"math"
	"testing"
	"time"
	"unicode/utf8"
)

func TestNew(t *testing.T) {
	t.Run("with positive capacity", func(t *testing.T) {
		b := New(512)
		if cap(b.buf) < 512 {
			t.Errorf("Expected capacity >= 512, got %d", cap(b.buf))
		}
	})

	t.Run("with zero capacity", func(t *testing.T) {
		b := New(0)
		if cap(b.buf) < 256 {
			t.Errorf("Expected default capacity >= 256, got %d", cap(b.buf))
		}
	})
}

func TestReset(t *testing.T) {
	b := New(64)
	b.BeginObject()
	b.AddStringField("k", "v")
	b.EndObject()

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Expected empty buffer after reset, got %q", b.Bytes())
	}

	b.BeginObject()
	b.AddStringField("a", "b")
	b.EndObject()
	if got := string(b.Bytes()); got != `{"a":"b"}` {
		t.Errorf("Expected reuse after reset to produce clean object, got %s", got)
	}
}

func TestObjectFields(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 89*int(time.Millisecond), time.UTC)

	b := New(0)
	b.BeginObject()
	b.AddStringField("message", "hello")
	b.AddIntField("count", -42)
	b.AddUintField("size", 7)
	b.AddFloatField("ratio", 0.5)
	b.AddBoolField("ok", true)
	b.AddNullField("nothing")
	b.AddRawJSONField("nested", []byte(`{"x":[1,2]}`))
	b.AddTimeField("date", ts)
	b.EndObject()

	want := `{"message":"hello","count":-42,"size":7,"ratio":0.5,"ok":true,"nothing":null,` +
		`"nested":{"x":[1,2]},"date":"2026-03-04T05:06:07.089Z"}`
	if got := string(b.Bytes()); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(b.Bytes(), &parsed); err != nil {
		t.Fatalf("builder produced invalid JSON: %v", err)
	}
}

func TestAddFloatField_NonFinite(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(0)
			b.BeginObject()
			b.AddFloatField("v", tt.value)
			b.EndObject()
			if got := string(b.Bytes()); got != `{"v":null}` {
				t.Errorf("expected null for %v, got %s", tt.value, got)
			}
		})
	}
}

func TestAddTimeField_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2026, 1, 1, 2, 0, 0, 0, loc)

	b := New(0)
	b.BeginObject()
	b.AddTimeField("t", ts)
	b.EndObject()

	if got := string(b.Bytes()); got != `{"t":"2026-01-01T00:00:00.000Z"}` {
		t.Errorf("unexpected time encoding: %s", got)
	}
}

func TestArray(t *testing.T) {
	tests := []struct {
		name     string
		elements []string
		want     string
	}{
		{"empty", nil, `[]`},
		{"single", []string{`{"a":1}`}, `[{"a":1}]`},
		{"many", []string{`{"a":1}`, `"x"`, `3`}, `[{"a":1},"x",3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(0)
			b.BeginArray()
			for _, e := range tt.elements {
				b.AddRawElement([]byte(e))
			}
			b.EndArray()
			if got := string(b.Bytes()); got != tt.want {
				t.Errorf("got %s; want %s", got, tt.want)
			}
		})
	}
}

func TestEscapeString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"quotes", `say "hi"`, `say \"hi\"`},
		{"backslash", `a\b`, `a\\b`},
		{"newline and tab", "a\nb\tc", `a\nb\tc`},
		{"carriage return", "a\rb", `a\rb`},
		{"control", "a\x01b", `a\u0001b`},
		{"backspace and formfeed", "\b\f", `\b\f`},
		{"unicode passthrough", "héllo", "héllo"},
		{"invalid utf8", "bad\xff\xfe", `bad\ufffd\ufffd`},
		{"truncated sequence", "a\xe2\x82", `a\ufffd\ufffd`},
		{"line separators", "a\u2028b\u2029", `a\u2028b\u2029`},
		{"emoji", "ok 👍", "ok 👍"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(0)
			b.escapeString(tt.input)
			if got := string(b.Bytes()); got != tt.want {
				t.Errorf("escapeString(%q) = %s; want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestInvalidUTF8ProducesValidJSON(t *testing.T) {
	b := New(0)
	b.BeginObject()
	b.AddStringField("bad\xff", "x\xc3\x28y")
	b.EndObject()

	if !utf8.Valid(b.Bytes()) {
		t.Fatalf("output is not valid UTF-8: %q", b.Bytes())
	}
	var got map[string]string
	if err := json.Unmarshal(b.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got["bad\ufffd"] != "x\ufffd(y" {
		t.Errorf("decoded = %q", got)
	}
}

func TestFieldNamesAreEscaped(t *testing.T) {
	b := New(0)
	b.BeginObject()
	b.AddStringField(`we"ird`, "v")
	b.EndObject()

	var parsed map[string]string
	if err := json.Unmarshal(b.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON %s: %v", b.Bytes(), err)
	}
	if parsed[`we"ird`] != "v" {
		t.Errorf("field name not preserved: %v", parsed)
	}
}

func BenchmarkBuilder(b *testing.B) {
	ts := time.Now()
	builder := New(512)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		builder.Reset()
		builder.BeginObject()
		builder.AddStringField("message", "benchmark message with some length")
		builder.AddStringField("host", "server-01")
		builder.AddTimeField("date", ts)
		builder.AddIntField("pid", 1234)
		builder.EndObject()
	}
}
