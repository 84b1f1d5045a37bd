package redis

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ibs-source/logship/internal/event"
)

// Field names added to every event read from a stream
const (
	FieldTimestamp = "timestamp"
	fieldObject    = "object"
)

// Token identifies a stream entry for acknowledgment
type Token struct {
	Stream string
	ID     string
}

// toEvent converts a stream entry to an event. String values are copied as
// is; an "object" value holding JSON is decoded. The entry ID supplies the
// timestamp when the entry has none.
func toEvent(e Entry) event.Event {
	fields := make(map[string]any, len(e.Message.Values)+1)
	for k, v := range e.Message.Values {
		if k == fieldObject {
			fields[k] = decodeObject(v)
			continue
		}
		fields[k] = v
	}
	if _, ok := fields[FieldTimestamp]; !ok {
		if ts, ok := idTime(e.Message.ID); ok {
			fields[FieldTimestamp] = ts
		}
	}
	return event.New(fields, Token{Stream: e.Stream, ID: e.Message.ID})
}

func decodeObject(v any) any {
	s, ok := v.(string)
	if !ok || !looksLikeJSON(s) {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return s
	}
	return decoded
}

// looksLikeJSON reports whether s starts with an object or array
func looksLikeJSON(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	return s != "" && (s[0] == '{' || s[0] == '[')
}

// idTime extracts the millisecond time from a stream entry ID ("<ms>-<seq>")
func idTime(id string) (time.Time, bool) {
	ms, _, found := strings.Cut(id, "-")
	if !found {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(n).UTC(), true
}

// groupTokens groups acknowledgment tokens by stream, keeping their order.
// Tokens of other sources are ignored.
func groupTokens(tokens []event.Token) map[string][]string {
	byStream := make(map[string][]string)
	for _, tok := range tokens {
		t, ok := tok.(Token)
		if !ok {
			continue
		}
		byStream[t.Stream] = append(byStream[t.Stream], t.ID)
	}
	return byStream
}
