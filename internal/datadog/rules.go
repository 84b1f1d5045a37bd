package datadog

import (
	"fmt"
	"time"

	"github.com/ibs-source/logship/internal/config"
)

// Timestamp formats accepted by Rules
const (
	TimestampRFC3339 = "rfc3339"
	TimestampUnix    = "unix"
)

// Keys name the event fields that carry the semantic message, timestamp
// and host. The structured encoding renames them to the intake's names.
type Keys struct {
	Message   string
	Timestamp string
	Host      string
}

// Rules filter event fields before serialization
type Rules struct {
	OnlyFields      []string
	ExceptFields    []string
	TimestampFormat string
}

func rulesFromConfig(cfg config.EncodingConfig) (Rules, error) {
	r := Rules{
		OnlyFields:      cfg.OnlyFields,
		ExceptFields:    cfg.ExceptFields,
		TimestampFormat: cfg.TimestampFormat,
	}
	switch r.TimestampFormat {
	case "":
		r.TimestampFormat = TimestampRFC3339
	case TimestampRFC3339, TimestampUnix:
	default:
		return Rules{}, fmt.Errorf("unknown timestamp format %q", r.TimestampFormat)
	}
	if len(r.OnlyFields) > 0 && len(r.ExceptFields) > 0 {
		return Rules{}, fmt.Errorf("only_fields and except_fields are mutually exclusive")
	}
	return r, nil
}

// apply removes filtered fields from fields in place
func (r Rules) apply(fields map[string]any) {
	if len(r.OnlyFields) > 0 {
		keep := make(map[string]struct{}, len(r.OnlyFields))
		for _, name := range r.OnlyFields {
			keep[name] = struct{}{}
		}
		for name := range fields {
			if _, ok := keep[name]; !ok {
				delete(fields, name)
			}
		}
	}
	for _, name := range r.ExceptFields {
		delete(fields, name)
	}
}

// timestamp converts t according to the configured format
func (r Rules) timestamp(t time.Time) any {
	if r.TimestampFormat == TimestampUnix {
		return t.Unix()
	}
	return t
}

// rename moves fields[from] to fields[to] when present
func rename(fields map[string]any, from, to string) {
	if from == "" || from == to {
		return
	}
	if v, ok := fields[from]; ok {
		delete(fields, from)
		fields[to] = v
	}
}
