package detect

import (
	"github.com/Yamato-Security/hayabusa-sub001/core"
)

// Handler inspects a record and reports the evidence it observed. Handlers are
// pure: they read the record, never mutate it, and keep no state between calls.
// A missing field is treated as "not present", never as an error.
type Handler func(rec *core.Record) (core.Evidence, bool)

// Binding ties a rule to the handler that evaluates it for one event type.
type Binding struct {
	EventType string
	RuleID    string
	Handler   Handler
}

// EventSource is implemented once per logging subsystem (Sysmon, Security
// auditing, ...). A source claims one or more channels and exposes the
// handlers for its event types.
type EventSource interface {
	ID() string
	Channels() []string
	Bindings() []Binding
}

// staticSource is an EventSource with a fixed binding table.
type staticSource struct {
	id       string
	channels []string
	bindings []Binding
}

// NewSource returns an EventSource with a fixed binding table.
func NewSource(id string, channels []string, bindings ...Binding) EventSource {
	return &staticSource{id: id, channels: channels, bindings: bindings}
}

func (s *staticSource) ID() string          { return s.id }
func (s *staticSource) Channels() []string  { return s.channels }
func (s *staticSource) Bindings() []Binding { return s.bindings }

// always returns a handler that matches every record and extracts the given
// fields. Fields absent from the record are left out of the evidence.
func always(fields ...string) Handler {
	return func(rec *core.Record) (core.Evidence, bool) {
		return extract(rec, fields...), true
	}
}

// extract copies the named fields that are present on the record.
func extract(rec *core.Record, fields ...string) core.Evidence {
	ev := make(core.Evidence, len(fields))
	for _, name := range fields {
		if v, ok := rec.Field(name); ok {
			ev[name] = v
		}
	}
	return ev
}

// rename copies fields under new names, e.g. NewProcessName -> Image.
func rename(rec *core.Record, ev core.Evidence, mapping map[string]string) core.Evidence {
	for from, to := range mapping {
		if v, ok := rec.Field(from); ok {
			ev[to] = v
		}
	}
	return ev
}
