package core

import (
	"time"
)

// SystemMetadata is the <System> block shared by every Windows event record.
type SystemMetadata struct {
	Provider  string    `json:"provider" msgpack:"provider"`
	Channel   string    `json:"channel" msgpack:"channel"`
	Computer  string    `json:"computer" msgpack:"computer"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	RecordID  uint64    `json:"record_id,omitempty" msgpack:"record_id,omitempty"`
}

// Record is one normalized event log record as produced by the external parser.
// Records are never mutated after construction; the dispatcher and the rule
// filter only read them.
type Record struct {
	// EventType is the source-defined event identifier (the EventID for
	// Windows channels). Numeric identifiers are carried as decimal strings.
	EventType string            `json:"event_type" msgpack:"event_type"`
	System    SystemMetadata    `json:"system" msgpack:"system"`
	Fields    map[string]string `json:"fields" msgpack:"fields"`
}

// NewRecord creates a record with an initialized field map.
func NewRecord(eventType string, system SystemMetadata, fields map[string]string) *Record {
	if fields == nil {
		fields = make(map[string]string)
	}
	return &Record{
		EventType: eventType,
		System:    system,
		Fields:    fields,
	}
}

// Field returns the named EventData field. A missing field is reported through
// the boolean and is never an error.
func (r *Record) Field(name string) (string, bool) {
	if r == nil || r.Fields == nil {
		return "", false
	}
	v, ok := r.Fields[name]
	return v, ok
}
