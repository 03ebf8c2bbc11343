package core

import (
	"time"
)

// Evidence holds the fields a handler extracted from a record.
type Evidence map[string]string

// Finding is produced when a rule matches a record.
type Finding struct {
	RuleID    string    `json:"rule_id"`
	RuleName  string    `json:"rule_name,omitempty"`
	Severity  Severity  `json:"severity,omitempty"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	EventType string    `json:"event_type"`
	Channel   string    `json:"channel,omitempty"`
	Computer  string    `json:"computer,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Evidence  Evidence  `json:"evidence,omitempty"`

	// File and RecordIndex are stamped by the aggregator, which owns its copy.
	File        string `json:"file,omitempty"`
	RecordIndex int    `json:"record_index,omitempty"`
}

// Less orders findings for the timeline: timestamp, then file, record index and
// rule ID, so the order is total and independent of processing order.
func (f *Finding) Less(o *Finding) bool {
	if !f.Timestamp.Equal(o.Timestamp) {
		return f.Timestamp.Before(o.Timestamp)
	}
	if f.File != o.File {
		return f.File < o.File
	}
	if f.RecordIndex != o.RecordIndex {
		return f.RecordIndex < o.RecordIndex
	}
	return f.RuleID < o.RuleID
}
