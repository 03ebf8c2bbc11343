package detect

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Yamato-Security/hayabusa-sub001/core"
)

// MissingFieldValue is rendered for placeholders that resolve to nothing.
const MissingFieldValue = "n/a"

var placeholderPattern = regexp.MustCompile(`%([A-Za-z0-9_.]+)%`)

// RenderMessage fills the %Field% placeholders of the rule's message template.
// Placeholders resolve against the evidence first, then the record's fields,
// then the record's system metadata (EventID, Channel, Computer, Provider).
// An empty template renders as the rule's display name.
func RenderMessage(rule core.Rule, rec *core.Record, evidence core.Evidence) string {
	tmpl := strings.TrimSpace(rule.Message)
	if tmpl == "" {
		return rule.DisplayName()
	}
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := evidence[name]; ok {
			return v
		}
		if v, ok := rec.Field(name); ok {
			return v
		}
		if v, ok := systemField(rec, name); ok {
			return v
		}
		return MissingFieldValue
	})
}

func systemField(rec *core.Record, name string) (string, bool) {
	if rec == nil {
		return "", false
	}
	switch name {
	case "EventID":
		return rec.EventType, true
	case "Channel":
		return rec.System.Channel, rec.System.Channel != ""
	case "Computer":
		return rec.System.Computer, rec.System.Computer != ""
	case "Provider":
		return rec.System.Provider, rec.System.Provider != ""
	case "RecordID":
		return strconv.FormatUint(rec.System.RecordID, 10), rec.System.RecordID != 0
	}
	return "", false
}
