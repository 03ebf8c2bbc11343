package ingest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Yamato-Security/hayabusa-sub001/core"

	json "github.com/goccy/go-json"
)

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// recordFromMap builds a Record from one decoded document. Two layouts are
// accepted: the flat layout
//
//	{"event_type": 4688, "system": {"channel": "Security", ...}, "fields": {...}}
//
// and the nested layout emitted by EVTX-to-JSON converters
//
//	{"Event": {"System": {"EventID": 4688, "Channel": "Security", ...}, "EventData": {...}}}
func recordFromMap(doc map[string]any) (*core.Record, error) {
	if event, ok := asMap(doc["Event"]); ok {
		return evtxRecord(event)
	}
	return flatRecord(doc)
}

func flatRecord(doc map[string]any) (*core.Record, error) {
	eventType, ok := stringify(doc["event_type"])
	if !ok || strings.TrimSpace(eventType) == "" {
		return nil, errors.New("missing event_type")
	}

	var sys core.SystemMetadata
	if m, ok := asMap(doc["system"]); ok {
		sys.Provider, _ = stringify(m["provider"])
		sys.Channel, _ = stringify(m["channel"])
		sys.Computer, _ = stringify(m["computer"])
		if v, ok := m["timestamp"]; ok && v != nil {
			ts, err := parseTime(v)
			if err != nil {
				return nil, err
			}
			sys.Timestamp = ts
		}
		if v, ok := m["record_id"]; ok && v != nil {
			id, err := parseUint(v)
			if err != nil {
				return nil, fmt.Errorf("invalid record_id: %w", err)
			}
			sys.RecordID = id
		}
	}

	fields := make(map[string]string)
	if m, ok := asMap(doc["fields"]); ok {
		flattenInto(fields, "", m)
	}
	return core.NewRecord(strings.TrimSpace(eventType), sys, fields), nil
}

func evtxRecord(event map[string]any) (*core.Record, error) {
	system, ok := asMap(event["System"])
	if !ok {
		return nil, errors.New("missing Event.System")
	}
	eventType, ok := textValue(system["EventID"])
	if !ok || strings.TrimSpace(eventType) == "" {
		return nil, errors.New("missing Event.System.EventID")
	}

	var sys core.SystemMetadata
	sys.Provider, _ = attribute(system["Provider"], "Name")
	sys.Channel, _ = textValue(system["Channel"])
	sys.Computer, _ = textValue(system["Computer"])
	if st, ok := attribute(system["TimeCreated"], "SystemTime"); ok {
		ts, err := parseTime(st)
		if err != nil {
			return nil, err
		}
		sys.Timestamp = ts
	}
	if v, ok := system["EventRecordID"]; ok && v != nil {
		id, err := parseUint(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EventRecordID: %w", err)
		}
		sys.RecordID = id
	}

	fields := make(map[string]string)
	for _, section := range []string{"EventData", "UserData"} {
		if m, ok := asMap(event[section]); ok {
			flattenInto(fields, "", m)
		}
	}
	return core.NewRecord(strings.TrimSpace(eventType), sys, fields), nil
}

// flattenInto copies leaf values into dst keyed by their own name. Nested
// containers such as UserData/LogFileCleared/SubjectUserName flatten to
// SubjectUserName. Keys are visited in sorted order and the first value wins,
// so collisions resolve deterministically.
func flattenInto(dst map[string]string, name string, v any) {
	if m, ok := asMap(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "#attributes" {
				continue
			}
			child := k
			if k == "#text" {
				child = name
			}
			flattenInto(dst, child, m[k])
		}
		return
	}
	if name == "" {
		return
	}
	if _, exists := dst[name]; exists {
		return
	}
	if s, ok := stringify(v); ok {
		dst[name] = s
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := stringify(k)
			if !ok {
				continue
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

// textValue returns a scalar, or the "#text" member of an element that also
// carries attributes.
func textValue(v any) (string, bool) {
	if m, ok := asMap(v); ok {
		return stringify(m["#text"])
	}
	return stringify(v)
}

// attribute returns an XML attribute rendered under "#attributes". A plain
// scalar is returned as-is.
func attribute(v any, name string) (string, bool) {
	m, ok := asMap(v)
	if !ok {
		return stringify(v)
	}
	if attrs, ok := asMap(m["#attributes"]); ok {
		return stringify(attrs[name])
	}
	return stringify(m[name])
}

// stringify renders a decoded scalar as the string form used in Record fields.
// Integral numbers print without a fraction so event IDs compare as strings.
func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), true
	case json.Number:
		return x.String(), true
	case map[string]any, map[any]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	case fmt.Stringer:
		return x.String(), true
	}
	return fmt.Sprint(v), true
}

func parseTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", x)
	}
	s, ok := stringify(v)
	if !ok {
		return time.Time{}, errors.New("empty timestamp")
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %v", v)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

func parseUint(v any) (uint64, error) {
	s, ok := stringify(v)
	if !ok {
		return 0, errors.New("empty value")
	}
	return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
}
