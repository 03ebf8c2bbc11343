package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/Yamato-Security/hayabusa-sub001/core"
)

// Dimension groups findings for the snapshot, e.g. by computer or by hour.
// Key reports false for findings the dimension does not apply to.
type Dimension interface {
	Name() string
	Key(f *core.Finding) (string, bool)
}

// Dimension names accepted by ParseDimensions
const (
	DimensionSource     = "source"
	DimensionEventType  = "event_type"
	DimensionChannel    = "channel"
	DimensionComputer   = "computer"
	DimensionTimeBucket = "time_bucket"
)

// DefaultDimensions are used when none are configured.
var DefaultDimensions = []string{DimensionEventType, DimensionComputer, DimensionTimeBucket}

// DefaultBucket is the default width of a time bucket.
const DefaultBucket = time.Hour

// fieldDimension groups by one finding attribute, selected by name.
type fieldDimension struct {
	name string
}

func (d fieldDimension) Name() string { return d.name }

func (d fieldDimension) Key(f *core.Finding) (string, bool) {
	var k string
	switch d.name {
	case DimensionSource:
		k = f.Source
	case DimensionEventType:
		if f.EventType != "" {
			k = f.Source + "/" + f.EventType
		}
	case DimensionChannel:
		k = f.Channel
	case DimensionComputer:
		k = strings.ToLower(f.Computer)
	}
	return k, k != ""
}

// SourceDimension groups by event source ID.
func SourceDimension() Dimension { return fieldDimension{name: DimensionSource} }

// EventTypeDimension groups by source and event type, e.g. "security/4688".
func EventTypeDimension() Dimension { return fieldDimension{name: DimensionEventType} }

// ChannelDimension groups by event log channel.
func ChannelDimension() Dimension { return fieldDimension{name: DimensionChannel} }

// ComputerDimension groups by host name, case-insensitively.
func ComputerDimension() Dimension { return fieldDimension{name: DimensionComputer} }

// TimeBucketDimension groups by the start of the UTC time bucket containing
// the finding. Findings without a timestamp are not counted.
type TimeBucketDimension struct {
	Bucket time.Duration
}

func (d TimeBucketDimension) Name() string { return DimensionTimeBucket }

func (d TimeBucketDimension) Key(f *core.Finding) (string, bool) {
	if f.Timestamp.IsZero() {
		return "", false
	}
	bucket := d.Bucket
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return f.Timestamp.UTC().Truncate(bucket).Format(time.RFC3339), true
}

// ParseDimensions resolves dimension names. An empty list selects
// DefaultDimensions.
func ParseDimensions(names []string, bucket time.Duration) ([]Dimension, error) {
	if len(names) == 0 {
		names = DefaultDimensions
	}
	seen := make(map[string]struct{}, len(names))
	dims := make([]Dimension, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		switch name {
		case DimensionSource:
			dims = append(dims, SourceDimension())
		case DimensionEventType:
			dims = append(dims, EventTypeDimension())
		case DimensionChannel:
			dims = append(dims, ChannelDimension())
		case DimensionComputer:
			dims = append(dims, ComputerDimension())
		case DimensionTimeBucket:
			dims = append(dims, TimeBucketDimension{Bucket: bucket})
		default:
			return nil, fmt.Errorf("unknown timeline dimension %q", name)
		}
	}
	return dims, nil
}
