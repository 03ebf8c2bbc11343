package timeline

import (
	"testing"
	"time"

	"github.com/Yamato-Security/hayabusa-sub001/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionKeys(t *testing.T) {
	f := &core.Finding{
		Source:    "security",
		EventType: "4688",
		Channel:   "Security",
		Computer:  "DC01.corp.local",
		Timestamp: time.Date(2024, 3, 1, 13, 47, 12, 0, time.FixedZone("JST", 9*3600)),
	}

	tests := []struct {
		name string
		dim  Dimension
		want string
	}{
		{"source", SourceDimension(), "security"},
		{"event type", EventTypeDimension(), "security/4688"},
		{"channel", ChannelDimension(), "Security"},
		{"computer", ComputerDimension(), "dc01.corp.local"},
		{"hour bucket in UTC", TimeBucketDimension{Bucket: time.Hour}, "2024-03-01T04:00:00Z"},
		{"day bucket", TimeBucketDimension{Bucket: 24 * time.Hour}, "2024-03-01T00:00:00Z"},
		{"zero bucket uses default", TimeBucketDimension{}, "2024-03-01T04:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := tt.dim.Key(f)
			require.True(t, ok)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestDimensionKeys_MissingValues(t *testing.T) {
	empty := &core.Finding{}
	for _, d := range []Dimension{SourceDimension(), EventTypeDimension(), ChannelDimension(), ComputerDimension(), TimeBucketDimension{}} {
		_, ok := d.Key(empty)
		assert.False(t, ok, d.Name())
	}
}

func TestParseDimensions(t *testing.T) {
	dims, err := ParseDimensions(nil, 0)
	require.NoError(t, err)
	var names []string
	for _, d := range dims {
		names = append(names, d.Name())
	}
	assert.Equal(t, DefaultDimensions, names)

	dims, err = ParseDimensions([]string{" Channel", "channel", "time_bucket"}, 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, dims, 2)
	assert.Equal(t, ChannelDimension(), dims[0])
	assert.Equal(t, TimeBucketDimension{Bucket: 15 * time.Minute}, dims[1])

	_, err = ParseDimensions([]string{"computer", "user"}, time.Hour)
	assert.ErrorContains(t, err, `"user"`)
}
