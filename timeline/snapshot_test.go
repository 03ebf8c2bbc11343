package timeline

import (
	"testing"
	"time"

	"github.com/Yamato-Security/hayabusa-sub001/core"
	"github.com/Yamato-Security/hayabusa-sub001/detect"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finding(ruleID string, minute int) core.Finding {
	return core.Finding{
		RuleID:    ruleID,
		Severity:  core.SeverityMedium,
		Source:    "test",
		EventType: "1",
		Channel:   testChannel,
		Computer:  "WS01",
		Timestamp: baseTime.Add(time.Duration(minute) * time.Minute),
	}
}

func detected(fs ...core.Finding) detect.Result {
	return detect.Result{Source: "test", Outcome: detect.OutcomeDetected, Findings: fs}
}

func TestSnapshot_ObserveStampsFileAndIndex(t *testing.T) {
	s := NewSnapshot(3, true, nil)
	s.Observe("a.jsonl", 7, rec("1", 0, "WS01"), detected(finding("1", 0)))

	require.Len(t, s.Timeline, 1)
	assert.Equal(t, "a.jsonl", s.Timeline[0].File)
	assert.Equal(t, 7, s.Timeline[0].RecordIndex)
	assert.Equal(t, 1, s.FindingsByFile["a.jsonl"])
	assert.Equal(t, 1, s.FindingsBySeverity["medium"])
}

func TestSnapshot_ObserveDoesNotAliasResult(t *testing.T) {
	res := detected(finding("1", 0))
	s := NewSnapshot(1, true, nil)
	s.Observe("a.jsonl", 0, rec("1", 0, "WS01"), res)

	assert.Empty(t, res.Findings[0].File, "caller's finding must not be modified")
}

func TestSnapshot_OutcomesWithoutFindings(t *testing.T) {
	s := NewSnapshot(0, false, nil)
	s.Observe("a", 0, rec("2", 0, ""), detect.Result{Outcome: detect.OutcomeUnhandled})
	s.Observe("a", 1, rec("1", 1, ""), detect.Result{Outcome: detect.OutcomeClean})
	s.Observe("a", 2, rec("1", 2, ""), detect.Result{Outcome: detect.OutcomeSuppressed, Suppressed: []string{"1", "99"}})

	noChannel := core.NewRecord("5", core.SystemMetadata{}, nil)
	s.Observe("a", 3, noChannel, detect.Result{Outcome: detect.OutcomeUnhandled})

	assert.Equal(t, 4, s.Records)
	assert.Equal(t, OutcomeCounts{Clean: 1, Suppressed: 1, Unhandled: 2}, s.Outcomes)
	assert.Equal(t, map[string]int{"1": 1, "99": 1}, s.SuppressedByRule)
	assert.Equal(t, 1, s.RecordsByEventType["unknown:5"])
	assert.Zero(t, s.Findings)
	require.NotNil(t, s.FirstTimestamp)
	assert.Equal(t, baseTime, *s.FirstTimestamp, "zero timestamps are ignored")
	assert.Equal(t, baseTime.Add(2*time.Minute), *s.LastTimestamp)
}

func TestSnapshot_SamplesIndependentOfArrivalOrder(t *testing.T) {
	minutes := []int{40, 5, 90, 12, 3, 60}

	forward := NewSnapshot(3, false, nil)
	for i, m := range minutes {
		forward.Observe("f", i, rec("1", m, ""), detected(finding("1", m)))
	}
	backward := NewSnapshot(3, false, nil)
	for i := len(minutes) - 1; i >= 0; i-- {
		backward.Observe("f", i, rec("1", minutes[i], ""), detected(finding("1", minutes[i])))
	}
	forward.Finalize()
	backward.Finalize()

	assert.Equal(t, forward.Samples, backward.Samples)
	var got []time.Time
	for _, f := range forward.Samples["1"] {
		got = append(got, f.Timestamp)
	}
	assert.Equal(t, []time.Time{
		baseTime.Add(3 * time.Minute),
		baseTime.Add(5 * time.Minute),
		baseTime.Add(12 * time.Minute),
	}, got)
}

func TestSnapshot_SamplesDisabled(t *testing.T) {
	s := NewSnapshot(0, false, nil)
	s.Observe("f", 0, rec("1", 0, ""), detected(finding("1", 0)))
	assert.Empty(t, s.Samples)
	assert.Equal(t, 1, s.FindingsByRule["1"])
}

func TestSnapshot_MergeIsCommutative(t *testing.T) {
	dims, err := ParseDimensions([]string{DimensionComputer, DimensionSource}, time.Hour)
	require.NoError(t, err)

	build := func(file string, minutes ...int) *Snapshot {
		s := NewSnapshot(2, true, dims)
		for i, m := range minutes {
			s.Observe(file, i, rec("1", m, "WS01"), detected(finding("1", m), finding("7", m)))
		}
		s.Files = append(s.Files, FileStats{Path: file, Records: len(minutes)})
		return s
	}
	a := build("a", 10, 50)
	b := build("b", 5, 70, 20)
	c := NewSnapshot(2, true, dims)
	c.FailedFiles = append(c.FailedFiles, FailedFile{Path: "c", Error: "boom"})

	ab := NewSnapshot(2, true, dims)
	ab.Merge(a)
	ab.Merge(b)
	ab.Merge(c)
	ab.Finalize()

	ba := NewSnapshot(2, true, dims)
	ba.Merge(c)
	ba.Merge(b)
	ba.Merge(a)
	ba.Finalize()

	assert.Equal(t, ab, ba)
	assert.Equal(t, 5, ab.Records)
	assert.Equal(t, 10, ab.Findings)
	assert.Equal(t, Counts{"ws01": 10}, ab.Dimensions[DimensionComputer])
	assert.Equal(t, Counts{"test": 10}, ab.Dimensions[DimensionSource])
	assert.Equal(t, []string{"a", "b"}, []string{ab.Files[0].Path, ab.Files[1].Path})
	require.Len(t, ab.Samples["7"], 2)
	assert.Equal(t, baseTime.Add(5*time.Minute), ab.Samples["7"][0].Timestamp)
	assert.Equal(t, baseTime.Add(10*time.Minute), ab.Samples["7"][1].Timestamp)
}

func TestSnapshot_MergeNil(t *testing.T) {
	s := NewSnapshot(1, false, nil)
	s.Merge(nil)
	assert.Zero(t, s.Records)
}

func TestSnapshot_FinalizeOrdersTimeline(t *testing.T) {
	s := NewSnapshot(0, true, nil)
	s.Observe("b", 0, rec("1", 0, ""), detected(finding("7", 0), finding("1", 0)))
	s.Observe("a", 3, rec("1", 0, ""), detected(finding("1", 0)))
	s.Observe("a", 1, rec("1", 9, ""), detected(finding("1", 9)))
	s.Finalize()

	var order []string
	for _, f := range s.Timeline {
		order = append(order, f.File+"/"+f.RuleID)
	}
	assert.Equal(t, []string{"a/1", "b/1", "b/7", "a/1"}, order)
}

func TestSnapshot_TopRules(t *testing.T) {
	s := NewSnapshot(0, false, nil)
	s.FindingsByRule = map[string]int{"b": 3, "a": 3, "c": 10, "d": 1}

	assert.Equal(t, []RuleCount{{"c", 10}, {"a", 3}, {"b", 3}}, s.TopRules(3))
	assert.Len(t, s.TopRules(0), 4)
	assert.Len(t, s.TopRules(50), 4)
}

func TestOutcomeCounts_Get(t *testing.T) {
	c := OutcomeCounts{Detected: 1, Clean: 2, Suppressed: 3, Unhandled: 4}
	assert.Equal(t, 10, c.Total())
	for _, o := range detect.Outcomes {
		var one OutcomeCounts
		one.add(o, c.Get(o))
		assert.Equal(t, c.Get(o), one.Total(), o.String())
	}
}

func TestSnapshot_JSONOmitsUnsetTimestamps(t *testing.T) {
	data, err := json.Marshal(NewSnapshot(0, false, nil))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "first_timestamp")
	assert.NotContains(t, string(data), "last_timestamp")
	assert.Contains(t, string(data), `"malformed_records":0`)

	s := NewSnapshot(0, false, nil)
	s.Observe("a.jsonl", 0, &core.Record{EventType: "1", System: core.SystemMetadata{Timestamp: baseTime}}, detect.Result{})
	data, err = json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"first_timestamp":"2024-03-01T00:00:00Z"`)
}

func TestSnapshot_MergeAddsMalformed(t *testing.T) {
	a := NewSnapshot(0, false, nil)
	a.MalformedRecords = 2
	b := NewSnapshot(0, false, nil)
	b.MalformedRecords = 3
	b.Observe("b.jsonl", 0, &core.Record{EventType: "1", System: core.SystemMetadata{Timestamp: baseTime}}, detect.Result{})

	a.Merge(b)
	assert.Equal(t, 5, a.MalformedRecords)
	require.NotNil(t, a.FirstTimestamp)
	assert.Equal(t, baseTime, *a.FirstTimestamp)
}

func TestSnapshot_AddFailedFilesKeepsOrder(t *testing.T) {
	s := NewSnapshot(0, false, nil)
	s.FailedFiles = []FailedFile{{Path: "b.jsonl", Error: "truncated"}}

	s.AddFailedFiles(FailedFile{Path: "c.jsonl", Error: "missing"}, FailedFile{Path: "a.jsonl", Error: "denied"})
	require.Len(t, s.FailedFiles, 3)
	assert.Equal(t, "a.jsonl", s.FailedFiles[0].Path)
	assert.Equal(t, "b.jsonl", s.FailedFiles[1].Path)
	assert.Equal(t, "c.jsonl", s.FailedFiles[2].Path)
}
