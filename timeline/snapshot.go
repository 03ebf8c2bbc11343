package timeline

import (
	"sort"
	"time"

	"github.com/Yamato-Security/hayabusa-sub001/core"
	"github.com/Yamato-Security/hayabusa-sub001/detect"
)

// OutcomeCounts tallies dispatcher outcomes. Every record lands in exactly one
// bucket, so Total equals the number of records observed.
type OutcomeCounts struct {
	Detected   int `json:"detected"`
	Clean      int `json:"clean"`
	Suppressed int `json:"suppressed"`
	Unhandled  int `json:"unhandled"`
}

// Total is the number of records counted.
func (c OutcomeCounts) Total() int {
	return c.Detected + c.Clean + c.Suppressed + c.Unhandled
}

// Get returns the count for one outcome.
func (c OutcomeCounts) Get(o detect.Outcome) int {
	switch o {
	case detect.OutcomeDetected:
		return c.Detected
	case detect.OutcomeClean:
		return c.Clean
	case detect.OutcomeSuppressed:
		return c.Suppressed
	default:
		return c.Unhandled
	}
}

func (c *OutcomeCounts) add(o detect.Outcome, n int) {
	switch o {
	case detect.OutcomeDetected:
		c.Detected += n
	case detect.OutcomeClean:
		c.Clean += n
	case detect.OutcomeSuppressed:
		c.Suppressed += n
	default:
		c.Unhandled += n
	}
}

func (c *OutcomeCounts) merge(o OutcomeCounts) {
	c.Detected += o.Detected
	c.Clean += o.Clean
	c.Suppressed += o.Suppressed
	c.Unhandled += o.Unhandled
}

// FileStats summarizes one successfully processed input file.
type FileStats struct {
	Path             string        `json:"path"`
	Records          int           `json:"records"`
	MalformedSkipped int           `json:"malformed_skipped"`
	Findings         int           `json:"findings"`
	Outcomes         OutcomeCounts `json:"outcomes"`
}

// FailedFile is an input file whose parsing failed. A failed file contributes
// nothing to the counts except this entry.
type FailedFile struct {
	Path        string `json:"path"`
	Error       string `json:"error"`
	RecordsRead int    `json:"records_read"`
}

// RuleCount pairs a rule with its finding count.
type RuleCount struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// Snapshot is the consolidated result of a run. Snapshots produced from the
// same inputs are equal regardless of worker count or file order.
//
// MalformedRecords counts records the parser skipped; they are never
// dispatched and are not part of Records. FirstTimestamp and LastTimestamp
// stay nil until a record carries a timestamp.
type Snapshot struct {
	// RunID, StartedAt and FinishedAt are stamped by the caller; the
	// aggregator leaves them empty so snapshots stay comparable.
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Records            int               `json:"records"`
	MalformedRecords   int               `json:"malformed_records"`
	Outcomes           OutcomeCounts     `json:"outcomes"`
	RecordsByEventType map[string]int    `json:"records_by_event_type"`
	FirstTimestamp     *time.Time        `json:"first_timestamp,omitempty"`
	LastTimestamp      *time.Time        `json:"last_timestamp,omitempty"`
	Findings           int               `json:"findings"`
	FindingsByRule     map[string]int    `json:"findings_by_rule"`
	FindingsByFile     map[string]int    `json:"findings_by_file"`
	FindingsBySeverity map[string]int    `json:"findings_by_severity"`
	SuppressedByRule   map[string]int    `json:"suppressed_by_rule,omitempty"`
	Dimensions         map[string]Counts `json:"dimensions,omitempty"`

	// Samples keeps up to SampleSize findings per rule: the earliest ones in
	// timeline order.
	Samples    map[string][]core.Finding `json:"samples,omitempty"`
	SampleSize int                       `json:"sample_size"`
	// Timeline holds every finding when findings are retained.
	Timeline []core.Finding `json:"timeline,omitempty"`

	Files       []FileStats  `json:"files"`
	FailedFiles []FailedFile `json:"failed_files,omitempty"`

	// Run context filled in by the caller.
	SuppressedRules  []string             `json:"suppressed_rules,omitempty"`
	InactiveBindings []detect.BindingRef  `json:"inactive_bindings,omitempty"`
	SkippedRules     []detect.SkippedRule `json:"skipped_rules,omitempty"`

	keepFindings bool
	dimensions   []Dimension
	finalized    bool
}

// Counts maps a dimension key to its finding count.
type Counts map[string]int

// NewSnapshot creates an empty snapshot.
func NewSnapshot(sampleSize int, keepFindings bool, dims []Dimension) *Snapshot {
	s := &Snapshot{
		RecordsByEventType: make(map[string]int),
		FindingsByRule:     make(map[string]int),
		FindingsByFile:     make(map[string]int),
		FindingsBySeverity: make(map[string]int),
		SuppressedByRule:   make(map[string]int),
		Dimensions:         make(map[string]Counts, len(dims)),
		Samples:            make(map[string][]core.Finding),
		SampleSize:         sampleSize,
		keepFindings:       keepFindings,
		dimensions:         dims,
	}
	for _, d := range dims {
		s.Dimensions[d.Name()] = make(Counts)
	}
	return s
}

// empty returns a snapshot with the same settings.
func (s *Snapshot) empty() *Snapshot {
	return NewSnapshot(s.SampleSize, s.keepFindings, s.dimensions)
}

// eventTypeKey groups records by channel and event type, e.g. "Security:4688".
func eventTypeKey(rec *core.Record) string {
	channel := rec.System.Channel
	if channel == "" {
		channel = "unknown"
	}
	return channel + ":" + rec.EventType
}

// Observe records one dispatched record. file and index identify where the
// record came from and are stamped on the snapshot's copies of the findings.
func (s *Snapshot) Observe(file string, index int, rec *core.Record, res detect.Result) {
	s.Records++
	s.Outcomes.add(res.Outcome, 1)
	s.RecordsByEventType[eventTypeKey(rec)]++
	s.observeTime(rec.System.Timestamp)
	for _, id := range res.Suppressed {
		s.SuppressedByRule[id]++
	}

	for i := range res.Findings {
		f := res.Findings[i]
		f.File = file
		f.RecordIndex = index

		s.Findings++
		s.FindingsByRule[f.RuleID]++
		s.FindingsByFile[file]++
		s.FindingsBySeverity[f.Severity.String()]++
		for _, d := range s.dimensions {
			if key, ok := d.Key(&f); ok {
				s.Dimensions[d.Name()][key]++
			}
		}
		s.addSample(f)
		if s.keepFindings {
			s.Timeline = append(s.Timeline, f)
		}
	}
}

func (s *Snapshot) observeTime(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if s.FirstTimestamp == nil || ts.Before(*s.FirstTimestamp) {
		first := ts
		s.FirstTimestamp = &first
	}
	if s.LastTimestamp == nil || ts.After(*s.LastTimestamp) {
		last := ts
		s.LastTimestamp = &last
	}
}

// addSample keeps the SampleSize earliest findings of a rule. The kept set
// depends only on the findings offered, never on the order they arrive in.
func (s *Snapshot) addSample(f core.Finding) {
	if s.SampleSize <= 0 {
		return
	}
	samples := s.Samples[f.RuleID]
	if len(samples) < s.SampleSize {
		s.Samples[f.RuleID] = append(samples, f)
		return
	}
	latest := 0
	for i := 1; i < len(samples); i++ {
		if samples[latest].Less(&samples[i]) {
			latest = i
		}
	}
	if f.Less(&samples[latest]) {
		samples[latest] = f
	}
}

// Merge folds o into s. Merge is commutative and associative as far as the
// finalized result is concerned.
func (s *Snapshot) Merge(o *Snapshot) {
	if o == nil {
		return
	}
	s.Records += o.Records
	s.MalformedRecords += o.MalformedRecords
	s.Outcomes.merge(o.Outcomes)
	addCounts(s.RecordsByEventType, o.RecordsByEventType)
	if o.FirstTimestamp != nil {
		s.observeTime(*o.FirstTimestamp)
	}
	if o.LastTimestamp != nil {
		s.observeTime(*o.LastTimestamp)
	}

	s.Findings += o.Findings
	addCounts(s.FindingsByRule, o.FindingsByRule)
	addCounts(s.FindingsByFile, o.FindingsByFile)
	addCounts(s.FindingsBySeverity, o.FindingsBySeverity)
	addCounts(s.SuppressedByRule, o.SuppressedByRule)
	for name, counts := range o.Dimensions {
		dst, ok := s.Dimensions[name]
		if !ok {
			dst = make(Counts)
			s.Dimensions[name] = dst
		}
		addCounts(dst, counts)
	}

	for _, samples := range o.Samples {
		for _, f := range samples {
			s.addSample(f)
		}
	}
	s.Timeline = append(s.Timeline, o.Timeline...)
	s.Files = append(s.Files, o.Files...)
	s.FailedFiles = append(s.FailedFiles, o.FailedFiles...)
	s.finalized = false
}

func addCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}

// Finalize sorts the timeline, samples and file lists. It runs once, after all
// per-worker snapshots are merged.
func (s *Snapshot) Finalize() {
	if s.finalized {
		return
	}
	sort.SliceStable(s.Timeline, func(i, j int) bool { return s.Timeline[i].Less(&s.Timeline[j]) })
	for _, samples := range s.Samples {
		sort.Slice(samples, func(i, j int) bool { return samples[i].Less(&samples[j]) })
	}
	sort.Slice(s.Files, func(i, j int) bool { return s.Files[i].Path < s.Files[j].Path })
	sort.Slice(s.FailedFiles, func(i, j int) bool { return s.FailedFiles[i].Path < s.FailedFiles[j].Path })
	s.finalized = true
}

// AddFailedFiles records input files that failed outside the aggregator, such
// as paths that could not be read during discovery. The list stays sorted.
func (s *Snapshot) AddFailedFiles(files ...FailedFile) {
	s.FailedFiles = append(s.FailedFiles, files...)
	sort.Slice(s.FailedFiles, func(i, j int) bool { return s.FailedFiles[i].Path < s.FailedFiles[j].Path })
}

// TopRules returns rules ordered by finding count, highest first. n <= 0
// returns all of them.
func (s *Snapshot) TopRules(n int) []RuleCount {
	out := make([]RuleCount, 0, len(s.FindingsByRule))
	for id, c := range s.FindingsByRule {
		out = append(out, RuleCount{RuleID: id, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RuleID < out[j].RuleID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
