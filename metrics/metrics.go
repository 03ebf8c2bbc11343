package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hayabusa_records_processed_total",
			Help: "Total number of records dispatched, by outcome",
		},
		[]string{"outcome"},
	)

	RecordsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hayabusa_records_malformed_total",
			Help: "Total number of malformed records skipped while parsing",
		},
	)

	FindingsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hayabusa_findings_generated_total",
			Help: "Total number of findings generated",
		},
		[]string{"severity"},
	)

	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hayabusa_files_processed_total",
			Help: "Total number of input files processed, by status",
		},
		[]string{"status"},
	)

	FileProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hayabusa_file_processing_duration_seconds",
			Help:    "Time taken to parse and dispatch one input file",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hayabusa_active_workers",
			Help: "Number of aggregator workers currently running",
		},
	)

	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hayabusa_rules_loaded",
			Help: "Number of rules in the catalog",
		},
	)

	RulesSuppressed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hayabusa_rules_suppressed",
			Help: "Number of rule IDs in the rule filter",
		},
	)

	RuleDefinitionsSkipped = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hayabusa_rule_definitions_skipped",
			Help: "Number of rule definitions skipped while loading",
		},
	)
)

// File status label values
const (
	FileStatusOK     = "ok"
	FileStatusFailed = "failed"
)

// WriteTextfile writes every registered metric to path in the text exposition
// format, for pickup by the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
