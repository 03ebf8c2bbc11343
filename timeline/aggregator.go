package timeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Yamato-Security/hayabusa-sub001/detect"
	"github.com/Yamato-Security/hayabusa-sub001/ingest"

	"go.uber.org/zap"
)

// DefaultSampleSize is the number of sample findings kept per rule.
const DefaultSampleSize = 5

// ErrAborted is returned when a file fails and the run is configured to stop
// on the first file error.
var ErrAborted = errors.New("run aborted on file error")

// Options configures an Aggregator.
type Options struct {
	// Workers bounds the number of files processed concurrently. Zero means
	// GOMAXPROCS.
	Workers int
	// SampleSize is the number of findings kept per rule. Zero disables
	// samples.
	SampleSize int
	// KeepFindings retains every finding in Snapshot.Timeline.
	KeepFindings bool
	// AbortOnFileError stops the run at the first file that fails to parse
	// instead of recording it in Snapshot.FailedFiles.
	AbortOnFileError bool
	// Dimensions group findings in the snapshot. Nil selects the defaults.
	Dimensions []Dimension
}

// Aggregator runs the dispatcher over a set of input files and consolidates
// the results into a Snapshot.
type Aggregator struct {
	dispatcher *detect.Dispatcher
	parser     ingest.Parser
	opts       Options
	logger     *zap.SugaredLogger
}

// NewAggregator creates an aggregator. The dispatcher is shared read-only by
// all workers.
func NewAggregator(dispatcher *detect.Dispatcher, parser ingest.Parser, opts Options, logger *zap.SugaredLogger) (*Aggregator, error) {
	if dispatcher == nil {
		return nil, errors.New("aggregator requires a dispatcher")
	}
	if parser == nil {
		return nil, errors.New("aggregator requires a parser")
	}
	if opts.SampleSize < 0 {
		return nil, fmt.Errorf("sample size must be non-negative, got %d", opts.SampleSize)
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("worker count must be non-negative, got %d", opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Dimensions == nil {
		dims, err := ParseDimensions(nil, DefaultBucket)
		if err != nil {
			return nil, err
		}
		opts.Dimensions = dims
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Aggregator{
		dispatcher: dispatcher,
		parser:     parser,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Run processes every file and returns the finalized snapshot. Files are
// processed in parallel, each worker accumulating into its own snapshot; the
// worker snapshots are merged once all workers are done.
//
// If ctx is cancelled, or a file fails while AbortOnFileError is set, Run
// returns a nil snapshot and the error. A partial snapshot is never returned.
func (a *Aggregator) Run(ctx context.Context, files []ingest.InputFile) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	workers := a.opts.Workers
	if workers > len(files) {
		workers = len(files)
	}
	a.logger.Infof("Processing %d input files with %d workers", len(files), workers)

	locals, err := a.runWorkers(ctx, files, workers)
	if err != nil {
		return nil, err
	}

	snapshot := a.newSnapshot()
	for _, local := range locals {
		snapshot.Merge(local)
	}
	snapshot.Finalize()

	a.logger.Infow("Aggregation complete",
		"files", len(snapshot.Files),
		"failed_files", len(snapshot.FailedFiles),
		"records", snapshot.Records,
		"findings", snapshot.Findings,
		"unhandled", snapshot.Outcomes.Unhandled,
		"suppressed", snapshot.Outcomes.Suppressed)
	return snapshot, nil
}

func (a *Aggregator) newSnapshot() *Snapshot {
	return NewSnapshot(a.opts.SampleSize, a.opts.KeepFindings, a.opts.Dimensions)
}

// runState collects the first error that stops the run.
type runState struct {
	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
}

func (s *runState) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	s.cancel()
}

func (s *runState) result() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
