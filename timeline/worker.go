package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Yamato-Security/hayabusa-sub001/core"
	"github.com/Yamato-Security/hayabusa-sub001/detect"
	"github.com/Yamato-Security/hayabusa-sub001/ingest"
	"github.com/Yamato-Security/hayabusa-sub001/metrics"
	"github.com/Yamato-Security/hayabusa-sub001/util/goroutine"
)

// runWorkers fans the files out to a fixed number of workers and returns one
// snapshot per worker.
func (a *Aggregator) runWorkers(ctx context.Context, files []ingest.InputFile, workers int) ([]*Snapshot, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	state := &runState{cancel: cancel}

	jobs := make(chan ingest.InputFile, len(files))
	for _, f := range files {
		jobs <- f
	}
	close(jobs)

	locals := make([]*Snapshot, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		locals[i] = a.newSnapshot()
		wg.Add(1)
		go a.worker(runCtx, i, jobs, locals[i], state, &wg)
	}
	wg.Wait()

	if err := state.result(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return locals, nil
}

// worker is the main worker goroutine. It owns local exclusively until the
// wait group is released.
func (a *Aggregator) worker(ctx context.Context, id int, jobs <-chan ingest.InputFile, local *Snapshot, state *runState, wg *sync.WaitGroup) {
	defer wg.Done()

	// a crashed worker stops the run so no file is silently dropped
	var err error
	defer func() {
		if err != nil {
			state.abort(err)
		}
	}()
	defer goroutine.RecoverTo("timeline-worker", a.logger, &err)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	a.logger.Debugw("Worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			a.logger.Debugw("Worker stopping due to context cancellation", "worker_id", id)
			return
		case file, ok := <-jobs:
			if !ok {
				a.logger.Debugw("Worker stopping, no files left", "worker_id", id)
				return
			}
			if err = a.processFile(ctx, file, local); err != nil {
				return
			}
		}
	}
}

// processFile parses one file into a fresh snapshot and folds it into local
// only when the whole file succeeded. It returns an error only when the run
// must stop.
func (a *Aggregator) processFile(ctx context.Context, file ingest.InputFile, local *Snapshot) error {
	start := time.Now()
	fileSnap := local.empty()

	err := a.parseFile(ctx, file, fileSnap)
	metrics.FileProcessingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		metrics.FilesProcessed.WithLabelValues(metrics.FileStatusFailed).Inc()
		a.logger.Warnw("Failed to process input file",
			"file", file.Path,
			"records_read", fileSnap.Records,
			"error", err)
		if a.opts.AbortOnFileError {
			return fmt.Errorf("%w: %s: %v", ErrAborted, file.Path, err)
		}
		local.FailedFiles = append(local.FailedFiles, FailedFile{
			Path:        file.Path,
			Error:       err.Error(),
			RecordsRead: fileSnap.Records,
		})
		return nil
	}

	fileSnap.Files = append(fileSnap.Files, FileStats{
		Path:             file.Path,
		Records:          fileSnap.Records,
		MalformedSkipped: fileSnap.MalformedRecords,
		Findings:         fileSnap.Findings,
		Outcomes:         fileSnap.Outcomes,
	})
	local.Merge(fileSnap)
	recordFileMetrics(fileSnap)

	a.logger.Debugw("Processed input file",
		"file", file.Path,
		"records", fileSnap.Records,
		"malformed_skipped", fileSnap.MalformedRecords,
		"findings", fileSnap.Findings,
		"duration", time.Since(start))
	return nil
}

// parseFile dispatches every record of file into snap. A panic while parsing
// or dispatching fails the file instead of the process.
func (a *Aggregator) parseFile(ctx context.Context, file ingest.InputFile, snap *Snapshot) (err error) {
	defer goroutine.RecoverTo("timeline-file", a.logger, &err)

	index := 0
	stats, err := a.parser.Parse(ctx, file, func(rec *core.Record) error {
		snap.Observe(file.Path, index, rec, a.dispatcher.Dispatch(rec))
		index++
		return nil
	})
	snap.MalformedRecords += stats.Malformed
	return err
}

func recordFileMetrics(s *Snapshot) {
	metrics.FilesProcessed.WithLabelValues(metrics.FileStatusOK).Inc()
	metrics.RecordsMalformed.Add(float64(s.MalformedRecords))
	for _, o := range detect.Outcomes {
		if n := s.Outcomes.Get(o); n > 0 {
			metrics.RecordsProcessed.WithLabelValues(o.String()).Add(float64(n))
		}
	}
	for sev, n := range s.FindingsBySeverity {
		metrics.FindingsGenerated.WithLabelValues(sev).Add(float64(n))
	}
}
