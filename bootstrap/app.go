package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Yamato-Security/hayabusa-sub001/config"
	"github.com/Yamato-Security/hayabusa-sub001/ingest"
	"github.com/Yamato-Security/hayabusa-sub001/metrics"
	"github.com/Yamato-Security/hayabusa-sub001/timeline"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoInput is returned when a scan has no input paths.
var ErrNoInput = errors.New("no input paths given")

// App is one configured scanner: rules, filter and dispatcher loaded, ready to
// run over input files.
type App struct {
	Config *config.Config
	Sugar  *zap.SugaredLogger

	Detection  *DetectionComponents
	Parser     *ingest.MultiParser
	Aggregator *timeline.Aggregator
}

// NewApp builds every component from cfg. Nothing is read from the input
// files until Scan is called.
func NewApp(cfg *config.Config, sugar *zap.SugaredLogger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app requires a config")
	}
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	logConfig(cfg, sugar)

	if err := EnsureOutputDirectories(cfg, sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	detection, err := InitDetection(cfg, sugar)
	if err != nil {
		return nil, err
	}

	dims, err := timeline.ParseDimensions(cfg.Timeline.Dimensions, cfg.Timeline.Bucket)
	if err != nil {
		return nil, fmt.Errorf("invalid timeline dimensions: %w", err)
	}

	parser := ingest.NewMultiParser(ingest.ParserOptions{
		SkipMalformed: cfg.Input.SkipMalformed,
		MaxRecordSize: cfg.Input.MaxRecordSize,
	}, sugar)

	aggregator, err := timeline.NewAggregator(detection.Dispatcher, parser, timeline.Options{
		Workers:          cfg.Engine.WorkerCount,
		SampleSize:       cfg.Timeline.SampleSize,
		KeepFindings:     cfg.Timeline.KeepFindings,
		AbortOnFileError: cfg.Engine.AbortOnFileError,
		Dimensions:       dims,
	}, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}

	return &App{
		Config:     cfg,
		Sugar:      sugar,
		Detection:  detection,
		Parser:     parser,
		Aggregator: aggregator,
	}, nil
}

// Scan discovers the input files under paths (the configured input paths
// when empty), aggregates them and writes the configured outputs.
func (a *App) Scan(ctx context.Context, paths []string) (*timeline.Snapshot, error) {
	if len(paths) == 0 {
		paths = a.Config.Input.Paths
	}
	if len(paths) == 0 {
		return nil, ErrNoInput
	}

	files, unreadable := ingest.Discover(paths, a.Config.Input.Extensions)
	for _, u := range unreadable {
		a.Sugar.Warnw("Input path is not readable", "path", u.Path, "error", u.Err)
	}
	if len(files) == 0 {
		a.Sugar.Warnw("No input files found", "paths", paths)
	}

	runID := uuid.NewString()
	started := time.Now().UTC()
	a.Sugar.Infow("Scan starting", "run_id", runID, "files", len(files))

	snapshot, err := a.Aggregator.Run(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("scan %s failed: %w", runID, err)
	}

	for _, u := range unreadable {
		snapshot.AddFailedFiles(timeline.FailedFile{Path: u.Path, Error: u.Err.Error()})
		metrics.FilesProcessed.WithLabelValues(metrics.FileStatusFailed).Inc()
	}
	snapshot.RunID = runID
	snapshot.StartedAt = started
	snapshot.FinishedAt = time.Now().UTC()
	snapshot.SuppressedRules = a.Detection.Filter.IDs()
	snapshot.InactiveBindings = a.Detection.Dispatcher.InactiveBindings()
	snapshot.SkippedRules = a.Detection.Skipped

	a.Sugar.Infow("Scan finished",
		"run_id", runID,
		"duration", snapshot.FinishedAt.Sub(started),
		"findings", snapshot.Findings)

	if err := a.writeOutputs(snapshot); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

func (a *App) writeOutputs(snapshot *timeline.Snapshot) error {
	if path := a.Config.Output.SnapshotFile; path != "" {
		if err := WriteSnapshot(path, snapshot); err != nil {
			return err
		}
		a.Sugar.Infow("Snapshot written", "path", path)
	}
	if path := a.Config.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			return err
		}
		a.Sugar.Infow("Metrics written", "path", path)
	}
	return nil
}

// WriteSnapshot writes the snapshot as indented JSON. The file is replaced
// atomically so a reader never sees a partial snapshot.
func WriteSnapshot(path string, snapshot *timeline.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Shutdown flushes buffered log entries.
func (a *App) Shutdown() {
	_ = a.Sugar.Sync()
}
