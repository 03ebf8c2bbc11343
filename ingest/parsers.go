package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Yamato-Security/hayabusa-sub001/core"

	"go.uber.org/zap"
)

// Parser errors
var (
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrMalformedRecord   = errors.New("malformed record")
)

// Input formats
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// DefaultExtensions are the file extensions picked up by Discover when no
// explicit list is configured.
var DefaultExtensions = []string{".jsonl", ".json", ".ndjson", ".msgpack", ".mpk"}

var formatByExt = map[string]string{
	".jsonl":   FormatJSON,
	".json":    FormatJSON,
	".ndjson":  FormatJSON,
	".msgpack": FormatMsgpack,
	".mpk":     FormatMsgpack,
}

// maxRecordSize limits a single encoded record.
const maxRecordSize = 4 * 1024 * 1024

// ctxCheckInterval is how many records are decoded between context checks.
const ctxCheckInterval = 1024

// InputFile is one unit of work for the aggregator.
type InputFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// EmitFunc receives each decoded record. Returning an error stops parsing and
// the error is returned from Parse unchanged.
type EmitFunc func(rec *core.Record) error

// ParseStats summarizes one Parse call. It is valid even when Parse fails.
type ParseStats struct {
	// Malformed counts records skipped because they could not be decoded.
	Malformed int `json:"malformed"`
}

// Parser decodes already-normalized event records from a file. Records are
// emitted in file order.
type Parser interface {
	Parse(ctx context.Context, file InputFile, emit EmitFunc) (ParseStats, error)
}

// ParserOptions tunes the record decoders.
type ParserOptions struct {
	// SkipMalformed logs and skips records that cannot be decoded instead of
	// failing the whole file.
	SkipMalformed bool
	// MaxRecordSize bounds a single encoded record.
	MaxRecordSize int
}

// MultiParser picks a decoder from the file extension, unwrapping .gz and .zst
// compression first.
type MultiParser struct {
	decoders map[string]recordDecoder
	opts     ParserOptions
	logger   *zap.SugaredLogger
}

// recordDecoder decodes a stream of records of one format.
type recordDecoder interface {
	decode(ctx context.Context, r io.Reader, file InputFile, emit EmitFunc, stats *ParseStats) error
}

// NewMultiParser returns a Parser for every supported format.
func NewMultiParser(opts ParserOptions, logger *zap.SugaredLogger) *MultiParser {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.MaxRecordSize <= 0 {
		opts.MaxRecordSize = maxRecordSize
	}
	p := &MultiParser{opts: opts, logger: logger}
	p.decoders = map[string]recordDecoder{
		FormatJSON:    &jsonDecoder{opts: opts, logger: logger},
		FormatMsgpack: &msgpackDecoder{opts: opts, logger: logger},
	}
	return p
}

// DetectFormat returns the record format and compression of a path.
func DetectFormat(path string) (format, compression string, err error) {
	name := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(name)
	if c, ok := compressionByExt[ext]; ok {
		compression = c
		name = strings.TrimSuffix(name, ext)
		ext = filepath.Ext(name)
	}
	format, ok := formatByExt[ext]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return format, compression, nil
}

// Parse decodes every record of file and hands it to emit.
func (p *MultiParser) Parse(ctx context.Context, file InputFile, emit EmitFunc) (ParseStats, error) {
	var stats ParseStats
	format, compression, err := DetectFormat(file.Path)
	if err != nil {
		return stats, err
	}
	dec := p.decoders[format]

	rc, err := openInput(file.Path, compression)
	if err != nil {
		return stats, err
	}
	defer rc.Close()

	err = dec.decode(ctx, rc, file, emit, &stats)
	return stats, err
}

// malformed either counts and skips a bad record or returns the error that
// fails the file.
func malformed(opts ParserOptions, logger *zap.SugaredLogger, file InputFile, index int, cause error, stats *ParseStats) error {
	err := fmt.Errorf("%w: %s record %d: %v", ErrMalformedRecord, file.Path, index, cause)
	if !opts.SkipMalformed {
		return err
	}
	stats.Malformed++
	logger.Warnw("Skipping malformed record", "file", file.Path, "index", index, "error", cause)
	return nil
}
