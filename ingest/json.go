package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Yamato-Security/hayabusa-sub001/core"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// jsonDecoder reads JSON lines. A file whose first non-blank byte is '[' is
// read as a single JSON array of records instead.
type jsonDecoder struct {
	opts   ParserOptions
	logger *zap.SugaredLogger
}

func (d *jsonDecoder) decode(ctx context.Context, r io.Reader, file InputFile, emit EmitFunc, stats *ParseStats) error {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	if first == '[' {
		return d.decodeArray(ctx, br, file, emit, stats)
	}
	return d.decodeLines(ctx, br, file, emit, stats)
}

func (d *jsonDecoder) decodeLines(ctx context.Context, br *bufio.Reader, file InputFile, emit EmitFunc, stats *ParseStats) error {
	index := 0
	for {
		line, oversize, readErr := readLine(br, d.opts.MaxRecordSize)
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("failed to read %s: %w", file.Path, readErr)
		}

		line = bytes.TrimSpace(line)
		if len(line) > 0 || oversize {
			if index%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			var rec *core.Record
			var err error
			if oversize {
				err = errRecordTooLarge(d.opts.MaxRecordSize)
			} else {
				rec, err = d.decodeOne(line)
			}
			index++
			if err != nil {
				if err := malformed(d.opts, d.logger, file, index-1, err, stats); err != nil {
					return err
				}
			} else if err := emit(rec); err != nil {
				return err
			}
		}

		if readErr == io.EOF {
			return nil
		}
	}
}

// readLine returns the next line including its terminator. A line longer
// than limit is consumed to its end but not kept, and reported as oversize.
func readLine(br *bufio.Reader, limit int) (line []byte, oversize bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversize {
			line = append(line, chunk...)
			// room for a trailing "\r\n"
			if len(line) > limit+2 {
				line, oversize = nil, true
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, oversize, err
	}
}

func (d *jsonDecoder) decodeArray(ctx context.Context, r io.Reader, file InputFile, emit EmitFunc, stats *ParseStats) error {
	var docs []json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&docs); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedRecord, file.Path, err)
	}
	for index, raw := range docs {
		if index%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec, err := d.decodeOne(raw)
		if err != nil {
			if err := malformed(d.opts, d.logger, file, index, err, stats); err != nil {
				return err
			}
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

func (d *jsonDecoder) decodeOne(data []byte) (*core.Record, error) {
	if len(data) > d.opts.MaxRecordSize {
		return nil, errRecordTooLarge(d.opts.MaxRecordSize)
	}
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("record is not a JSON object")
	}
	return recordFromMap(doc)
}

func errRecordTooLarge(limit int) error {
	return fmt.Errorf("record exceeds %d bytes", limit)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
