package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// msgpackDecoder reads a stream of MessagePack maps, one record per map, in
// either record layout accepted by recordFromMap.
type msgpackDecoder struct {
	opts   ParserOptions
	logger *zap.SugaredLogger
}

func (d *msgpackDecoder) decode(ctx context.Context, r io.Reader, file InputFile, emit EmitFunc, stats *ParseStats) error {
	dec := msgpack.NewDecoder(r)

	for index := 0; ; index++ {
		if index%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		raw, err := dec.DecodeRaw()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// the stream cannot be resynchronized after a framing error
			return fmt.Errorf("%w: %s record %d: %v", ErrMalformedRecord, file.Path, index, err)
		}
		if len(raw) > d.opts.MaxRecordSize {
			if err := malformed(d.opts, d.logger, file, index, errRecordTooLarge(d.opts.MaxRecordSize), stats); err != nil {
				return err
			}
			continue
		}

		var doc map[string]any
		if err := msgpack.Unmarshal(raw, &doc); err != nil {
			if err := malformed(d.opts, d.logger, file, index, err, stats); err != nil {
				return err
			}
			continue
		}
		if doc == nil {
			if err := malformed(d.opts, d.logger, file, index, errors.New("record is not a map"), stats); err != nil {
				return err
			}
			continue
		}

		rec, err := recordFromMap(doc)
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
}
