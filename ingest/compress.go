package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression wrappers
const (
	CompressionNone = ""
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

var compressionByExt = map[string]string{
	".gz":  CompressionGzip,
	".zst": CompressionZstd,
}

// readCloser closes the decompressor and then the file.
type readCloser struct {
	io.Reader
	closers []func() error
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openInput opens path and unwraps the given compression.
func openInput(path, compression string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	buffered := bufio.NewReaderSize(f, 64*1024)

	switch compression {
	case CompressionNone:
		return &readCloser{Reader: buffered, closers: []func() error{f.Close}}, nil
	case CompressionGzip:
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
		}
		return &readCloser{Reader: gz, closers: []func() error{gz.Close, f.Close}}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd reader for %s: %w", path, err)
		}
		return &readCloser{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			f.Close,
		}}, nil
	default:
		f.Close()
		return nil, fmt.Errorf("%w: compression %q", ErrUnsupportedFormat, compression)
	}
}
