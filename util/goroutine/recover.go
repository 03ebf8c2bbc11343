package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// StackTraceBufferSize is the buffer size for stack trace collection
const StackTraceBufferSize = 4096

// PanicError is a recovered panic turned into an error.
type PanicError struct {
	Name  string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// RecoverTo recovers a panic, logs it and stores it in *errp, so the caller
// can treat a crashed unit of work as failed. If logger is nil the panic is
// written to stderr instead.
//
//	func process() (err error) {
//	    defer goroutine.RecoverTo("file-worker", logger, &err)
//	    ...
//	}
func RecoverTo(name string, logger *zap.SugaredLogger, errp *error) {
	if r := recover(); r != nil {
		pe := newPanicError(name, r)
		report(pe, logger)
		if errp != nil {
			*errp = pe
		}
	}
}

func newPanicError(name string, r any) *PanicError {
	buf := make([]byte, StackTraceBufferSize)
	n := runtime.Stack(buf, false)
	return &PanicError{Name: name, Value: r, Stack: string(buf[:n])}
}

func report(pe *PanicError, logger *zap.SugaredLogger) {
	if logger != nil {
		logger.Errorw("Goroutine panic recovered",
			"goroutine", pe.Name,
			"panic", pe.Value,
			"stack", pe.Stack)
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n", pe.Name, pe.Value, pe.Stack)
}
