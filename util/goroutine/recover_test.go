package goroutine

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecoverTo_NoPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)

	err := func() (err error) {
		defer RecoverTo("quiet", zap.New(core).Sugar(), &err)
		return nil
	}()

	assert.NoError(t, err)
	assert.Zero(t, logs.Len())
}

func TestRecoverTo_LogsPanic(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"string", "test panic message"},
		{"error", assert.AnError},
		{"int", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)

			var err error
			func() {
				defer RecoverTo("worker-"+tt.name, zap.New(core).Sugar(), &err)
				panic(tt.value)
			}()

			require.Error(t, err)
			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, "Goroutine panic recovered", entry.Message)
			fields := entry.ContextMap()
			assert.Equal(t, "worker-"+tt.name, fields["goroutine"])
			assert.Contains(t, fields["stack"], "goroutine")
		})
	}
}

func TestRecoverTo_NilLogger(t *testing.T) {
	var err error
	assert.NotPanics(t, func() {
		defer RecoverTo("no-logger", nil, &err)
		panic("boom")
	})
	assert.Error(t, err)
}

func TestRecoverTo_InGoroutine(t *testing.T) {
	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer RecoverTo("background", zaptest.NewLogger(t).Sugar(), &err)
		panic("boom")
	}()
	wg.Wait()
	assert.EqualError(t, err, "panic in background: boom")
}

func TestRecoverTo(t *testing.T) {
	run := func(fail bool) (err error) {
		defer RecoverTo("file-worker", zap.NewNop().Sugar(), &err)
		if fail {
			panic("corrupt input")
		}
		return nil
	}

	assert.NoError(t, run(false))

	err := run(true)
	require.Error(t, err)
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "file-worker", pe.Name)
	assert.Equal(t, "corrupt input", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, "panic in file-worker: corrupt input", err.Error())
}

func TestRecoverTo_NilTarget(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverTo("nil-target", nil, nil)
		panic("boom")
	})
}
