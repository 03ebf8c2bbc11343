package goroutine

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoLeaks records the goroutine count and, when the test finishes,
// fails it if the count has not returned to that baseline within five
// seconds. Call it first in tests that start worker goroutines.
func AssertNoLeaks(t testing.TB) {
	t.Helper()
	baseline := runtime.NumGoroutine()

	t.Cleanup(func() {
		if WaitForGoroutineCount(baseline, 5*time.Second, 50*time.Millisecond) {
			return
		}
		current := runtime.NumGoroutine()
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		t.Errorf("goroutine leak detected: started with %d goroutines, ended with %d", baseline, current)
		t.Logf("Active goroutines:\n%s", buf[:n])
	})
}

// WaitForGoroutineCount polls until at most target goroutines are running.
// It reports false if the timeout expires first.
func WaitForGoroutineCount(target int, timeout, pollInterval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if runtime.NumGoroutine() <= target {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
