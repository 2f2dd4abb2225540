package testutil

import (
	"runtime"
	"testing"
	"time"
)

// LeakWait bounds how long AssertNoGoroutineLeaks polls.
var LeakWait = 10 * time.Second

// AssertNoGoroutineLeaks polls until at most baseline+margin goroutines are
// running. On timeout it fails the test and logs every goroutine stack.
func AssertNoGoroutineLeaks(t *testing.T, baseline, margin int) {
	t.Helper()
	limit := baseline + margin
	deadline := time.Now().Add(LeakWait)
	for n := runtime.NumGoroutine(); n > limit; n = runtime.NumGoroutine() {
		if time.Now().After(deadline) {
			buf := make([]byte, 1<<20)
			buf = buf[:runtime.Stack(buf, true)]
			t.Errorf("goroutine leak: %d running, want at most %d (baseline %d)\n%s", n, limit, baseline, buf)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
