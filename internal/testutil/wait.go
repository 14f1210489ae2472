package testutil

import (
	"testing"
	"time"
)

// waitBudget bounds every asynchronous assertion. Generous enough for
// loaded CI machines, short enough to fail fast on a real hang.
const waitBudget = 2 * time.Second

// Eventually polls cond until it returns true or the wait budget is
// exhausted, failing the test on timeout. Use it to observe the result
// of work running on a subscription's FIFO goroutine.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitBudget)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached within %v: %s", waitBudget, msg)
}

// WaitClosed waits for ch to be closed (or receive), failing the test
// on timeout.
func WaitClosed(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitBudget):
		t.Fatalf("timeout after %v: %s", waitBudget, msg)
	}
}
