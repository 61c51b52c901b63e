// Package testutil provides shared helpers for agentfeed tests:
// deadline-aware contexts and polling for asynchronous stream state.
package testutil

import (
	"context"
	"testing"
	"time"
)

const (
	// DefaultWait bounds how long WaitFor polls for a condition.
	DefaultWait = 5 * time.Second
	// pollInterval is the gap between condition checks.
	pollInterval = 10 * time.Millisecond
	// deadlineBuffer is subtracted from the test deadline to leave room
	// for cleanup.
	deadlineBuffer = 10 * time.Second
)

// Context creates a context that respects the test's deadline, falling
// back to the given duration when the test has none.
func Context(t *testing.T, fallback time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()

	if deadline, ok := t.Deadline(); ok {
		adjusted := deadline.Add(-deadlineBuffer)
		if time.Until(adjusted) > 0 {
			return context.WithDeadline(context.Background(), adjusted)
		}
	}
	return context.WithTimeout(context.Background(), fallback)
}

// WaitFor polls cond until it returns true or DefaultWait elapses.
// Stream delivery is asynchronous, so most assertions on reconciled
// state go through here.
func WaitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(DefaultWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}
