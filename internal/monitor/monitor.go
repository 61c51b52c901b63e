// Package monitor ties the stream client and the state reconciler
// together into the surface consumed by a presentation layer: subscribe
// to a job, receive a full snapshot after every state change, clear,
// close. One Monitor serves one job view at a time.
package monitor

import (
	"context"
	"sync"

	"github.com/pverill/agentfeed/internal/config"
	"github.com/pverill/agentfeed/internal/state"
	"github.com/pverill/agentfeed/internal/stream"
)

// Snapshot is the reconciled job state plus connection health, as
// handed to consumers after every change.
type Snapshot struct {
	state.Snapshot
	Connection stream.ConnectionState
}

// SnapshotFunc receives snapshots. It is called on the subscription
// goroutine and must not block.
type SnapshotFunc func(Snapshot)

// Monitor owns one stream client and one reconciler. All frame
// application is serialized under a single mutex, so snapshot reads
// never observe a half-applied frame.
type Monitor struct {
	client    *stream.Client
	sessionID string

	mu         sync.Mutex
	rec        *state.Reconciler
	sub        *stream.Subscription
	onSnapshot SnapshotFunc
}

// New creates a Monitor for the given feed base URL and session. The
// config supplies the reconnect policy and progress thresholds; nil
// means defaults. Extra stream options (auth token, custom HTTP client)
// are passed through.
func New(baseURL, sessionID string, cfg *config.Config, opts ...stream.Option) *Monitor {
	if cfg == nil {
		c := config.DefaultConfig()
		cfg = &c
	}

	m := &Monitor{
		sessionID: sessionID,
		rec: state.NewReconciler(state.Options{
			ExpectedTotalSteps: cfg.Progress.ExpectedTotalSteps,
			MinStepsForDone:    cfg.Progress.MinStepsForDone,
			MinLogLength:       cfg.Filter.MinLogLength,
		}),
	}

	clientOpts := append([]stream.Option{
		stream.WithBackoff(cfg.Stream.BaseDelay, cfg.Stream.CapDelay),
		stream.WithMaxReconnectAttempts(cfg.Stream.MaxReconnectAttempts),
		stream.WithStateHandler(m.handleState),
	}, opts...)

	m.client = stream.NewClient(baseURL, clientOpts...)
	return m
}

// Subscribe opens a subscription for jobID and registers the snapshot
// callback. A subscription already open for a different job is torn
// down first and the reconciled state cleared; resubscribing to the
// same job also restarts from empty, since the feed replays from the
// beginning.
func (m *Monitor) Subscribe(ctx context.Context, jobID string, onSnapshot SnapshotFunc) {
	m.mu.Lock()
	old := m.sub
	m.sub = nil
	m.mu.Unlock()

	// Close outside the lock: the old subscription may be mid-delivery
	// and delivery takes the lock.
	if old != nil {
		old.Close()
	}

	m.mu.Lock()
	m.rec.Clear()
	m.onSnapshot = onSnapshot
	m.mu.Unlock()

	sub := m.client.Open(ctx, m.sessionID, jobID, m.handleEvent)

	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()
}

// Snapshot returns the current reconciled state and connection health.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Clear empties the action log, tasks, and steps, and resets progress.
func (m *Monitor) Clear() {
	m.mu.Lock()
	m.rec.Clear()
	m.mu.Unlock()
}

// Close tears down the active subscription, canceling any pending
// reconnect. The Monitor can be reused with a new Subscribe.
func (m *Monitor) Close() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Err returns ErrStreamUnavailable when the active subscription has
// exhausted its reconnect budget.
func (m *Monitor) Err() error {
	m.mu.Lock()
	sub := m.sub
	m.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Err()
}

// Stats exposes the stream client's diagnostic counters.
func (m *Monitor) Stats() stream.Stats {
	return m.client.Stats()
}

func (m *Monitor) handleEvent(ev stream.Event) {
	m.mu.Lock()
	m.rec.Apply(ev)
	snap := m.snapshotLocked()
	cb := m.onSnapshot
	m.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

func (m *Monitor) handleState(st stream.ConnectionState) {
	m.mu.Lock()
	snap := m.snapshotLocked()
	snap.Connection = st
	cb := m.onSnapshot
	m.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

func (m *Monitor) snapshotLocked() Snapshot {
	return Snapshot{
		Snapshot:   m.rec.Snapshot(),
		Connection: m.client.State(),
	}
}
