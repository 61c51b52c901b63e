package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pverill/agentfeed/internal/logging"
)

// ErrStreamUnavailable is surfaced when the reconnect budget is
// exhausted. It is distinct from a job-level error: the job may still
// be running, the client just cannot reach the feed.
var ErrStreamUnavailable = errors.New("stream unavailable: reconnect attempts exhausted")

// ConnectionState describes the health of one subscription.
type ConnectionState struct {
	Connected         bool
	ReconnectAttempts int
	JobID             string
	LastError         string
	// Unavailable is set once reconnect attempts are exhausted. It is
	// terminal for the subscription.
	Unavailable bool
}

// Stats counts diagnostic events observed on the feed. Malformed input
// never fails classification, so counters are the only trace of it.
type Stats struct {
	Frames         uint64
	UnknownEvents  uint64
	ParseFallbacks uint64
}

// Client manages subscriptions to the agent-actions feed of one
// backend. At most one subscription is live at a time: opening a new
// one tears down the previous one and discards its in-flight frames.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string

	baseDelay   time.Duration
	capDelay    time.Duration
	maxAttempts int

	onState func(ConnectionState)
	logger  *logging.Logger

	mu      sync.Mutex
	current *Subscription
	state   ConnectionState
	stats   Stats
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthToken sets a bearer token for feed requests.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithBackoff sets the reconnect delay policy. The k-th reconnect is
// scheduled after min(base*k, cap).
func WithBackoff(base, cap time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.capDelay = cap
	}
}

// WithMaxReconnectAttempts sets the reconnect budget.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithStateHandler registers a callback invoked after every
// connection-state change. The callback runs on the subscription
// goroutine and must not block.
func WithStateHandler(fn func(ConnectionState)) Option {
	return func(c *Client) { c.onState = fn }
}

// NewClient creates a Client for the given feed base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // streaming connections have no overall timeout
		},
		baseDelay:   5 * time.Second,
		capDelay:    30 * time.Second,
		maxAttempts: 10,
		logger:      logging.With("component", "stream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the feed base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// State returns a copy of the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a copy of the diagnostic counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Subscription is a handle to one live feed subscription. Frames are
// attributed to the handle that received them, so frames from a
// torn-down subscription can never mutate state for its successor.
type Subscription struct {
	client    *Client
	sessionID string
	jobID     string
	deliver   func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// JobID returns the job this subscription follows.
func (s *Subscription) JobID() string { return s.jobID }

// Done is closed when the subscription goroutine has fully stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns ErrStreamUnavailable if the subscription stopped because
// the reconnect budget was exhausted, nil otherwise.
func (s *Subscription) Err() error {
	st := s.client.State()
	if st.Unavailable {
		return ErrStreamUnavailable
	}
	return nil
}

// Close tears the subscription down. Any pending reconnect timer is
// canceled and no further frames are delivered. Caller-initiated close
// does not count against the reconnect budget.
func (s *Subscription) Close() {
	s.cancel()
	c := s.client
	c.mu.Lock()
	if c.current == s {
		c.current = nil
		c.state.Connected = false
	}
	c.mu.Unlock()
	<-s.done
}

// Open starts a subscription for the given session and job. An already
// open subscription is implicitly closed first; its remaining frames
// are discarded. Classified events are passed to deliver one at a time
// on the subscription goroutine.
func (c *Client) Open(ctx context.Context, sessionID, jobID string, deliver func(Event)) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		client:    c,
		sessionID: sessionID,
		jobID:     jobID,
		deliver:   deliver,
		ctx:       subCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.current
	c.current = s
	c.state = ConnectionState{JobID: jobID}
	c.stats = Stats{}
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	go s.run()
	return s
}

func (s *Subscription) run() {
	defer close(s.done)
	c := s.client

	for {
		err := s.streamOnce()
		if s.ctx.Err() != nil {
			// Caller-initiated close, not an abnormal one.
			return
		}

		attempts := c.noteDisconnect(s, err)
		if attempts > c.maxAttempts {
			c.noteUnavailable(s)
			c.logger.Error("stream unavailable", "job", s.jobID, "attempts", c.maxAttempts)
			return
		}

		delay := c.backoffDelay(attempts)
		c.logger.Warn("stream closed, reconnecting", "job", s.jobID, "attempt", attempts, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// backoffDelay returns the delay before the k-th reconnect attempt:
// min(base*k, cap).
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := c.baseDelay * time.Duration(attempt)
	if d > c.capDelay {
		d = c.capDelay
	}
	return d
}

// streamOnce opens the SSE endpoint and pumps frames until the
// connection ends. Any return is an abnormal close unless the
// subscription context was canceled.
func (s *Subscription) streamOnce() error {
	c := s.client

	endpoint := fmt.Sprintf("%s/stream/agent-actions?%s", c.baseURL, url.Values{
		"session_id": {s.sessionID},
		"job_id":     {s.jobID},
	}.Encode())

	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	c.noteConnected(s)

	return scanFrames(s.ctx, resp.Body, func(f Frame) {
		c.dispatch(s, f)
	})
}

// dispatch classifies one frame and hands it to the consumer, dropping
// frames from subscriptions that are no longer current.
func (c *Client) dispatch(s *Subscription, f Frame) {
	res := Classify(f.Name, []byte(f.Data))

	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	c.stats.Frames++
	if !res.Known {
		c.stats.UnknownEvents++
		c.mu.Unlock()
		c.logger.Debug("dropping unknown event", "name", f.Name)
		return
	}
	if res.Fallback {
		c.stats.ParseFallbacks++
	}
	c.mu.Unlock()

	if s.deliver != nil {
		s.deliver(res.Event)
	}
}

func (c *Client) noteConnected(s *Subscription) {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	c.state.Connected = true
	c.state.ReconnectAttempts = 0
	c.state.LastError = ""
	st := c.state
	onState := c.onState
	c.mu.Unlock()

	if onState != nil {
		onState(st)
	}
}

func (c *Client) noteDisconnect(s *Subscription, err error) int {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return c.maxAttempts + 1
	}
	c.state.Connected = false
	c.state.ReconnectAttempts++
	if err != nil {
		c.state.LastError = err.Error()
	}
	attempts := c.state.ReconnectAttempts
	st := c.state
	onState := c.onState
	c.mu.Unlock()

	if onState != nil {
		onState(st)
	}
	return attempts
}

func (c *Client) noteUnavailable(s *Subscription) {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	c.state.Unavailable = true
	c.state.LastError = ErrStreamUnavailable.Error()
	st := c.state
	onState := c.onState
	c.mu.Unlock()

	if onState != nil {
		onState(st)
	}
}
