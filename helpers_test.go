package tabAuth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quillpress/tabAuth/refresh"
	"github.com/quillpress/tabAuth/tokenstore"
)

type refreshReply struct {
	token string
	err   error
}

type refreshCall struct {
	reply chan refreshReply
}

// fakeRefresher parks every call until the test answers it.
type fakeRefresher struct {
	calls chan *refreshCall
	count atomic.Int32
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{calls: make(chan *refreshCall, 16)}
}

func (f *fakeRefresher) Refresh(ctx context.Context) (string, error) {
	f.count.Add(1)
	c := &refreshCall{reply: make(chan refreshReply, 1)}
	f.calls <- c
	select {
	case r := <-c.reply:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeRefresher) next(t *testing.T) *refreshCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh call")
		return nil
	}
}

func (f *fakeRefresher) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
		t.Fatal("unexpected refresh call")
	case <-time.After(50 * time.Millisecond):
	}
}

func (c *refreshCall) succeed(token string) { c.reply <- refreshReply{token: token} }
func (c *refreshCall) fail(err error)       { c.reply <- refreshReply{err: err} }

type fakeInvalidator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls.Add(1)
	return f.err
}

// recordingBridge keeps the marker the Manager last wrote.
type recordingBridge struct {
	mu     sync.Mutex
	marker string
	sets   int
	clears int
	err    error
}

func (b *recordingBridge) Set(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.marker = token
	b.sets++
	return nil
}

func (b *recordingBridge) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.marker = ""
	b.clears++
	return nil
}

func (b *recordingBridge) Marker() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.marker
}

var errStoreDown = errors.New("store down")

type failingStore struct{}

func (failingStore) Write(context.Context, tokenstore.Record) error { return errStoreDown }
func (failingStore) Read(context.Context) (tokenstore.Record, bool, error) {
	return tokenstore.Record{}, false, errStoreDown
}
func (failingStore) Clear(context.Context) error { return errStoreDown }

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (c *manualClock) NewTicker(time.Duration) refresh.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) tick() {
	c.mu.Lock()
	t := c.tickers[len(c.tickers)-1]
	c.mu.Unlock()
	select {
	case t.ch <- time.Now():
	default:
	}
}

type testHarness struct {
	m         *Manager
	refresher *fakeRefresher
	inv       *fakeInvalidator
	bridge    *recordingBridge
	store     tokenstore.Store
	clock     *manualClock
	sink      *ChannelSink
	forced    atomic.Int32
	cause     atomic.Value
}

type harnessOption func(*Builder, *testHarness)

func withStore(s tokenstore.Store) harnessOption {
	return func(b *Builder, h *testHarness) {
		h.store = s
		b.WithTokenStore(s)
	}
}

func withConfig(cfg Config) harnessOption {
	return func(b *Builder, _ *testHarness) { b.WithConfig(cfg) }
}

func newHarness(t *testing.T, opts ...harnessOption) *testHarness {
	t.Helper()
	h := &testHarness{
		refresher: newFakeRefresher(),
		inv:       &fakeInvalidator{},
		bridge:    &recordingBridge{},
		store:     tokenstore.NewMemoryStore(),
		clock:     &manualClock{},
		sink:      NewChannelSink(128),
	}

	b := New().
		WithTokenStore(h.store).
		WithBridge(h.bridge).
		WithRefresher(h.refresher).
		WithInvalidator(h.inv).
		WithClock(h.clock).
		WithAuditSink(h.sink).
		WithForcedLogoutHook(func(_ Session, cause error) {
			h.forced.Add(1)
			h.cause.Store(cause)
		})
	for _, opt := range opts {
		opt(b, h)
	}

	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h.m = m
	t.Cleanup(m.Close)
	return h
}

func (h *testHarness) storedRecord(t *testing.T) (tokenstore.Record, bool) {
	t.Helper()
	rec, found, err := h.store.Read(context.Background())
	if err != nil {
		t.Fatalf("store read: %v", err)
	}
	return rec, found
}

// events closes the manager to flush the dispatcher and returns every event
// delivered so far.
func (h *testHarness) events() []AuditEvent {
	h.m.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-h.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countEvents(events []AuditEvent, typ string) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func assertInvariant(t *testing.T, s Session) {
	t.Helper()
	if s.Authenticated != (s.AccessToken != "") {
		t.Fatalf("invariant broken: %+v", s)
	}
	if !s.Authenticated && s.Identity != nil {
		t.Fatalf("unauthenticated session carries identity: %+v", s)
	}
}

// tickUntilCall ticks until a refresh call arrives. A tick that lands while the
// previous firing is still unwinding is skipped by the scheduler.
func (h *testHarness) tickUntilCall(t *testing.T) *refreshCall {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		h.clock.tick()
		select {
		case c := <-h.refresher.calls:
			return c
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for ticked refresh call")
			return nil
		}
	}
}
