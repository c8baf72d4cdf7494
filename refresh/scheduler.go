package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidPeriod is returned by NewScheduler for a non-positive period.
	ErrInvalidPeriod = errors.New("refresh: period must be > 0")
	// ErrRunning is returned by Start on a scheduler that is already running.
	ErrRunning = errors.New("refresh: scheduler already running")
)

// Func is one renewal attempt. ctx is canceled when the scheduler stops.
type Func func(ctx context.Context)

// Config controls scheduler timing.
type Config struct {
	Period time.Duration
	Clock  Clock
	// OnSkip is called from the loop goroutine when a firing is skipped because
	// the previous attempt is still running. It must not block.
	OnSkip func()
}

// Scheduler fires a [Func] immediately and then every Period until stopped.
type Scheduler struct {
	cfg  Config
	fire Func

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inFlight atomic.Bool
	fired    atomic.Uint64
	skipped  atomic.Uint64
}

// NewScheduler creates a stopped [Scheduler].
func NewScheduler(cfg Config, fire Func) (*Scheduler, error) {
	if cfg.Period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if fire == nil {
		return nil, errors.New("refresh: fire func required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return &Scheduler{cfg: cfg, fire: fire}, nil
}

// Start begins the loop and dispatches the first firing before returning.
// The loop ends when ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ticker := s.cfg.Clock.NewTicker(s.cfg.Period)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.dispatch(loopCtx)
	go s.run(loopCtx, ticker, done)

	return nil
}

func (s *Scheduler) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			s.dispatch(ctx)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		if s.cfg.OnSkip != nil {
			s.cfg.OnSkip()
		}
		return
	}

	s.fired.Add(1)
	go func() {
		defer s.inFlight.Store(false)
		s.fire(ctx)
	}()
}

// Stop cancels the loop and waits for it to exit. No firing is dispatched after
// Stop returns. An attempt already in flight keeps running with a canceled
// context. Stop is idempotent and safe to call from inside a firing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// Fired returns the number of dispatched firings.
func (s *Scheduler) Fired() uint64 { return s.fired.Load() }

// Skipped returns the number of firings skipped while an attempt was in flight.
func (s *Scheduler) Skipped() uint64 { return s.skipped.Load() }
