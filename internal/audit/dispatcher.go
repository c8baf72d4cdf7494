package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFlushTimeout bounds how long Close waits for the sink.
const DefaultFlushTimeout = 2 * time.Second

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// FlushTimeout bounds Close. Once it passes, the context handed to the
	// sink is cancelled and events still queued are dropped.
	FlushTimeout time.Duration
}

// Dispatcher forwards events to a sink from a single goroutine, preserving
// emission order.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Event
	done      chan struct{}
	sinkCtx   context.Context
	stopSink  context.CancelFunc
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	delivered atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher returns nil when cfg is disabled; a nil Dispatcher is a valid
// no-op.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}

	sinkCtx, stopSink := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		ch:       make(chan Event, cfg.BufferSize),
		done:     make(chan struct{}),
		sinkCtx:  sinkCtx,
		stopSink: stopSink,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	if d.sinkCtx.Err() != nil {
		d.dropped.Add(1)
		return
	}
	d.sink.Emit(d.sinkCtx, event)
	d.delivered.Add(1)
}

// Emit queues event. With DropIfFull a full buffer drops the event and counts
// it; otherwise Emit blocks until there is room, ctx ends or the dispatcher
// closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting events and flushes the buffer. A sink still busy after
// FlushTimeout sees its context cancelled; sinks must return once it is done.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)

		flushed := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(flushed)
		}()

		timer := time.NewTimer(d.cfg.FlushTimeout)
		defer timer.Stop()
		select {
		case <-flushed:
		case <-timer.C:
			d.stopSink()
			<-flushed
		}
		d.stopSink()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
