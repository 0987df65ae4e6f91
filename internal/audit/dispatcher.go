package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls queueing in front of the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit discard instead of waiting for queue space.
	DropIfFull bool
	// SinkTimeout bounds one Sink.Emit call. Zero means no deadline.
	SinkTimeout time.Duration
}

// Stats counts what happened to events handed to a Dispatcher.
type Stats struct {
	Delivered uint64
	// QueueFull counts events discarded because the queue had no room.
	QueueFull uint64
	// Abandoned counts events whose caller context ended while waiting.
	Abandoned uint64
	// AfterClose counts events emitted once Close had started.
	AfterClose uint64
}

// Dropped is the total of every discard cause.
func (s Stats) Dropped() uint64 {
	return s.QueueFull + s.Abandoned + s.AfterClose
}

// Dispatcher moves login audit records off the request path. One worker
// feeds the sink in queue order. A nil Dispatcher discards everything.
type Dispatcher struct {
	cfg  Config
	sink Sink

	queue   chan Event
	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
	closing atomic.Bool

	delivered  atomic.Uint64
	queueFull  atomic.Uint64
	abandoned  atomic.Uint64
	afterClose atomic.Uint64
}

// NewDispatcher starts the worker. It returns nil when audit is disabled,
// which callers may use as-is.
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

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.work()
	return d
}

func (d *Dispatcher) work() {
	defer d.stopped.Done()

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush hands whatever is still queued to the sink.
func (d *Dispatcher) flush() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx := context.Background()
	if d.cfg.SinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SinkTimeout)
		defer cancel()
	}
	d.sink.Emit(ctx, ev)
	d.delivered.Add(1)
}

// Emit queues ev. With DropIfFull it returns at once when the queue is
// full; otherwise it waits for room until ctx ends. A login outcome is
// final before Emit is called, so a discarded record never changes it.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if d.closing.Load() {
		d.afterClose.Add(1)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
			d.afterClose.Add(1)
		default:
			d.queueFull.Add(1)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.abandoned.Add(1)
	case <-d.stop:
		d.afterClose.Add(1)
	}
}

// Close refuses new events and waits until the queue reaches the sink.
// Repeated calls are no-ops.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

// Stats returns the current delivery and discard counts.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered:  d.delivered.Load(),
		QueueFull:  d.queueFull.Load(),
		Abandoned:  d.abandoned.Load(),
		AfterClose: d.afterClose.Load(),
	}
}

// Dropped returns the number of records that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	return d.Stats().Dropped()
}
