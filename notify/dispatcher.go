package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/loginguard/internal/logging"
	"golang.org/x/time/rate"
)

// ErrQueueFull is returned by [Dispatcher.Notify] when the event was dropped.
var ErrQueueFull = errors.New("notify: queue full")

// Config controls dispatcher buffering and pacing.
type Config struct {
	BufferSize int
	// Timeout bounds one delivery, including the wait for a rate token.
	Timeout time.Duration
	// RatePerSecond caps outbound deliveries. Zero disables the cap.
	RatePerSecond float64
	Burst         int
}

// Dispatcher forwards events to a Notifier on a background goroutine.
// Notify never blocks the caller.
type Dispatcher struct {
	cfg     Config
	target  Notifier
	limiter *rate.Limiter
	log     logging.Logger

	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	delivered atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher in front of target.
func NewDispatcher(cfg Config, target Notifier, log logging.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if target == nil {
		target = Nop{}
	}
	if log == nil {
		log = logging.Discard()
	}

	d := &Dispatcher{
		cfg:    cfg,
		target: target,
		log:    log,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
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
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.failed.Add(1)
			d.log.Warn(ctx, "notification rate wait failed", "event", event.Type, "account_id", event.AccountID, "error", err)
			return
		}
	}
	if err := d.target.Notify(ctx, event); err != nil {
		d.failed.Add(1)
		d.log.Warn(ctx, "notification delivery failed", "event", event.Type, "account_id", event.AccountID, "error", err)
		return
	}
	d.delivered.Add(1)
}

// Notify enqueues event. It returns ErrQueueFull when the buffer is full or
// the dispatcher is closed; the event is dropped in both cases.
func (d *Dispatcher) Notify(_ context.Context, event Event) error {
	if d == nil || d.closed.Load() {
		return ErrQueueFull
	}
	select {
	case d.ch <- event:
		return nil
	case <-d.done:
	default:
	}
	d.dropped.Add(1)
	return ErrQueueFull
}

// Close stops accepting events and drains the buffer.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
