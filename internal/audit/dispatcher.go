package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events on a full buffer instead of blocking the caller.
	DropIfFull bool
	// SinkTimeout bounds each Sink.Emit call. Zero leaves it unbounded.
	SinkTimeout time.Duration
	// OnDrop, if set, sees every dropped event.
	OnDrop func(Event)
}

// Dispatcher relays events to a Sink from a single background goroutine so
// that callers on the decision path never wait on sink I/O.
type Dispatcher struct {
	cfg  Config
	sink Sink

	queue    chan Event
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	stopping atomic.Bool

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher starts delivery. A disabled config yields a nil dispatcher,
// on which every method is a no-op.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		queue:    make(chan Event, max(cfg.BufferSize, 1)),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
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

// flush delivers whatever is still queued after stop.
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

func (d *Dispatcher) drop(ev Event) {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(ev)
	}
}

// Emit queues event. With DropIfFull a full buffer drops it; otherwise Emit
// blocks for room and drops the event if ctx ends first. Events emitted after
// Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.stopping.Load() {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop(event)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.stop:
	}
}

// Close delivers queued events and stops the dispatcher. Safe to call twice.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopping.Store(true)
		close(d.stop)
	})
	<-d.finished
}

// Pending returns the number of queued, undelivered events.
func (d *Dispatcher) Pending() int {
	if d == nil {
		return 0
	}
	return len(d.queue)
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
