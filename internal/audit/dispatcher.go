package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// OnDrop is called synchronously for every event discarded because the buffer
	// was full. It must not block.
	OnDrop func(Event)
}

// Dispatcher forwards audit events to a sink from a single background
// goroutine. A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink     Sink
	queue    chan Event
	blocking bool
	onDrop   func(Event)
	dropped  atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// NewDispatcher starts delivery. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:     sink,
		queue:    make(chan Event, max(cfg.BufferSize, 1)),
		blocking: !cfg.DropIfFull,
		onDrop:   cfg.OnDrop,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go d.deliver()
	return d
}

// deliver forwards queued events until Close, then flushes what is buffered.
func (d *Dispatcher) deliver() {
	defer close(d.stopped)
	ctx := context.Background()

	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		case <-d.stop:
			for n := len(d.queue); n > 0; n-- {
				d.sink.Emit(ctx, <-d.queue)
			}
			return
		}
	}
}

func (d *Dispatcher) closing() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

// Emit queues event. Without DropIfFull it waits for buffer space until ctx is
// done; with it a full buffer discards the event.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing() {
		return
	}

	if !d.blocking {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
			if d.onDrop != nil {
				d.onDrop(event)
			}
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events and returns once buffered events are delivered.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.stopped
}

// Dropped reports how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
