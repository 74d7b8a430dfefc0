// Package bus routes events from providers to listeners. Each listener
// gets an unbounded FIFO buffer drained by its own goroutine, so a slow
// listener delays only itself and loses nothing.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
)

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("bus is closed")

// Handler processes one event. Delivery order within a subscription
// follows enqueue order.
type Handler func(ctx context.Context, evt *event.Event) error

// EnabledFunc reports whether a subscription currently accepts events.
// It is consulted at enqueue time, so a disabled listener stops
// receiving immediately.
type EnabledFunc func() bool

// Stats is a snapshot of per-subscription counters.
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	QueueLen  int    `json:"queue_len"`
}

type subscription struct {
	name    string
	handler Handler
	enabled EnabledFunc

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []*event.Event
	closed bool
	done   chan struct{}

	enqueued  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// enqueue appends evt to the buffer. It reports false once the
// subscription is closing; such events are not accepted.
func (sub *subscription) enqueue(evt *event.Event) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return false
	}

	sub.buf = append(sub.buf, evt)
	sub.enqueued.Add(1)
	sub.cond.Signal()

	return true
}

// close stops accepting events and wakes the drain worker so it can
// deliver the remaining buffer and exit.
func (sub *subscription) close() {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()

	sub.cond.Broadcast()
}

func (sub *subscription) queueLen() int {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	return len(sub.buf)
}

// Bus fans events out to subscriptions.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*subscription
	queueSize int
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    logger.Logger
}

// New creates a Bus. queueSize hints the initial per-subscription
// buffer capacity; buffers grow beyond it as needed.
func New(queueSize int, log logger.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bus{
		subs:      make(map[string]*subscription),
		queueSize: queueSize,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
	}
}

// Subscribe registers a named subscription and starts its worker. A nil
// enabled func means always enabled. Subscribing twice under one name
// replaces nothing; the second call fails.
func (b *Bus) Subscribe(name string, enabled EnabledFunc, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	if _, exists := b.subs[name]; exists {
		return errors.Newf("subscription already exists: %s", name)
	}

	if enabled == nil {
		enabled = func() bool { return true }
	}

	sub := &subscription{
		name:    name,
		handler: handler,
		enabled: enabled,
		buf:     make([]*event.Event, 0, b.queueSize),
		done:    make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)

	b.subs[name] = sub

	b.wg.Add(1)

	go b.drain(sub)

	return nil
}

// Unsubscribe removes a subscription, delivers whatever its buffer
// still holds, and returns only after the worker has exited. Callers
// can rely on no handler invocation starting after it returns.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()

	sub, ok := b.subs[name]
	if ok {
		delete(b.subs, name)
	}

	b.mu.Unlock()

	if !ok {
		return
	}

	sub.close()
	<-sub.done
}

// Publish enqueues evt for every enabled subscription. Buffers are
// unbounded, so an event accepted here is always offered to the
// handler; a subscription racing its own shutdown is the only path
// that refuses one.
func (b *Bus) Publish(evt *event.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for _, sub := range b.subs {
		if !sub.enabled() {
			continue
		}

		if !sub.enqueue(evt) {
			sub.dropped.Add(1)
			b.logger.Warn("event dropped, subscription closing",
				"listener", sub.name,
				"event_type", evt.Type,
				"source", evt.Source,
			)
		}
	}

	return nil
}

// Stats returns a snapshot of every subscription's counters.
func (b *Bus) Stats() map[string]Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]Stats, len(b.subs))

	for name, sub := range b.subs {
		out[name] = Stats{
			Enqueued:  sub.enqueued.Load(),
			Delivered: sub.delivered.Load(),
			Dropped:   sub.dropped.Load(),
			Failed:    sub.failed.Load(),
			QueueLen:  sub.queueLen(),
		}
	}

	return out
}

// Close stops accepting events and waits for all workers to deliver
// their remaining buffers.
func (b *Bus) Close() {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()

		return
	}

	b.closed = true

	subs := make([]*subscription, 0, len(b.subs))

	for name, sub := range b.subs {
		delete(b.subs, name)
		subs = append(subs, sub)
	}

	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}

	b.wg.Wait()
	b.cancel()
}

// drain delivers buffered events to a subscription's handler one at a
// time, exiting once the subscription is closed and the buffer is
// empty. Handler panics are contained so one bad listener cannot take
// down the host.
func (b *Bus) drain(sub *subscription) {
	defer b.wg.Done()
	defer close(sub.done)

	for {
		sub.mu.Lock()

		for len(sub.buf) == 0 && !sub.closed {
			sub.cond.Wait()
		}

		if len(sub.buf) == 0 {
			sub.mu.Unlock()

			return
		}

		batch := sub.buf
		sub.buf = nil
		sub.mu.Unlock()

		for _, evt := range batch {
			b.deliver(sub, evt)
		}
	}
}

func (b *Bus) deliver(sub *subscription, evt *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			sub.failed.Add(1)
			b.logger.Error("listener panicked",
				"listener", sub.name,
				"event_type", evt.Type,
				"panic", r,
			)
		}
	}()

	if err := sub.handler(b.ctx, evt); err != nil {
		sub.failed.Add(1)
		b.logger.Error("listener failed to handle event",
			"listener", sub.name,
			"event_type", evt.Type,
			"error", err,
		)

		return
	}

	sub.delivered.Add(1)
}
