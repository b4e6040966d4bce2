// Package bus provides the topic-addressed publish/subscribe event mesh at
// the heart of CantinaOS.
//
// Emission is safe from any goroutine, including foreign threads such as
// audio capture callbacks. Each subscription owns a bounded queue drained by
// a single dispatch goroutine, so delivery order to any one subscriber
// matches the order of successful emits. No cross-topic or cross-subscriber
// ordering is guaranteed. A slow handler grows (and may overflow) only its
// own queue; it never backpressures emitters or other subscribers.
package bus

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/cantina-works/cantinaos/pkg/events"
)

// DefaultQueueSize is the per-subscription queue bound when none is
// configured via [WithQueueSize].
const DefaultQueueSize = 256

// Event pairs a topic with its already-validated payload.
type Event struct {
	Topic   events.Topic
	Payload any
}

// Handler processes one delivered event. Handlers run on the subscription's
// dispatch goroutine; a panicking handler is recovered, logged, and reported
// via the subscription's fault callback without stopping the bus.
type Handler func(ctx context.Context, evt Event)

// Subscription is the removable handle returned by [Bus.Subscribe].
type Subscription struct {
	topic   events.Topic
	handler Handler
	onFault func(topic events.Topic, recovered any)

	// queue is never closed: emitters may hold a snapshot of the
	// subscriber list from before removal, so a send must always be safe.
	// Teardown is signalled through closing instead.
	queue   chan Event
	closing chan struct{}
	done    chan struct{}

	dropped atomic.Uint64
	once    sync.Once
}

// Dropped reports how many events this subscription has discarded because
// its queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Topic returns the topic this subscription is registered on.
func (s *Subscription) Topic() events.Topic {
	return s.topic
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*Subscription)

// WithQueueSize bounds the subscription's delivery queue. Events emitted
// while the queue is full are dropped (and counted) for this subscriber only.
func WithQueueSize(n int) SubscribeOption {
	return func(s *Subscription) {
		if n > 0 {
			s.queue = make(chan Event, n)
		}
	}
}

// WithFaultHandler registers a callback invoked after a handler panic has
// been recovered. Services use this to transition themselves to DEGRADED.
func WithFaultHandler(fn func(topic events.Topic, recovered any)) SubscribeOption {
	return func(s *Subscription) {
		s.onFault = fn
	}
}

// Bus is the process-wide event mesh. Create one with [New] at startup and
// stop it with [Bus.Stop] at shutdown. All exported methods are safe for
// concurrent use from any goroutine.
type Bus struct {
	log *slog.Logger

	// onDrop, when set, observes every dropped delivery (for metrics).
	onDrop func(topic events.Topic)

	mu      sync.RWMutex
	subs    map[events.Topic][]*Subscription
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a [Bus] during construction.
type Option func(*Bus)

// WithLogger sets the bus logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bus) { b.log = log }
}

// WithDropObserver registers a callback invoked once per dropped delivery.
// Used to surface drop counts as metrics.
func WithDropObserver(fn func(topic events.Topic)) Option {
	return func(b *Bus) { b.onDrop = fn }
}

// New creates a running [Bus].
func New(opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		log:    slog.Default(),
		subs:   make(map[events.Topic][]*Subscription),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Emit publishes payload to all current subscribers of topic. It never
// blocks and never returns an error to the caller: a subscriber whose queue
// is full misses the event (the drop is counted and logged), and emitting on
// a stopped bus is a debug-logged no-op.
func (b *Bus) Emit(topic events.Topic, payload any) {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		b.log.Debug("emit on stopped bus", "topic", topic)
		return
	}
	subs := b.subs[topic]
	b.mu.RUnlock()

	evt := Event{Topic: topic, Payload: payload}
	for _, sub := range subs {
		select {
		case sub.queue <- evt:
		default:
			n := sub.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(topic)
			}
			b.log.Warn("subscriber queue full, dropping event",
				"topic", topic,
				"dropped_total", n,
			)
		}
	}
}

// Subscribe registers handler for topic and starts its dispatch goroutine.
// The returned handle can be passed to [Bus.Unsubscribe]. Subscribing on a
// stopped bus returns a handle whose handler will never run.
func (b *Bus) Subscribe(topic events.Topic, handler Handler, opts ...SubscribeOption) *Subscription {
	sub := &Subscription{
		topic:   topic,
		handler: handler,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(sub)
	}
	if sub.queue == nil {
		sub.queue = make(chan Event, DefaultQueueSize)
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		close(sub.done)
		return sub
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.dispatch(sub)
	return sub
}

// Unsubscribe removes sub from the bus and stops its dispatch goroutine
// after the queue drains. It is idempotent and safe to call with a handle
// from a stopped bus.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	list := b.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			b.subs[sub.topic] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	sub.once.Do(func() { close(sub.closing) })
}

// Stop shuts the bus down: no further emits are delivered, all dispatch
// goroutines are stopped, and Stop blocks until in-flight handlers return or
// ctx expires.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	var all []*Subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[events.Topic][]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.closing) })
	}
	b.cancel()

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch drains one subscription's queue, invoking the handler for each
// event in emit order. When Unsubscribe or Stop signals teardown it drains
// what is already queued and exits.
func (b *Bus) dispatch(sub *Subscription) {
	defer b.wg.Done()
	defer close(sub.done)

	for {
		select {
		case evt := <-sub.queue:
			b.invoke(sub, evt)
		case <-sub.closing:
			for {
				select {
				case evt := <-sub.queue:
					b.invoke(sub, evt)
				default:
					return
				}
			}
		}
	}
}

// invoke runs the handler with panic recovery. A handler fault is logged
// with its stack and reported to the subscription's fault callback; the bus
// keeps running.
func (b *Bus) invoke(sub *Subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic",
				"topic", evt.Topic,
				"recovered", r,
				"stack", string(debug.Stack()),
			)
			if sub.onFault != nil {
				sub.onFault(evt.Topic, r)
			}
		}
	}()
	sub.handler(b.ctx, evt)
}
