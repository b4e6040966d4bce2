// Package service provides the uniform lifecycle contract shared by every
// CantinaOS service: idempotent start/stop, tracked bus subscriptions that
// are removed automatically on stop, status reporting via the bus, and a
// name-scoped logger.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/pkg/events"
)

// ErrStartFailed is wrapped by [Base.Start] when resource acquisition or
// required configuration is missing.
var ErrStartFailed = errors.New("service start failed")

// Status is a service lifecycle state.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusStarting     Status = "STARTING"
	StatusRunning      Status = "RUNNING"
	StatusDegraded     Status = "DEGRADED"
	StatusError        Status = "ERROR"
	StatusStopping     Status = "STOPPING"
	StatusStopped      Status = "STOPPED"
)

// Service is the minimal contract the container manages.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() Status
}

// Hooks are the subclass extension points invoked by [Base.Start] and
// [Base.Stop]. Either hook may be nil.
type Hooks struct {
	// OnStart performs subscription and resource acquisition. A non-nil
	// error aborts the start: the service transitions to ERROR and the
	// error (wrapped in [ErrStartFailed]) propagates to the caller.
	OnStart func(ctx context.Context) error

	// OnStop cancels in-flight work and releases resources. Errors are
	// logged but do not prevent the transition to STOPPED.
	OnStop func(ctx context.Context) error
}

// Base implements the common lifecycle for a concrete service. Embed a
// *Base and pass the service's hooks to [NewBase].
//
// Invariants maintained by Base:
//   - No handler registered via [Base.Subscribe] runs before Start returns
//     success, because subscriptions are only made inside OnStart.
//   - After Stop returns, no further handler invocations occur for tracked
//     subscriptions.
//   - [Base.Emit] publishes only while status is RUNNING or DEGRADED.
type Base struct {
	name string
	bus  *bus.Bus
	log  *slog.Logger

	mu      sync.Mutex
	status  Status
	subs    []*bus.Subscription
	started bool
}

// NewBase creates the lifecycle core for a named service.
func NewBase(name string, b *bus.Bus, log *slog.Logger) *Base {
	if log == nil {
		log = slog.Default()
	}
	return &Base{
		name:   name,
		bus:    b,
		log:    log.With("service", name),
		status: StatusInitializing,
	}
}

// Name returns the stable service name.
func (b *Base) Name() string { return b.name }

// Log returns the service-scoped logger.
func (b *Base) Log() *slog.Logger { return b.log }

// Bus returns the shared event bus.
func (b *Base) Bus() *bus.Bus { return b.bus }

// Status returns the current lifecycle state.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// StartWithHooks runs the start sequence: STARTING → OnStart → RUNNING,
// emitting a status update on success. Idempotent: a second call on a
// running service is a no-op returning nil. On hook failure the service
// transitions to ERROR and the error propagates wrapped in [ErrStartFailed].
func (b *Base) StartWithHooks(ctx context.Context, hooks Hooks) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.status = StatusStarting
	b.mu.Unlock()

	if hooks.OnStart != nil {
		if err := hooks.OnStart(ctx); err != nil {
			b.setStatus(StatusError, err.Error())
			b.mu.Lock()
			b.started = false
			b.mu.Unlock()
			return fmt.Errorf("%s: %w: %w", b.name, ErrStartFailed, err)
		}
	}

	b.setStatus(StatusRunning, "")
	b.log.Info("service started")
	return nil
}

// StopWithHooks runs the stop sequence: STOPPING → remove tracked
// subscriptions → OnStop → STOPPED. Idempotent; safe to call on a service
// that never started.
func (b *Base) StopWithHooks(ctx context.Context, hooks Hooks) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	b.status = StatusStopping
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	// Remove subscriptions first so no new handler invocations occur while
	// OnStop releases resources.
	for _, s := range subs {
		b.bus.Unsubscribe(s)
	}

	if hooks.OnStop != nil {
		if err := hooks.OnStop(ctx); err != nil {
			b.log.Warn("stop hook error", "err", err)
		}
	}

	b.setStatus(StatusStopped, "")
	b.log.Info("service stopped")
	return nil
}

// Subscribe registers handler on the bus and tracks the subscription for
// automatic removal on stop. A panicking handler transitions the service to
// DEGRADED; the bus keeps running.
func (b *Base) Subscribe(topic events.Topic, handler bus.Handler, opts ...bus.SubscribeOption) *bus.Subscription {
	opts = append(opts, bus.WithFaultHandler(func(t events.Topic, recovered any) {
		b.MarkDegraded(fmt.Sprintf("handler fault on %s: %v", t, recovered))
	}))
	sub := b.bus.Subscribe(topic, handler, opts...)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Emit publishes payload on the bus if the service is RUNNING or DEGRADED.
// Emits from any other state are dropped with a debug log, preserving the
// invariant that stopped services are silent.
func (b *Base) Emit(topic events.Topic, payload any) {
	b.mu.Lock()
	st := b.status
	b.mu.Unlock()

	if st != StatusRunning && st != StatusDegraded {
		b.log.Debug("emit suppressed", "topic", topic, "status", st)
		return
	}
	b.bus.Emit(topic, payload)
}

// MarkDegraded records a handler fault: the service keeps running but
// reports the fault via a status update.
func (b *Base) MarkDegraded(reason string) {
	b.mu.Lock()
	if b.status != StatusRunning {
		b.mu.Unlock()
		return
	}
	b.status = StatusDegraded
	b.mu.Unlock()

	b.log.Error("service degraded", "reason", reason)
	b.emitStatus(StatusDegraded, reason)
}

// MarkError transitions the service to ERROR without stopping it. Used for
// unreachable resources discovered after start.
func (b *Base) MarkError(reason string) {
	b.setStatus(StatusError, reason)
}

// setStatus updates the state and emits a status event. Status emission
// bypasses the Emit gate so STARTING/STOPPED transitions are visible.
func (b *Base) setStatus(st Status, message string) {
	b.mu.Lock()
	b.status = st
	b.mu.Unlock()
	b.emitStatus(st, message)
}

func (b *Base) emitStatus(st Status, message string) {
	b.bus.Emit(events.ServiceStatusUpdate, events.ServiceStatus{
		Base:    events.NewBase(),
		Service: b.name,
		Status:  string(st),
		Message: message,
	})
}
