// Package mode implements the finite-state system mode manager.
//
// Exactly one mode is current at any time. Transitions are event-sourced:
// every change emits mode.transition.started, then system.mode.change, then
// mode.transition.complete, with a configurable grace period around the
// state mutation so downstream subscribers observe the events in order.
package mode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
)

// Mode is a system operating mode.
type Mode string

const (
	ModeStartup     Mode = "STARTUP"
	ModeIdle        Mode = "IDLE"
	ModeAmbient     Mode = "AMBIENT"
	ModeInteractive Mode = "INTERACTIVE"
)

// IsValid reports whether m is a recognised requestable mode. STARTUP is
// the initial state only and cannot be requested.
func (m Mode) IsValid() bool {
	switch m {
	case ModeIdle, ModeAmbient, ModeInteractive:
		return true
	}
	return false
}

// DefaultGracePeriod separates the state mutation from the surrounding
// transition events.
const DefaultGracePeriod = 100 * time.Millisecond

// Manager owns the current system mode and serializes all transitions.
type Manager struct {
	*service.Base

	grace time.Duration

	mu      sync.Mutex
	current Mode
}

// Option configures a Manager during construction.
type Option func(*Manager)

// WithGracePeriod overrides the transition grace period. Tests use a zero
// duration to avoid wall-clock sleeps.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// New creates a Manager in STARTUP.
func New(b *bus.Bus, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		Base:    service.NewBase("mode_manager", b, log),
		grace:   DefaultGracePeriod,
		current: ModeStartup,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Current returns the current system mode.
func (m *Manager) Current() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Start subscribes to transition requests and auto-advances STARTUP → IDLE.
func (m *Manager) Start(ctx context.Context) error {
	return m.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		m.Subscribe(events.SystemSetModeRequest, m.handleSetMode)
		m.Subscribe(events.ConversationResetRequested, m.handleReset)
		return nil
	}})
}

// Stop forces IDLE before stopping so dependent services (music, voice)
// observe a final quiesce transition.
func (m *Manager) Stop(ctx context.Context) error {
	return m.StopWithHooks(ctx, service.Hooks{OnStop: func(ctx context.Context) error {
		if m.Current() != ModeIdle {
			if err := m.Transition(ctx, ModeIdle); err != nil {
				m.Log().Warn("forced idle transition failed", "err", err)
			}
		}
		return nil
	}})
}

// AdvanceFromStartup performs the automatic STARTUP → IDLE transition after
// all services have started. Calling it in any other state is a no-op.
func (m *Manager) AdvanceFromStartup(ctx context.Context) error {
	if m.Current() != ModeStartup {
		return nil
	}
	return m.Transition(ctx, ModeIdle)
}

// handleSetMode validates a system.set_mode.request and runs the
// transition, reporting the outcome on cli.response.
func (m *Manager) handleSetMode(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(events.SetModeRequest)
	if !ok {
		m.Log().Warn("unexpected payload on set_mode request", "type", fmt.Sprintf("%T", evt.Payload))
		return
	}

	target := Mode(req.Mode)
	if !target.IsValid() {
		m.Emit(events.CLIResponse, events.CommandResponse{
			Base:    events.NewBase(),
			Message: fmt.Sprintf("unknown mode %q (valid: IDLE, AMBIENT, INTERACTIVE)", req.Mode),
			IsError: true,
		})
		return
	}

	if target == m.Current() {
		// Self-transition: inform the requester, no events.
		m.Emit(events.CLIResponse, events.CommandResponse{
			Base:    events.NewBase(),
			Message: fmt.Sprintf("already in %s mode", target),
		})
		return
	}

	if err := m.Transition(ctx, target); err != nil {
		m.Emit(events.CLIResponse, events.CommandResponse{
			Base:    events.NewBase(),
			Message: fmt.Sprintf("transition to %s failed: %v", target, err),
			IsError: true,
		})
		return
	}
	m.Emit(events.CLIResponse, events.CommandResponse{
		Base:    events.NewBase(),
		Message: fmt.Sprintf("entered %s mode", target),
	})
}

// handleReset returns the system to IDLE as part of a conversation reset.
// The LLM service answers the same request by clearing its memory.
func (m *Manager) handleReset(ctx context.Context, _ bus.Event) {
	if m.Current() == ModeIdle {
		m.Emit(events.CLIResponse, events.CommandResponse{
			Base:    events.NewBase(),
			Message: "system reset (already IDLE)",
		})
		return
	}
	if err := m.Transition(ctx, ModeIdle); err != nil {
		m.Emit(events.CLIResponse, events.CommandResponse{
			Base:    events.NewBase(),
			Message: fmt.Sprintf("reset failed: %v", err),
			IsError: true,
		})
		return
	}
	m.Emit(events.CLIResponse, events.CommandResponse{
		Base:    events.NewBase(),
		Message: "system reset, returned to IDLE",
	})
}

// Transition runs the full event-sourced transition sequence to target.
// On any failure between the started event and completion the state is
// reverted and the completion event carries status=failed with a reason.
func (m *Manager) Transition(ctx context.Context, target Mode) error {
	m.mu.Lock()
	old := m.current
	m.mu.Unlock()

	if target == old {
		return nil
	}

	m.Log().Info("mode transition", "from", old, "to", target)
	m.emitTransition(events.ModeTransitionStarted, old, target, "started", "")

	if err := m.sleep(ctx); err != nil {
		return m.fail(old, target, err)
	}

	m.mu.Lock()
	m.current = target
	m.mu.Unlock()

	m.Emit(events.SystemModeChange, events.ModeChange{
		Base:    events.NewBase(),
		OldMode: string(old),
		NewMode: string(target),
	})

	if err := m.sleep(ctx); err != nil {
		return m.fail(old, target, err)
	}

	m.emitTransition(events.ModeTransitionComplete, old, target, "success", "")
	return nil
}

// fail reverts the state and emits the failed completion event.
func (m *Manager) fail(old, target Mode, err error) error {
	m.mu.Lock()
	m.current = old
	m.mu.Unlock()

	m.Log().Error("mode transition failed", "from", old, "to", target, "err", err)
	m.emitTransition(events.ModeTransitionComplete, old, target, "failed", err.Error())
	m.MarkError(fmt.Sprintf("transition %s -> %s: %v", old, target, err))
	return fmt.Errorf("mode: transition %s -> %s: %w", old, target, err)
}

func (m *Manager) emitTransition(topic events.Topic, old, target Mode, status, reason string) {
	m.Emit(topic, events.ModeTransition{
		Base:    events.NewBase(),
		OldMode: string(old),
		NewMode: string(target),
		Status:  status,
		Reason:  reason,
	})
}

// sleep waits one grace period or until ctx is cancelled.
func (m *Manager) sleep(ctx context.Context) error {
	if m.grace <= 0 {
		return nil
	}
	t := time.NewTimer(m.grace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
