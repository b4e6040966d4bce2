package mode

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/pkg/events"
)

// recorder captures the transition-relevant events in arrival order from a
// single subscriber's perspective.
type recorder struct {
	mu   sync.Mutex
	seen []bus.Event
}

func newRecorder(b *bus.Bus) *recorder {
	r := &recorder{}
	handler := func(_ context.Context, evt bus.Event) {
		r.mu.Lock()
		r.seen = append(r.seen, evt)
		r.mu.Unlock()
	}
	// One subscriber per topic; per-subscriber ordering holds per topic,
	// and the grace period orders events across the three topics.
	b.Subscribe(events.ModeTransitionStarted, handler)
	b.Subscribe(events.SystemModeChange, handler)
	b.Subscribe(events.ModeTransitionComplete, handler)
	return r
}

func (r *recorder) topics() []events.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Topic, len(r.seen))
	for i, e := range r.seen {
		out[i] = e.Topic
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		have := len(r.seen)
		r.mu.Unlock()
		if have >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events", n)
}

func startedManager(t *testing.T, b *bus.Bus) *Manager {
	t.Helper()
	m := New(b, nil, WithGracePeriod(5*time.Millisecond))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return m
}

func TestTransition_EventTripleOrder(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	rec := newRecorder(b)
	m := startedManager(t, b)

	if err := m.Transition(context.Background(), ModeIdle); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	rec.waitFor(t, 3)

	want := []events.Topic{
		events.ModeTransitionStarted,
		events.SystemModeChange,
		events.ModeTransitionComplete,
	}
	got := rec.topics()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (full order %v)", i, got[i], want[i], got)
		}
	}
	if m.Current() != ModeIdle {
		t.Errorf("mode = %s, want IDLE", m.Current())
	}
}

func TestTransition_ChangeCarriesOldAndNew(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	changes := make(chan events.ModeChange, 1)
	b.Subscribe(events.SystemModeChange, func(_ context.Context, evt bus.Event) {
		changes <- evt.Payload.(events.ModeChange)
	})

	m := startedManager(t, b)
	if err := m.Transition(context.Background(), ModeInteractive); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	select {
	case ch := <-changes:
		if ch.OldMode != "STARTUP" || ch.NewMode != "INTERACTIVE" {
			t.Errorf("change = %s -> %s, want STARTUP -> INTERACTIVE", ch.OldMode, ch.NewMode)
		}
	case <-time.After(time.Second):
		t.Fatal("no mode change event")
	}
}

func TestSetModeRequest_SelfTransitionEmitsNoChange(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	m := startedManager(t, b)
	if err := m.Transition(context.Background(), ModeIdle); err != nil {
		t.Fatalf("seed transition: %v", err)
	}

	changes := make(chan events.ModeChange, 1)
	b.Subscribe(events.SystemModeChange, func(_ context.Context, evt bus.Event) {
		changes <- evt.Payload.(events.ModeChange)
	})
	responses := make(chan events.CommandResponse, 1)
	b.Subscribe(events.CLIResponse, func(_ context.Context, evt bus.Event) {
		responses <- evt.Payload.(events.CommandResponse)
	})

	b.Emit(events.SystemSetModeRequest, events.SetModeRequest{Base: events.NewBase(), Mode: "IDLE"})

	select {
	case resp := <-responses:
		if resp.IsError {
			t.Errorf("self-transition reported error: %s", resp.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("no requester response")
	}
	select {
	case ch := <-changes:
		t.Errorf("self-transition emitted mode change %s -> %s", ch.OldMode, ch.NewMode)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetModeRequest_UnknownModeRejected(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	m := startedManager(t, b)

	responses := make(chan events.CommandResponse, 1)
	b.Subscribe(events.CLIResponse, func(_ context.Context, evt bus.Event) {
		responses <- evt.Payload.(events.CommandResponse)
	})

	b.Emit(events.SystemSetModeRequest, events.SetModeRequest{Base: events.NewBase(), Mode: "PARTY"})

	select {
	case resp := <-responses:
		if !resp.IsError {
			t.Errorf("unknown mode accepted: %s", resp.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("no error response")
	}
	if m.Current() != ModeStartup {
		t.Errorf("mode = %s, want unchanged STARTUP", m.Current())
	}
}

func TestTransition_FailureRevertsState(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	m := New(b, nil, WithGracePeriod(50*time.Millisecond))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	completes := make(chan events.ModeTransition, 1)
	b.Subscribe(events.ModeTransitionComplete, func(_ context.Context, evt bus.Event) {
		completes <- evt.Payload.(events.ModeTransition)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // the grace sleep fails immediately

	if err := m.Transition(ctx, ModeIdle); err == nil {
		t.Fatal("Transition with cancelled ctx succeeded")
	}
	if m.Current() != ModeStartup {
		t.Errorf("mode = %s, want reverted STARTUP", m.Current())
	}
	select {
	case tr := <-completes:
		if tr.Status != "failed" || tr.Reason == "" {
			t.Errorf("completion status = %s reason %q, want failed with reason", tr.Status, tr.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("no failed completion event")
	}
}

func TestAdvanceFromStartup(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	m := startedManager(t, b)
	if err := m.AdvanceFromStartup(context.Background()); err != nil {
		t.Fatalf("AdvanceFromStartup: %v", err)
	}
	if m.Current() != ModeIdle {
		t.Errorf("mode = %s, want IDLE", m.Current())
	}

	// Second call is a no-op.
	if err := m.AdvanceFromStartup(context.Background()); err != nil {
		t.Errorf("repeat AdvanceFromStartup: %v", err)
	}
}

func TestReset_ReturnsToIdle(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	responses := make(chan events.CommandResponse, 2)
	b.Subscribe(events.CLIResponse, func(_ context.Context, evt bus.Event) {
		responses <- evt.Payload.(events.CommandResponse)
	})

	m := startedManager(t, b)
	if err := m.Transition(context.Background(), ModeAmbient); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	b.Emit(events.ConversationResetRequested, events.ResetRequest{Base: events.NewBase(), Source: "cli"})

	select {
	case resp := <-responses:
		if resp.IsError {
			t.Fatalf("reset errored: %s", resp.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reset response")
	}
	if got := m.Current(); got != ModeIdle {
		t.Errorf("mode after reset = %s, want IDLE", got)
	}

	// Resetting an already idle system answers without a transition.
	b.Emit(events.ConversationResetRequested, events.ResetRequest{Base: events.NewBase(), Source: "cli"})
	select {
	case resp := <-responses:
		if resp.IsError {
			t.Errorf("idle reset errored: %s", resp.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no idle reset response")
	}
}
