// Package periph implements the peripheral effect services: the LED eyes,
// the mode transition sound effects, and the physical push-to-talk button.
// All three are thin subscribers translating bus traffic into calls on the
// excluded hardware contracts.
package periph

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/lights"
)

// EyesConfig holds the resting eye appearance.
type EyesConfig struct {
	IdleColor string
	Intensity float64
}

// DefaultEyesConfig returns the stock appearance.
func DefaultEyesConfig() EyesConfig {
	return EyesConfig{IdleColor: "blue", Intensity: 0.8}
}

// Eyes drives the LED eye controller from eye commands and voice pipeline
// status events.
type Eyes struct {
	*service.Base

	cfg  EyesConfig
	ctrl lights.Controller

	mu      sync.Mutex
	current lights.State
}

// NewEyes creates the eye service around a hardware controller.
func NewEyes(b *bus.Bus, log *slog.Logger, ctrl lights.Controller, cfg EyesConfig) *Eyes {
	return &Eyes{
		Base: service.NewBase("eyes", b, log),
		cfg:  cfg,
		ctrl: ctrl,
		current: lights.State{
			Pattern:   "idle",
			Color:     cfg.IdleColor,
			Intensity: cfg.Intensity,
		},
	}
}

// Start applies the resting state and subscribes to the driving topics.
func (e *Eyes) Start(ctx context.Context) error {
	return e.StartWithHooks(ctx, service.Hooks{OnStart: func(ctx context.Context) error {
		e.apply(ctx, e.current)

		e.Subscribe(events.EyeCommand, e.handleCommand)
		e.Subscribe(events.VoiceListeningStarted, e.patternHandler("listening"))
		e.Subscribe(events.VoiceListeningStopped, e.patternHandler("processing"))
		e.Subscribe(events.SpeechSynthesisStarted, e.patternHandler("speaking"))
		e.Subscribe(events.SpeechSynthesisAmplitude, e.handleAmplitude)
		e.Subscribe(events.SpeechSynthesisEnded, e.resetHandler)
		e.Subscribe(events.VoiceProcessingComplete, e.resetHandler)
		e.Subscribe(events.SystemModeChange, e.handleModeChange)
		return nil
	}})
}

// Stop releases the controller.
func (e *Eyes) Stop(ctx context.Context) error {
	return e.StopWithHooks(ctx, service.Hooks{OnStop: func(_ context.Context) error {
		return e.ctrl.Close()
	}})
}

// Current returns the last applied state.
func (e *Eyes) Current() lights.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Eyes) handleCommand(ctx context.Context, evt bus.Event) {
	cmd, ok := evt.Payload.(events.EyeState)
	if !ok {
		return
	}
	e.mu.Lock()
	next := e.current
	if cmd.Pattern != "" {
		next.Pattern = cmd.Pattern
	}
	if cmd.Color != "" {
		next.Color = cmd.Color
	}
	if cmd.Intensity > 0 {
		next.Intensity = min(cmd.Intensity, 1)
	}
	e.mu.Unlock()
	e.apply(ctx, next)
}

// patternHandler returns a handler that switches the animation pattern while
// keeping color and intensity.
func (e *Eyes) patternHandler(pattern string) bus.Handler {
	return func(ctx context.Context, _ bus.Event) {
		e.mu.Lock()
		next := e.current
		next.Pattern = pattern
		e.mu.Unlock()
		e.apply(ctx, next)
	}
}

// handleAmplitude maps the speech level onto brightness. A floor keeps the
// eyes visibly lit between words.
func (e *Eyes) handleAmplitude(ctx context.Context, evt bus.Event) {
	sp, ok := evt.Payload.(events.SpeechSynthesis)
	if !ok {
		return
	}
	e.mu.Lock()
	next := e.current
	next.Intensity = 0.2 + 0.8*min(max(sp.Amplitude, 0), 1)
	e.mu.Unlock()
	e.apply(ctx, next)
}

// resetHandler returns the eyes to the resting state when speech or a voice
// turn ends.
func (e *Eyes) resetHandler(ctx context.Context, _ bus.Event) {
	e.apply(ctx, lights.State{
		Pattern:   "idle",
		Color:     e.cfg.IdleColor,
		Intensity: e.cfg.Intensity,
	})
}

func (e *Eyes) handleModeChange(ctx context.Context, evt bus.Event) {
	ch, ok := evt.Payload.(events.ModeChange)
	if !ok {
		return
	}
	e.mu.Lock()
	next := e.current
	next.Pattern = strings.ToLower(ch.NewMode)
	e.mu.Unlock()
	e.apply(ctx, next)
}

func (e *Eyes) apply(ctx context.Context, s lights.State) {
	if err := e.ctrl.Apply(ctx, s); err != nil {
		e.Log().Warn("eye controller apply failed", "pattern", s.Pattern, "err", err)
		return
	}
	e.mu.Lock()
	e.current = s
	e.mu.Unlock()
}
