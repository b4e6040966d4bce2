// Package intent translates validated LLM tool calls into hardware command
// events. The router is the single place that knows which internal topic
// each intent maps to; the LLM service stays vendor-shaped and the hardware
// services stay intent-agnostic.
package intent

import (
	"context"
	"log/slog"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
)

// Router fans intent.detected events out to music and peripheral commands.
// Unknown intents are logged and dropped.
type Router struct {
	*service.Base
}

// New creates the intent router.
func New(b *bus.Bus, log *slog.Logger) *Router {
	return &Router{Base: service.NewBase("intent_router", b, log)}
}

// Start subscribes to detected intents.
func (r *Router) Start(ctx context.Context) error {
	return r.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		r.Subscribe(events.IntentDetected, r.handleIntent)
		return nil
	}})
}

// Stop tears down subscriptions via the base.
func (r *Router) Stop(ctx context.Context) error {
	return r.StopWithHooks(ctx, service.Hooks{})
}

func (r *Router) handleIntent(_ context.Context, evt bus.Event) {
	in, ok := evt.Payload.(events.Intent)
	if !ok {
		return
	}

	switch in.IntentName {
	case "play_music":
		r.Emit(events.MusicCommand, events.MusicRequest{
			Base:      events.NewTurnBase(in.ConversationID),
			Action:    "play",
			SongQuery: stringParam(in.Parameters, "track"),
		})

	case "stop_music":
		r.Emit(events.MusicCommand, events.MusicRequest{
			Base:   events.NewTurnBase(in.ConversationID),
			Action: "stop",
		})

	case "set_eye_color":
		r.Emit(events.EyeCommand, events.EyeState{
			Base:      events.NewTurnBase(in.ConversationID),
			Pattern:   stringParam(in.Parameters, "pattern"),
			Color:     stringParam(in.Parameters, "color"),
			Intensity: floatParam(in.Parameters, "intensity"),
		})

	default:
		r.Log().Warn("unknown intent dropped", "intent", in.IntentName)
	}
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func floatParam(params map[string]any, key string) float64 {
	f, _ := params[key].(float64)
	return f
}
