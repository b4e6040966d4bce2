package voice

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/provider/tts"
)

// TTSConfig selects the synthesis voice.
type TTSConfig struct {
	Voice tts.Voice
}

// DefaultTTSConfig returns the stock DJ voice.
func DefaultTTSConfig() TTSConfig {
	return TTSConfig{Voice: tts.Voice{ID: "dj-rex", Name: "DJ R3X"}}
}

// TTS turns tts.request text into speech lifecycle events: started, a
// stream of amplitude samples for mouth animation, then completed and
// ended. The music controller ducks on the started/ended pair.
//
// Requests are serialized on the subscription's dispatch goroutine so two
// utterances never overlap.
type TTS struct {
	*service.Base

	provider tts.Provider
	cfg      TTSConfig
}

// NewTTS creates the synthesis service on top of the given provider.
func NewTTS(b *bus.Bus, log *slog.Logger, provider tts.Provider, cfg TTSConfig) *TTS {
	if cfg.Voice.ID == "" {
		cfg = DefaultTTSConfig()
	}
	return &TTS{
		Base:     service.NewBase("tts", b, log),
		provider: provider,
		cfg:      cfg,
	}
}

// Start subscribes to synthesis requests.
func (t *TTS) Start(ctx context.Context) error {
	return t.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		t.Subscribe(events.TTSRequest, t.handleRequest)
		return nil
	}})
}

// Stop tears down subscriptions via the base.
func (t *TTS) Stop(ctx context.Context) error {
	return t.StopWithHooks(ctx, service.Hooks{})
}

func (t *TTS) handleRequest(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(events.SynthesisRequest)
	if !ok {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return
	}

	t.Emit(events.SpeechSynthesisStarted, events.SpeechSynthesis{
		Base: events.NewTurnBase(req.ConversationID),
		Text: text,
	})

	segments, err := t.provider.Synthesize(ctx, text, t.cfg.Voice)
	if err != nil {
		t.Log().Error("synthesis failed", "err", err)
		t.Emit(events.VoiceError, events.ErrorPayload{
			Base:    events.NewTurnBase(req.ConversationID),
			Service: t.Name(),
			Message: "synthesis failed: " + err.Error(),
		})
		// ended still fires so ducking and the UI indicator recover.
		t.Emit(events.SpeechSynthesisEnded, events.SpeechSynthesis{
			Base: events.NewTurnBase(req.ConversationID),
		})
		return
	}

	for seg := range segments {
		t.Emit(events.SpeechSynthesisAmplitude, events.SpeechSynthesis{
			Base:      events.NewTurnBase(req.ConversationID),
			Amplitude: seg.Amplitude,
		})
	}

	t.Emit(events.SpeechSynthesisCompleted, events.SpeechSynthesis{
		Base: events.NewTurnBase(req.ConversationID),
	})
	t.Emit(events.SpeechSynthesisEnded, events.SpeechSynthesis{
		Base: events.NewTurnBase(req.ConversationID),
	})
	t.Log().Info("synthesis complete", "chars", len(text))
}
