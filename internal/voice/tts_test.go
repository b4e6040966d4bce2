package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/provider/tts"
	ttsmock "github.com/cantina-works/cantinaos/pkg/provider/tts/mock"
)

// synthRecorder captures the speech lifecycle topics from one subscriber's
// perspective so cross-topic order can be asserted.
type synthRecorder struct {
	seen chan events.Topic
}

func newSynthRecorder(b *bus.Bus) *synthRecorder {
	r := &synthRecorder{seen: make(chan events.Topic, 16)}
	handler := func(_ context.Context, evt bus.Event) { r.seen <- evt.Topic }
	b.Subscribe(events.SpeechSynthesisStarted, handler)
	b.Subscribe(events.SpeechSynthesisAmplitude, handler)
	b.Subscribe(events.SpeechSynthesisCompleted, handler)
	b.Subscribe(events.SpeechSynthesisEnded, handler)
	return r
}

func (r *synthRecorder) next(t *testing.T) events.Topic {
	t.Helper()
	select {
	case topic := <-r.seen:
		return topic
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for synthesis event")
		return ""
	}
}

func TestTTS_LifecycleEventOrder(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	provider := &ttsmock.Provider{Segments: []tts.Segment{
		{Audio: []byte{1}, Amplitude: 0.3},
		{Audio: []byte{2}, Amplitude: 0.7},
	}}
	rec := newSynthRecorder(b)

	svc := NewTTS(b, nil, provider, DefaultTTSConfig())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())

	b.Emit(events.TTSRequest, events.SynthesisRequest{Base: events.NewTurnBase("conv-1"), Text: "Welcome to the cantina!"})

	want := []events.Topic{
		events.SpeechSynthesisStarted,
		events.SpeechSynthesisAmplitude,
		events.SpeechSynthesisAmplitude,
		events.SpeechSynthesisCompleted,
		events.SpeechSynthesisEnded,
	}
	for i, w := range want {
		if got := rec.next(t); got != w {
			t.Fatalf("event %d = %s, want %s", i, got, w)
		}
	}
	if provider.SynthesizeCallCount() != 1 {
		t.Errorf("synthesize calls = %d, want 1", provider.SynthesizeCallCount())
	}
}

func TestTTS_EmptyTextIgnored(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	provider := &ttsmock.Provider{}
	svc := NewTTS(b, nil, provider, DefaultTTSConfig())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())

	b.Emit(events.TTSRequest, events.SynthesisRequest{Base: events.NewBase(), Text: "   "})

	time.Sleep(100 * time.Millisecond)
	if provider.SynthesizeCallCount() != 0 {
		t.Errorf("synthesize calls = %d, want 0", provider.SynthesizeCallCount())
	}
}

func TestTTS_FailureStillEmitsEnded(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	provider := &ttsmock.Provider{SynthesizeErr: errors.New("vendor down")}
	rec := newSynthRecorder(b)
	errCh := make(chan events.ErrorPayload, 1)
	b.Subscribe(events.VoiceError, func(_ context.Context, evt bus.Event) {
		errCh <- evt.Payload.(events.ErrorPayload)
	})

	svc := NewTTS(b, nil, provider, DefaultTTSConfig())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())

	b.Emit(events.TTSRequest, events.SynthesisRequest{Base: events.NewBase(), Text: "hello"})

	if got := rec.next(t); got != events.SpeechSynthesisStarted {
		t.Fatalf("first event = %s, want started", got)
	}
	if got := rec.next(t); got != events.SpeechSynthesisEnded {
		t.Fatalf("second event = %s, want ended (ducking must recover)", got)
	}
	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("no voice.error")
	}
}
