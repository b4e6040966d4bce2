package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/provider/stt"
)

// flushInterval is how long the STT service waits after closing a session
// for in-flight final segments to arrive before it publishes the transcript.
const flushInterval = 250 * time.Millisecond

// STTConfig holds the recognition settings for new sessions.
type STTConfig struct {
	SampleRate int
	Channels   int
	Language   string
}

// DefaultSTTConfig returns the pipeline's standard recognition settings.
func DefaultSTTConfig() STTConfig {
	return STTConfig{SampleRate: 16000, Channels: 1, Language: "en-US"}
}

// sttSession is the per-capture state: the open provider handle and the
// transcript accumulator built from final segments.
type sttSession struct {
	handle         stt.SessionHandle
	conversationID string

	mu     sync.Mutex
	finals []string
	pumpWG sync.WaitGroup
}

func (s *sttSession) appendFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, text)
}

// transcript joins the accumulated final segments with single spaces.
func (s *sttSession) transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.finals, " ")
}

// STT manages streaming transcription sessions. One session is open per
// capture window; interim results are published for display only while
// final results accumulate into the transcript carried by
// voice.listening.stopped.
type STT struct {
	*service.Base

	provider stt.Provider
	cfg      STTConfig

	mu      sync.Mutex
	session *sttSession
}

// NewSTT creates the transcription service on top of the given provider.
func NewSTT(b *bus.Bus, log *slog.Logger, provider stt.Provider, cfg STTConfig) *STT {
	if cfg.SampleRate == 0 {
		cfg = DefaultSTTConfig()
	}
	return &STT{
		Base:     service.NewBase("stt", b, log),
		provider: provider,
		cfg:      cfg,
	}
}

// Start subscribes to the capture lifecycle and audio topics.
func (s *STT) Start(ctx context.Context) error {
	return s.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		s.Subscribe(events.VoiceListeningStarted, s.handleStart)
		s.Subscribe(events.VoiceAudioChunk, s.handleAudio)
		s.Subscribe(events.VoiceListeningStopRequested, s.handleStopRequest)
		return nil
	}})
}

// Stop abandons any open session without publishing a transcript.
func (s *STT) Stop(ctx context.Context) error {
	return s.StopWithHooks(ctx, service.Hooks{OnStop: func(_ context.Context) error {
		s.mu.Lock()
		session := s.session
		s.session = nil
		s.mu.Unlock()
		if session != nil {
			if err := session.handle.Close(); err != nil {
				s.Log().Warn("session close failed", "err", err)
			}
		}
		return nil
	}})
}

func (s *STT) handleStart(ctx context.Context, evt bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.Log().Debug("transcription session already open, ignoring start")
		return
	}

	handle, err := s.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Language:   s.cfg.Language,
	})
	if err != nil {
		s.Log().Error("failed to open transcription stream", "err", err)
		s.Emit(events.VoiceError, events.ErrorPayload{
			Base:    events.NewBase(),
			Service: s.Name(),
			Message: "transcription stream failed: " + err.Error(),
		})
		return
	}

	session := &sttSession{handle: handle}
	if vl, ok := evt.Payload.(events.VoiceListening); ok {
		session.conversationID = vl.ConversationID
	}
	s.session = session

	session.pumpWG.Add(2)
	go s.pumpPartials(session)
	go s.pumpFinals(session)
	s.Log().Info("transcription session opened", "language", s.cfg.Language)
}

func (s *STT) handleAudio(_ context.Context, evt bus.Event) {
	chunk, ok := evt.Payload.(events.AudioChunk)
	if !ok {
		return
	}
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.handle.SendAudio(chunk.Data); err != nil {
		s.Log().Warn("audio delivery failed", "err", err)
	}
}

// handleStopRequest closes the provider session, waits the flush interval
// for trailing finals, and publishes the authoritative stopped event with
// the joined transcript. The wait happens off the dispatch goroutine so it
// never delays subsequent capture starts.
func (s *STT) handleStopRequest(_ context.Context, _ bus.Event) {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session == nil {
		s.Log().Debug("stop requested with no open session")
		return
	}

	go func() {
		if err := session.handle.Close(); err != nil {
			s.Log().Warn("session close failed", "err", err)
		}

		drained := make(chan struct{})
		go func() {
			session.pumpWG.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(flushInterval):
			s.Log().Warn("flush interval elapsed before transcript channels drained")
		}

		transcript := session.transcript()
		s.Emit(events.VoiceListeningStopped, events.VoiceListening{
			Base:       events.NewTurnBase(session.conversationID),
			Source:     "stt",
			Transcript: transcript,
		})
		s.Log().Info("transcription session closed", "transcript_len", len(transcript))
	}()
}

func (s *STT) pumpPartials(session *sttSession) {
	defer session.pumpWG.Done()
	for t := range session.handle.Partials() {
		s.Emit(events.TranscriptionInterim, events.TranscriptionSegment{
			Base:       events.NewTurnBase(session.conversationID),
			Text:       t.Text,
			IsFinal:    false,
			Confidence: t.Confidence,
		})
	}
}

func (s *STT) pumpFinals(session *sttSession) {
	defer session.pumpWG.Done()
	for t := range session.handle.Finals() {
		session.appendFinal(t.Text)
		s.Emit(events.TranscriptionFinal, events.TranscriptionSegment{
			Base:       events.NewTurnBase(session.conversationID),
			Text:       t.Text,
			IsFinal:    true,
			Confidence: t.Confidence,
		})
	}
}
