// Package voice implements the capture-to-speech pipeline: microphone
// capture, streaming transcription, the LLM turn with tool-call parsing,
// and speech synthesis. Each stage is a lifecycle-managed service wired
// together exclusively through bus topics.
package voice

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/audio"
	"github.com/cantina-works/cantinaos/pkg/events"
)

// frameQueueSize bounds the hand-off channel between the audio backend's
// realtime thread and the pump goroutine. At 16 kHz mono with 1024-sample
// blocks this is several seconds of headroom.
const frameQueueSize = 64

// MicConfig describes the capture format the microphone service requests
// from the audio backend.
type MicConfig struct {
	DeviceIndex int
	SampleRate  int
	Channels    int
	BlockSize   int
}

// DefaultMicConfig returns the pipeline's required capture format.
func DefaultMicConfig() MicConfig {
	return MicConfig{DeviceIndex: -1, SampleRate: 16000, Channels: 1, BlockSize: 1024}
}

// Mic bridges the audio backend into the bus. Capture opens on
// voice.listening.started and closes on voice.listening.stop_requested;
// frames cross from the backend's realtime thread through a bounded channel
// so a stalled consumer drops frames instead of blocking the device.
type Mic struct {
	*service.Base

	input audio.Input
	cfg   MicConfig

	mu      sync.Mutex
	capture audio.Capture
	frames  chan audio.Frame
	pumpWG  sync.WaitGroup
	dropped atomic.Uint64
}

// NewMic creates the microphone service on top of the given capture backend.
func NewMic(b *bus.Bus, log *slog.Logger, input audio.Input, cfg MicConfig) *Mic {
	if cfg.SampleRate == 0 {
		cfg = DefaultMicConfig()
	}
	return &Mic{
		Base:  service.NewBase("mic", b, log),
		input: input,
		cfg:   cfg,
	}
}

// Start subscribes to the capture control topics.
func (m *Mic) Start(ctx context.Context) error {
	return m.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		m.Subscribe(events.VoiceListeningStarted, m.handleStart)
		m.Subscribe(events.VoiceListeningStopRequested, m.handleStopRequest)
		return nil
	}})
}

// Stop closes any open capture before the base teardown.
func (m *Mic) Stop(ctx context.Context) error {
	return m.StopWithHooks(ctx, service.Hooks{OnStop: func(_ context.Context) error {
		m.closeCapture()
		return nil
	}})
}

// Dropped reports how many frames were discarded because the hand-off
// channel was full.
func (m *Mic) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Mic) handleStart(ctx context.Context, _ bus.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capture != nil {
		m.Log().Debug("capture already open, ignoring start")
		return
	}

	frames := make(chan audio.Frame, frameQueueSize)
	capture, err := m.input.Start(ctx, audio.CaptureConfig{
		DeviceIndex: m.cfg.DeviceIndex,
		SampleRate:  m.cfg.SampleRate,
		Channels:    m.cfg.Channels,
		BlockSize:   m.cfg.BlockSize,
	}, func(f audio.Frame) {
		// Realtime thread: never block.
		select {
		case frames <- f:
		default:
			m.dropped.Add(1)
		}
	})
	if err != nil {
		m.Log().Error("failed to open audio capture", "err", err)
		m.Emit(events.VoiceError, events.ErrorPayload{
			Base:    events.NewBase(),
			Service: m.Name(),
			Message: "audio capture failed: " + err.Error(),
		})
		return
	}

	m.capture = capture
	m.frames = frames
	m.pumpWG.Add(1)
	go m.pump(frames)
	m.Log().Info("audio capture opened", "sample_rate", m.cfg.SampleRate, "channels", m.cfg.Channels)
}

func (m *Mic) handleStopRequest(_ context.Context, _ bus.Event) {
	m.closeCapture()
}

// pump forwards frames from the hand-off channel onto the bus until the
// channel is closed by closeCapture.
func (m *Mic) pump(frames <-chan audio.Frame) {
	defer m.pumpWG.Done()
	for f := range frames {
		m.Emit(events.VoiceAudioChunk, events.AudioChunk{
			Base:       events.NewBase(),
			Data:       f.Data,
			SampleRate: f.SampleRate,
			Channels:   f.Channels,
		})
	}
}

func (m *Mic) closeCapture() {
	m.mu.Lock()
	capture := m.capture
	frames := m.frames
	m.capture = nil
	m.frames = nil
	m.mu.Unlock()

	if capture == nil {
		return
	}
	if err := capture.Close(); err != nil {
		m.Log().Warn("audio capture close failed", "err", err)
	}
	// The callback is silent after Close, so the pump drains and exits.
	close(frames)
	m.pumpWG.Wait()
	if n := m.dropped.Load(); n > 0 {
		m.Log().Warn("capture session dropped frames", "dropped", n)
	}
	m.Log().Info("audio capture closed")
}
