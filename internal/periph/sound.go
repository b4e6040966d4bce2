package periph

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/player"
)

// SoundConfig holds the effect clip directory and playback volume.
type SoundConfig struct {
	Dir    string
	Volume float64
}

// DefaultSoundConfig returns the stock effect settings.
func DefaultSoundConfig() SoundConfig {
	return SoundConfig{Dir: "assets/sfx", Volume: 0.9}
}

// Sound plays a short effect clip on every mode change. A missing clip file
// is not an error; the transition simply stays silent.
type Sound struct {
	*service.Base

	cfg     SoundConfig
	backend player.Backend

	mu      sync.Mutex
	current player.Player
}

// NewSound creates the sound effect service around a playback backend.
func NewSound(b *bus.Bus, log *slog.Logger, backend player.Backend, cfg SoundConfig) *Sound {
	return &Sound{
		Base:    service.NewBase("sound_effects", b, log),
		cfg:     cfg,
		backend: backend,
	}
}

// Start subscribes to mode changes.
func (s *Sound) Start(ctx context.Context) error {
	return s.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		s.Subscribe(events.SystemModeChange, s.handleModeChange)
		return nil
	}})
}

// Stop halts any playing clip.
func (s *Sound) Stop(ctx context.Context) error {
	return s.StopWithHooks(ctx, service.Hooks{OnStop: func(_ context.Context) error {
		s.stopCurrent()
		return nil
	}})
}

func (s *Sound) handleModeChange(ctx context.Context, evt bus.Event) {
	ch, ok := evt.Payload.(events.ModeChange)
	if !ok {
		return
	}
	clip := filepath.Join(s.cfg.Dir, strings.ToLower(ch.NewMode)+".mp3")
	if _, err := os.Stat(clip); err != nil {
		return
	}

	s.stopCurrent()
	p, err := s.backend.Play(ctx, clip, s.cfg.Volume)
	if err != nil {
		s.Log().Warn("effect clip playback failed", "clip", clip, "err", err)
		return
	}
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	s.Log().Debug("transition effect playing", "clip", clip)
}

func (s *Sound) stopCurrent() {
	s.mu.Lock()
	p := s.current
	s.current = nil
	s.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}
