// Package mock provides test doubles for the player package interfaces.
//
// Use Backend to feed controlled track durations into the music controller
// and to inspect which files it played. Use Player to observe volume
// changes and to finish tracks on demand via FinishTrack.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/cantina-works/cantinaos/pkg/player"
)

// PlayCall records a single invocation of Backend.Play.
type PlayCall struct {
	// Path is the file path passed to Play.
	Path string
	// Volume is the initial volume passed to Play.
	Volume float64
}

// Backend is a mock implementation of player.Backend.
type Backend struct {
	mu sync.Mutex

	// Info is returned by Probe for every path.
	Info player.TrackInfo

	// ProbeErr, if non-nil, is returned by every Probe call.
	ProbeErr error

	// PlayErr, if non-nil, is returned by every Play call.
	PlayErr error

	// PlayCalls records every invocation of Play in order.
	PlayCalls []PlayCall

	// Players holds the handles returned by Play, in order.
	Players []*Player
}

// Probe returns Info, ProbeErr.
func (b *Backend) Probe(_ context.Context, _ string) (player.TrackInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Info, b.ProbeErr
}

// Play records the call and returns a fresh Player handle.
func (b *Backend) Play(_ context.Context, path string, volume float64) (player.Player, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PlayCalls = append(b.PlayCalls, PlayCall{Path: path, Volume: volume})
	if b.PlayErr != nil {
		return nil, b.PlayErr
	}
	p := &Player{volume: volume, done: make(chan struct{})}
	b.Players = append(b.Players, p)
	return p, nil
}

// LastPlayer returns the most recently opened handle, or nil.
func (b *Backend) LastPlayer() *Player {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Players) == 0 {
		return nil
	}
	return b.Players[len(b.Players)-1]
}

// PlayCallCount returns the number of Play calls. Thread-safe.
func (b *Backend) PlayCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.PlayCalls)
}

// Ensure Backend implements player.Backend at compile time.
var _ player.Backend = (*Backend)(nil)

// Player is a mock implementation of player.Player.
type Player struct {
	mu       sync.Mutex
	volume   float64
	position time.Duration
	paused   bool
	stopped  bool
	finished bool
	done     chan struct{}

	// VolumeCalls records every level passed to SetVolume in order.
	VolumeCalls []float64

	// StopCallCount is the number of times Stop was called.
	StopCallCount int

	// PauseCallCount and ResumeCallCount track the pause lifecycle.
	PauseCallCount  int
	ResumeCallCount int
}

// SetVolume records the level.
func (p *Player) SetVolume(level float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = level
	p.VolumeCalls = append(p.VolumeCalls, level)
	return nil
}

// Pause records the call and marks the player paused.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.PauseCallCount++
	return nil
}

// Resume records the call and clears the paused flag.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.ResumeCallCount++
	return nil
}

// Paused reports whether the player is currently paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Position returns the value set by SetPosition, defaulting to zero.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Done returns the completion channel; close it with FinishTrack.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// Stop records the call.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.StopCallCount++
	return nil
}

// SetPosition sets the value returned by Position, for progress tests.
func (p *Player) SetPosition(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = d
}

// FinishTrack simulates natural end of playback by closing Done.
// Safe to call once.
func (p *Player) FinishTrack() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finished {
		p.finished = true
		close(p.done)
	}
}

// Stopped reports whether Stop has been called.
func (p *Player) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Volume returns the current volume level.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Ensure Player implements player.Player at compile time.
var _ player.Player = (*Player)(nil)
