// Package player defines the audio playback contract used by the music
// controller. A Backend probes track metadata and opens playback handles;
// a Player controls one in-flight track.
//
// The controller enforces the single-player invariant itself; backends
// only need to honour Stop and volume changes on individual handles.
package player

import (
	"context"
	"time"
)

// TrackInfo is the metadata a backend reports for an audio file.
type TrackInfo struct {
	// Duration is the track length. Zero when the backend cannot
	// determine it.
	Duration time.Duration
}

// Player controls one playing track. All methods must be safe for
// concurrent use.
type Player interface {
	// SetVolume adjusts playback gain to level in [0.0, 1.0]. Takes
	// effect on a best-effort basis within the backend's buffer latency.
	SetVolume(level float64) error

	// Pause suspends playback, keeping the handle and its position.
	// Pausing an already paused track is a no-op.
	Pause() error

	// Resume continues playback after Pause. Resuming a playing track is
	// a no-op.
	Resume() error

	// Position reports the current playback position.
	Position() time.Duration

	// Done returns a channel closed when the track finishes naturally.
	// It is not closed on Stop.
	Done() <-chan struct{}

	// Stop halts playback and releases the handle. Calling Stop more
	// than once is safe and returns nil. Stop does not close Done.
	Stop() error
}

// Backend is the abstraction over the playback engine.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Probe reads metadata for the audio file at path without playing it.
	Probe(ctx context.Context, path string) (TrackInfo, error)

	// Play starts playback of the file at path at the given volume in
	// [0.0, 1.0] and returns a handle controlling it. Returns an error if
	// the file cannot be opened or decoded.
	Play(ctx context.Context, path string, volume float64) (Player, error)
}
