// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and presents a uniform
// streaming interface. Synthesize returns a channel of Segment values
// carrying both raw PCM audio and an envelope amplitude, so callers can
// drive playback and mouth animation from the same stream.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice identifies a voice profile on the provider.
type Voice struct {
	// ID is the provider-assigned voice identifier.
	ID string

	// Name is a human-readable label for logs and configuration.
	Name string
}

// Segment is one synthesised block of speech audio.
type Segment struct {
	// Audio is raw PCM bytes for this block.
	Audio []byte

	// Amplitude is the normalised envelope level of this block in
	// [0.0, 1.0], sampled at roughly 50ms granularity. Drives mouth
	// servo animation.
	Amplitude float64
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel.
type Provider interface {
	// Synthesize converts text to speech and returns a read-only channel
	// emitting Segment values as audio becomes available. The channel is
	// closed by the implementation when synthesis finishes or when ctx is
	// cancelled. The caller must drain the channel to avoid blocking the
	// provider's internal goroutines.
	//
	// Returns a non-nil error only if synthesis cannot be started.
	// Errors during synthesis are signalled by closing the channel early;
	// callers should check ctx.Err() to distinguish cancellation from
	// provider failure.
	Synthesize(ctx context.Context, text string, voice Voice) (<-chan Segment, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]Voice, error)
}
