// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is SessionHandle:
// once opened, a session accepts raw PCM audio frames and emits two streams
// of Transcript values — low-latency partials for feedback on surfaces and
// authoritative finals for the conversation turn.
//
// Implementations must be safe for concurrent use. Audio input and
// transcript output channels are goroutine-safe by construction.
package stt

import "context"

// Transcript is one recognition result from the provider.
type Transcript struct {
	// Text is the recognised text for this result.
	Text string

	// Confidence is the provider's confidence in [0.0, 1.0]. Providers
	// without a confidence signal report 0.
	Confidence float64
}

// StreamConfig describes the audio format and recognition hints for a new
// STT session. All fields must be compatible with what the underlying
// provider supports.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The voice pipeline
	// captures at 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by
	// most STT providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string
}

// SessionHandle represents an open STT streaming session. It is an
// interface so that test code can provide mock implementations without a
// live provider connection.
//
// Callers must call Close when the session is no longer needed; failing to
// do so may leak goroutines and network connections inside the provider.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider
	// for transcription. The chunk must match the SampleRate, Channels,
	// and bit-depth agreed in StreamConfig. Calling SendAudio after Close
	// returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel that emits low-latency interim
	// Transcript values as the provider makes preliminary guesses. These
	// drive live captions but must not be treated as the turn transcript.
	// The channel is closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel that emits authoritative
	// Transcript values once the provider has committed to a result.
	// These are accumulated into the turn transcript handed to the LLM.
	// The channel is closed when the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes any pending audio, and
	// releases all associated resources. After Close returns, the
	// Partials and Finals channels will be closed. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session with the
	// given audio format. The returned SessionHandle is ready to accept
	// audio immediately.
	//
	// Returns an error if the provider cannot establish the session
	// (authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the SessionHandle and must call Close
	// when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
