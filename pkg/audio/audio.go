// Package audio defines the capture contract between the microphone service
// and the audio backend.
//
// The backend delivers frames from its own realtime thread; CantinaOS never
// runs pipeline code on that thread. Implementations invoke the frame
// callback and nothing else — the microphone service owns the bounded
// hand-off into the event loop.
package audio

import "context"

// Frame is one captured block of PCM audio.
type Frame struct {
	// Data is raw PCM matching the CaptureConfig format.
	Data []byte

	// SampleRate in Hz (16000 for the STT pipeline).
	SampleRate int

	// Channels: 1 for mono capture.
	Channels int
}

// CaptureConfig describes the requested capture format.
type CaptureConfig struct {
	// DeviceIndex selects the input device. Negative means the system
	// default.
	DeviceIndex int

	// SampleRate in Hz. The voice pipeline requires 16000.
	SampleRate int

	// Channels must be 1 for the STT pipeline.
	Channels int

	// BlockSize is the frame length in samples.
	BlockSize int
}

// Capture is an open capture session. Close stops the device callback;
// after Close returns the frame callback is never invoked again.
type Capture interface {
	Close() error
}

// Input is the abstraction over the audio capture backend.
//
// Start opens the device and begins invoking onFrame from the backend's
// realtime thread for every captured block. onFrame must not block; the
// caller is responsible for thread-safe hand-off.
type Input interface {
	Start(ctx context.Context, cfg CaptureConfig, onFrame func(Frame)) (Capture, error)
}
