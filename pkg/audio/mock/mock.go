// Package mock provides an in-memory audio.Input for tests.
package mock

import (
	"context"
	"sync"

	"github.com/cantina-works/cantinaos/pkg/audio"
)

// Input is a scriptable audio.Input. Tests call Feed to deliver frames as
// if they arrived from the device callback thread.
type Input struct {
	mu      sync.Mutex
	onFrame func(audio.Frame)
	started bool
	closed  bool
}

var _ audio.Input = (*Input)(nil)

// Start records the callback and marks the capture open.
func (i *Input) Start(_ context.Context, _ audio.CaptureConfig, onFrame func(audio.Frame)) (audio.Capture, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onFrame = onFrame
	i.started = true
	i.closed = false
	return &capture{input: i}, nil
}

// Feed delivers a frame through the registered callback, simulating the
// backend's realtime thread. Frames fed after Close are discarded.
func (i *Input) Feed(frame audio.Frame) {
	i.mu.Lock()
	cb := i.onFrame
	closed := i.closed
	i.mu.Unlock()
	if cb != nil && !closed {
		cb(frame)
	}
}

// Started reports whether Start has been called.
func (i *Input) Started() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.started
}

// Closed reports whether the capture has been closed.
func (i *Input) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

type capture struct {
	input *Input
}

func (c *capture) Close() error {
	c.input.mu.Lock()
	defer c.input.mu.Unlock()
	c.input.closed = true
	c.input.onFrame = nil
	return nil
}
