// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled Segment streams into the speech
// synthesis service and to inspect the text it requested.
//
// Example:
//
//	p := &mock.Provider{Segments: []tts.Segment{{Audio: pcm, Amplitude: 0.4}}}
//	ch, _ := p.Synthesize(ctx, "hello there", voice)
package mock

import (
	"context"
	"sync"

	"github.com/cantina-works/cantinaos/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the voice profile passed to Synthesize.
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
// Zero values cause methods to return empty results and nil errors.
type Provider struct {
	mu sync.Mutex

	// Segments is the sequence emitted on the channel returned by
	// Synthesize. All segments are sent before the channel is closed.
	Segments []tts.Segment

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize
	// instead of starting a channel.
	SynthesizeErr error

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns a channel emitting Segments.
// If SynthesizeErr is set, it returns nil, SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan tts.Segment, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	segments := make([]tts.Segment, len(p.Segments))
	copy(segments, p.Segments)
	p.mu.Unlock()

	ch := make(chan tts.Segment, len(segments))
	go func() {
		defer close(ch)
		for _, s := range segments {
			select {
			case <-ctx.Done():
				return
			case ch <- s:
			}
		}
	}()
	return ch, nil
}

// ListVoices returns Voices, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, p.ListVoicesErr
}

// SynthesizeCallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
