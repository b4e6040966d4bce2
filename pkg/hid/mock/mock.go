// Package mock provides a scriptable hid.Listener for tests.
package mock

import (
	"context"
	"sync"

	"github.com/cantina-works/cantinaos/pkg/hid"
)

// Listener is a test double delivering scripted button events.
type Listener struct {
	// ListenErr, when set, is returned by Listen.
	ListenErr error

	mu        sync.Mutex
	onEvent   func(hid.ButtonEvent)
	listening bool
	closed    bool
}

var _ hid.Listener = (*Listener)(nil)

func (l *Listener) Listen(_ context.Context, onEvent func(hid.ButtonEvent)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ListenErr != nil {
		return l.ListenErr
	}
	l.onEvent = onEvent
	l.listening = true
	return nil
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEvent = nil
	l.closed = true
	return nil
}

// Press delivers a press event to the registered callback, as the device
// goroutine would.
func (l *Listener) Press(device string) {
	l.fire(hid.ButtonEvent{Pressed: true, Device: device})
}

// Release delivers a release event.
func (l *Listener) Release(device string) {
	l.fire(hid.ButtonEvent{Pressed: false, Device: device})
}

func (l *Listener) fire(e hid.ButtonEvent) {
	l.mu.Lock()
	onEvent := l.onEvent
	l.mu.Unlock()
	if onEvent != nil {
		onEvent(e)
	}
}

// Listening reports whether Listen has been called and the listener is open.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening && !l.closed
}

// Closed reports whether Close has been called.
func (l *Listener) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
