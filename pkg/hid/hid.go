// Package hid defines the contract for physical input peripherals: the
// arcade button and the dedicated USB mouse used as push-to-talk triggers.
//
// Listeners deliver events from their own device-reading goroutine or OS
// callback thread. The callback must not block; the consuming service owns
// the hand-off into the event loop.
package hid

import "context"

// ButtonEvent is one press or release of a push-to-talk trigger.
type ButtonEvent struct {
	// Pressed is true on press, false on release.
	Pressed bool

	// Device names the source peripheral ("arcade_button", "mouse").
	Device string
}

// Listener watches a physical input device and invokes onEvent for every
// press and release until Close is called or ctx is cancelled.
type Listener interface {
	// Listen opens the device and begins delivering events. It returns
	// once the device is open; events arrive asynchronously on the
	// listener's own goroutine.
	Listen(ctx context.Context, onEvent func(ButtonEvent)) error

	// Close stops delivery and releases the device. After Close returns
	// the callback is never invoked again. Calling Close more than once
	// is safe and returns nil.
	Close() error
}
