// Package lights defines the contract for the LED eye peripheral. The
// serial-attached hardware driver is excluded; services depend only on this
// interface.
package lights

import "context"

// State is one requested eye rendering.
type State struct {
	// Pattern names the animation ("idle", "listening", "speaking", or a
	// command-supplied pattern).
	Pattern string

	// Color is a named or hex color.
	Color string

	// Intensity is the brightness in [0, 1].
	Intensity float64
}

// Controller drives the eye lights. Implementations must tolerate rapid
// Apply calls; the amplitude stream updates intensity many times per second.
type Controller interface {
	// Apply renders the given state, replacing the previous one.
	Apply(ctx context.Context, s State) error

	// Close releases the device. Safe to call more than once.
	Close() error
}
