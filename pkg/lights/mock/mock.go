// Package mock provides a call-recording lights.Controller for tests.
package mock

import (
	"context"
	"sync"

	"github.com/cantina-works/cantinaos/pkg/lights"
)

// Controller records every applied state.
type Controller struct {
	// ApplyErr, when set, is returned by every Apply call.
	ApplyErr error

	mu         sync.Mutex
	ApplyCalls []lights.State
	closed     bool
}

var _ lights.Controller = (*Controller)(nil)

func (c *Controller) Apply(_ context.Context, s lights.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ApplyErr != nil {
		return c.ApplyErr
	}
	c.ApplyCalls = append(c.ApplyCalls, s)
	return nil
}

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Last returns the most recently applied state.
func (c *Controller) Last() (lights.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ApplyCalls) == 0 {
		return lights.State{}, false
	}
	return c.ApplyCalls[len(c.ApplyCalls)-1], true
}

// CallCount returns the number of successful Apply calls.
func (c *Controller) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ApplyCalls)
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
