package voice

import (
	"sync"
	"time"
)

// rateWindow is the sliding interval over which LLM requests are counted.
const rateWindow = time.Minute

// rateLimiter tracks request timestamps in a sliding window. Allow reports
// whether another request fits under the cap and records it when it does,
// so a denied turn leaves no trace in the window.
type rateLimiter struct {
	mu    sync.Mutex
	cap   int
	now   func() time.Time
	times []time.Time
}

func newRateLimiter(capacity int) *rateLimiter {
	return &rateLimiter{cap: capacity, now: time.Now}
}

// Allow prunes expired timestamps and admits the request if the window has
// room. A capacity of zero or less disables limiting.
func (r *rateLimiter) Allow() bool {
	if r.cap <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-rateWindow)
	kept := r.times[:0]
	for _, t := range r.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.times = kept

	if len(r.times) >= r.cap {
		return false
	}
	r.times = append(r.times, now)
	return true
}
