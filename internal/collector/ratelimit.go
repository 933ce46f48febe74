package collector

import (
	"sync"
	"time"
)

// RateLimiter is a rolling-window call counter. Calls beyond the cap are
// rejected immediately; nothing is queued.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	calls   []time.Time
	skipped int64
}

// NewRateLimiter creates a limiter allowing limit calls per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		calls:  make([]time.Time, 0, limit),
	}
}

// Allow records a call at now and reports whether it fits in the window.
// A rejected call is counted as skipped.
func (rl *RateLimiter) Allow(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.evict(now)
	if len(rl.calls) >= rl.limit {
		rl.skipped++
		return false
	}
	rl.calls = append(rl.calls, now)
	return true
}

// Usage returns calls made in the window ending at now and the remaining budget
func (rl *RateLimiter) Usage(now time.Time) (used, remaining int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.evict(now)
	used = len(rl.calls)
	return used, rl.limit - used
}

// Skipped returns the total number of rejected calls
func (rl *RateLimiter) Skipped() int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.skipped
}

func (rl *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(rl.calls) && !rl.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		rl.calls = append(rl.calls[:0], rl.calls[i:]...)
	}
}
