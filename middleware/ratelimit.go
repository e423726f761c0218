package middleware

import (
	"math"
	"sync"
	"time"
)

// RateLimiter bounds per-device request volume inside one process.
type RateLimiter interface {
	// Allow reports whether a request from deviceID may proceed. When it
	// is denied, retryAfter is the number of seconds until the device's
	// window resets.
	Allow(deviceID string) (allowed bool, retryAfter int)
}

type deviceWindow struct {
	count   int
	resetAt time.Time
}

// FixedWindowLimiter implements RateLimiter with a fixed per-device window
// held in process memory. State is not persisted and resets on restart;
// multi-instance deployments each count independently, so this protects
// against runaway device loops rather than enforcing a global quota.
type FixedWindowLimiter struct {
	windows map[string]*deviceWindow
	mutex   sync.Mutex
	limit   int
	window  time.Duration
}

// NewFixedWindowLimiter creates a limiter allowing limit requests per
// device per window. A limit of 0 or less disables limiting entirely.
func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		windows: make(map[string]*deviceWindow),
		limit:   limit,
		window:  window,
	}
}

func (rl *FixedWindowLimiter) Allow(deviceID string) (bool, int) {
	if rl.limit <= 0 {
		return true, 0
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()

	w, exists := rl.windows[deviceID]
	if !exists || now.After(w.resetAt) {
		rl.windows[deviceID] = &deviceWindow{count: 1, resetAt: now.Add(rl.window)}
		return true, 0
	}

	if w.count < rl.limit {
		w.count++
		return true, 0
	}

	retryAfter := int(math.Ceil(w.resetAt.Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
