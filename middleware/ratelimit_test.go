package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedWindowLimiter_UnderLimit(t *testing.T) {
	limiter := NewFixedWindowLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, retryAfter := limiter.Allow("pi-1")
		assert.True(t, allowed)
		assert.Equal(t, 0, retryAfter)
	}
}

func TestFixedWindowLimiter_OverLimit(t *testing.T) {
	limiter := NewFixedWindowLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.Allow("pi-1")
		assert.True(t, allowed)
	}

	allowed, retryAfter := limiter.Allow("pi-1")
	assert.False(t, allowed)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)
}

func TestFixedWindowLimiter_DevicesCountedIndependently(t *testing.T) {
	limiter := NewFixedWindowLimiter(1, time.Minute)

	allowed, _ := limiter.Allow("pi-1")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("pi-1")
	assert.False(t, allowed)

	allowed, _ = limiter.Allow("pi-2")
	assert.True(t, allowed)
}

func TestFixedWindowLimiter_WindowReset(t *testing.T) {
	limiter := NewFixedWindowLimiter(1, 50*time.Millisecond)

	allowed, _ := limiter.Allow("pi-1")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("pi-1")
	assert.False(t, allowed)

	time.Sleep(60 * time.Millisecond)

	allowed, _ = limiter.Allow("pi-1")
	assert.True(t, allowed)
}

func TestFixedWindowLimiter_ZeroLimitDisablesLimiting(t *testing.T) {
	limiter := NewFixedWindowLimiter(0, time.Minute)

	for i := 0; i < 1000; i++ {
		allowed, retryAfter := limiter.Allow("pi-1")
		assert.True(t, allowed)
		assert.Equal(t, 0, retryAfter)
	}
}

func TestFixedWindowLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewFixedWindowLimiter(100, time.Minute)

	done := make(chan int)
	for g := 0; g < 10; g++ {
		go func() {
			allowed := 0
			for i := 0; i < 20; i++ {
				if ok, _ := limiter.Allow("pi-1"); ok {
					allowed++
				}
			}
			done <- allowed
		}()
	}

	total := 0
	for g := 0; g < 10; g++ {
		total += <-done
	}
	assert.Equal(t, 100, total)
}
