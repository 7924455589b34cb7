package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a process-local domain.RateLimiter built on token buckets.
// A bucket holds limit tokens and refills at limit per window. It is used
// when no Redis instance is configured.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter

	// budget used by Wait for keys that were never seen by Allow.
	waitLimit  int
	waitWindow time.Duration
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets:    make(map[string]*rate.Limiter),
		waitLimit:  10,
		waitWindow: time.Second,
	}
}

func (rl *RateLimiter) bucket(key string, limit int, window time.Duration) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		rl.buckets[key] = b
	}
	return b
}

// Allow reports whether one more request for key fits in the budget.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	return rl.bucket(key, limit, window).Allow(), nil
}

// Wait blocks until key has a free token or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.bucket(key, rl.waitLimit, rl.waitWindow).Wait(ctx)
}
