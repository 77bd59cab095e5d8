// Package ratelimit paces scheduler dispatch per task key with a token bucket.
// Each key (a handler category such as "changed") gets its own bucket, so a
// burst of one kind of event never starves the others.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter manages per-key rate limiting.
// A limiter created with a non-positive rate is disabled and never blocks.
type KeyedRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a keyed limiter allowing rps tasks per second per key with the
// given burst. A burst below one is raised to one.
func New(rps float64, burst int) *KeyedRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Enabled reports whether the limiter paces anything at all.
func (krl *KeyedRateLimiter) Enabled() bool {
	return krl != nil && krl.limit > 0
}

// Wait blocks until a task for key may start or ctx is done.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	if !krl.Enabled() {
		return ctx.Err()
	}
	return krl.getLimiter(key).Wait(ctx)
}

func (krl *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	krl.mu.RLock()
	limiter, exists := krl.limiters[key]
	krl.mu.RUnlock()

	if exists {
		return limiter
	}

	krl.mu.Lock()
	defer krl.mu.Unlock()

	// Another goroutine may have created it between the two locks.
	if limiter, exists = krl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(krl.limit, krl.burst)
	krl.limiters[key] = limiter
	return limiter
}
