package papersources

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// minRateDivisor bounds how far Throttle can lower the rate: never below
// base/minRateDivisor requests per second.
const minRateDivisor = 8

// RateLimiter is a token bucket that slows down when a source answers 429
// and climbs back to its configured rate on success. It is safe for
// concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter

	mu   sync.Mutex
	base rate.Limit
	min  rate.Limit
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained requests
// with bursts of up to burst.
//
//   - Scopus: NewRateLimiter(5, 5)
//   - Google Scholar: NewRateLimiter(0.5, 1) to stay below scraping thresholds
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	base := rate.Limit(ratePerSecond)
	return &RateLimiter{
		limiter: rate.NewLimiter(base, burst),
		base:    base,
		min:     base / minRateDivisor,
	}
}

// Wait blocks until a request is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true if a request is allowed without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Throttle halves the current rate, down to the floor. Called on 429.
func (r *RateLimiter) Throttle() {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.limiter.Limit() / 2
	if next < r.min {
		next = r.min
	}
	r.limiter.SetLimit(next)
}

// Recover doubles the current rate, up to the configured rate. Called after
// a successful response.
func (r *RateLimiter) Recover() {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.limiter.Limit()
	if current >= r.base {
		return
	}
	next := current * 2
	if next > r.base {
		next = r.base
	}
	r.limiter.SetLimit(next)
}

// Rate returns the current sustained rate.
func (r *RateLimiter) Rate() float64 {
	return float64(r.limiter.Limit())
}
