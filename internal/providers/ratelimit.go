package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket sized by requests per second.
// One limiter guards one provider; the pipeline waits on it before every
// adapter call so concurrent documents share the vendor budget.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerSecond float64
	burst             float64

	tokens     float64
	lastUpdate time.Time

	totalConsumed int64
	totalWaited   time.Duration
}

// NewRateLimiter creates a rate limiter for the given RPS.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1.0
	}
	burst := requestsPerSecond
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		tokens:            burst,
		lastUpdate:        time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.tokens >= 1.0 {
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		}

		tokensNeeded := 1.0 - r.tokens
		waitTime := time.Duration(tokensNeeded / r.requestsPerSecond * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			r.mu.Lock()
			r.totalWaited += waitTime
			r.mu.Unlock()
		}
	}
}

// refill adds tokens based on elapsed time. Caller holds the lock.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * r.requestsPerSecond
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
}

// Consumed returns the total number of tokens handed out.
func (r *RateLimiter) Consumed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalConsumed
}
