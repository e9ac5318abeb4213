package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter manages token buckets keyed by an arbitrary string
// (a tab for analytics events, a client address for the HTTP API)
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a limiter allowing r events per second with the given burst
func NewLimiter(r rate.Limit, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// PerMinute creates a limiter allowing n events per minute per key, bursting up to n
func PerMinute(n int) *Limiter {
	if n <= 0 {
		return NewLimiter(rate.Inf, 0)
	}
	return NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

// GetLimiter returns the rate limiter for a specific key
func (l *Limiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}

	return limiter
}

// Allow checks if an event is allowed for the given key
func (l *Limiter) Allow(key string) bool {
	return l.GetLimiter(key).Allow()
}

// Tokens returns the current number of available tokens for a key
func (l *Limiter) Tokens(key string) float64 {
	return l.GetLimiter(key).Tokens()
}

// Forget drops the bucket for a key, e.g. when its tab closes
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
}

// Burst returns the configured burst size
func (l *Limiter) Burst() int {
	return l.burst
}
