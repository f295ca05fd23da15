package timewarp

import (
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter, adapted from the reference actor
// runtime's message rate limiter and applied here to inbound events instead
// of inbound actor messages in general: a misbehaving or flooding sender
// should not be able to grow an actor's ordered buffer without bound.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// NewRateLimiter returns a limiter holding maxTokens, refilling at
// refillRate tokens per second.
func NewRateLimiter(maxTokens, refillRate float64) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// AllowOne reports whether a single token is available, consuming it if so.
func (rl *RateLimiter) AllowOne() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens = min(rl.tokens+elapsed*rl.refillRate, rl.maxTokens)
	rl.lastRefill = now
}
