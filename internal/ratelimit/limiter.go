// Package ratelimit provides a token-bucket limiter used to throttle
// outbound LLM calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements a token-bucket rate limiter. Safe for concurrent
// use.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// NewLimiter creates a limiter with the given burst capacity and
// steady-state refill rate (tokens/second). A zero refillRate disables
// limiting: Wait always succeeds immediately.
func NewLimiter(maxTokens, refillRate float64) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.refillRate <= 0 {
		return nil
	}
	for {
		l.mu.Lock()
		l.refillLocked()

		if l.tokens >= 1.0 {
			l.tokens -= 1.0
			l.mu.Unlock()
			return nil
		}

		tokensNeeded := 1.0 - l.tokens
		waitDuration := time.Duration(tokensNeeded / l.refillRate * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitDuration):
		}
	}
}

func (l *Limiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill)
	l.tokens += elapsed.Seconds() * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now
}
