// Package ratelimit implements per-key token-bucket rate limiting for the
// API boundary. Each key refills continuously at its own configured rate.
package ratelimit

import (
	"sync"
	"time"
)

// bucket is the token state for one key. Tokens refill lazily on access,
// proportionally to the time since the last request.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter is an in-memory token-bucket rate limiter keyed by API key id.
// The per-key limit is supplied on each call, so different keys can carry
// different rates from their stored configuration.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
}

// New creates a Limiter. A key with limit n may make n requests per window,
// refilled continuously rather than in discrete windows. A background
// sweeper drops buckets idle for more than two windows.
func New(window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
	}
	go l.sweep()
	return l
}

// Allow consumes one token for the key and reports whether the request is
// within the limit.
func (l *Limiter) Allow(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(limit) - 1, lastSeen: now}
		return true
	}

	refill := now.Sub(b.lastSeen).Seconds() * float64(limit) / l.window.Seconds()
	b.tokens += refill
	if b.tokens > float64(limit) {
		b.tokens = float64(limit)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-2 * l.window)
		l.mu.Lock()
		for key, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}
