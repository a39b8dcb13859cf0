package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps buckets in process memory. It serves a single
// instance; RedisLimiter shares buckets across instances.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewMemoryLimiter constructs an in-memory limiter. A nil now uses time.Now.
func NewMemoryLimiter(cfg Config, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{cfg: cfg.normalized(), now: now, buckets: make(map[string]*bucket)}
}

// Allow implements Limiter. It never fails.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	capacity := float64(l.cfg.Burst)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, last: now}
		l.buckets[key] = b
		l.sweep(now)
	}

	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens += elapsed.Minutes() * float64(l.cfg.PerMinute)
		if b.tokens > capacity {
			b.tokens = capacity
		}
		b.last = now
	}

	if b.tokens < 1 {
		missing := 1 - b.tokens
		retry := time.Duration(missing * float64(l.cfg.refillInterval()))
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}
	b.tokens--
	return Decision{Allowed: true, Remaining: int(b.tokens)}, nil
}

// sweep drops buckets that have been idle long enough to be full again.
func (l *MemoryLimiter) sweep(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	idle := time.Duration(l.cfg.Burst) * l.cfg.refillInterval()
	for key, b := range l.buckets {
		if now.Sub(b.last) > idle {
			delete(l.buckets, key)
		}
	}
}
