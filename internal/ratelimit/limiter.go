// Package ratelimit throttles abuse-prone endpoints with token buckets keyed
// by client address.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Decision is the outcome of taking one token from a bucket.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter takes a token from the bucket identified by key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config sizes a token bucket: Burst tokens at most, refilled at PerMinute.
type Config struct {
	PerMinute int
	Burst     int
}

// maxPerMinute is one token per millisecond, the resolution RedisLimiter
// keeps bucket state at.
const maxPerMinute = int(time.Minute / time.Millisecond)

func (c Config) normalized() Config {
	if c.PerMinute <= 0 {
		c.PerMinute = 60
	}
	if c.PerMinute > maxPerMinute {
		c.PerMinute = maxPerMinute
	}
	if c.Burst <= 0 {
		c.Burst = c.PerMinute
	}
	return c
}

// refillInterval is the time needed to earn one token.
func (c Config) refillInterval() time.Duration {
	return time.Minute / time.Duration(c.PerMinute)
}

// Middleware rejects requests with 429 once the bucket for scope and the
// client address is empty. Limiter errors let the request through.
func Middleware(limiter Limiter, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "rl:" + scope + ":" + clientIP(r)
			decision, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				secs := int(math.Ceil(decision.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error_code":"RATE_LIMITED","message":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
