// This file implements per-identity rate limiting. The middleware is backend
// agnostic: MemoryLimiter keeps token buckets in process (x/time/rate), and
// RedisLimiter (ratelimit_redis.go) shares fixed windows across replicas.
//
// Replays detected by IdempotencyValidator are never limited. A backend error
// lets the request through and is logged.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// KeyFunc maps a request to a rate-limit identity.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated requests by user and the rest by client IP.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := CurrentUserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay that must not consume quota.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// RateLimit enforces l per key. Rejections get 429 with Retry-After.
func RateLimit(l Limiter, keyFn KeyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		ok, err := l.Allow(c.Request.Context(), keyFn(c))
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable; allowing request")
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", "1")
			abortJSON(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter holds one token bucket per key. Idle buckets are evicted
// during lookups once every sweepEvery calls. Safe for concurrent use.
type MemoryLimiter struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  uint64
}

const sweepEvery = 5000

// NewMemoryLimiter returns a limiter refilling rps tokens per second up to
// burst (coerced to at least 1).
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &MemoryLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      10 * time.Minute,
		visitors: make(map[string]*visitor),
	}
}

// Allow implements Limiter. It never fails.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return m.bucket(key).Allow(), nil
}

// bucket returns the limiter for key. The sweep runs before the lookup so a
// stale entry for key itself can be evicted and recreated full.
func (m *MemoryLimiter) bucket(key string) *rate.Limiter {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups++
	if m.lookups >= sweepEvery {
		for k, v := range m.visitors {
			if now.Sub(v.lastSeen) >= m.ttl {
				delete(m.visitors, k)
			}
		}
		m.lookups = 0
	}

	if v, ok := m.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(m.rps, m.burst)
	m.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// size reports the number of tracked keys.
func (m *MemoryLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visitors)
}
