package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/P2PCall/internal/metrics"
	"github.com/gin-gonic/gin"
)

// ClientRateLimiter is a sliding window limiter keyed by client token.
// Keys without attempts inside the window are swept at most once per interval.
type ClientRateLimiter struct {
	mu        sync.Mutex
	history   map[string][]time.Time
	limit     int
	interval  time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewClientRateLimiter(limit int, interval time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *ClientRateLimiter) Allow(token string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	if now.Sub(rl.lastSweep) >= rl.interval {
		rl.sweep(windowStart)
		rl.lastSweep = now
	}

	attempts := rl.history[token]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[token] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[token] = fresh

	return true
}

func (rl *ClientRateLimiter) sweep(windowStart time.Time) {
	for key, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, key)
		}
	}
}

// Len is the number of tracked keys.
func (rl *ClientRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}

// limitKey is the client token, or the client address when the token was
// minted by this very request and so proves nothing about the client.
func limitKey(c *gin.Context) string {
	if c.GetBool(clientTokenNewKey) {
		return "ip:" + c.ClientIP()
	}
	return "ct:" + c.GetString(clientTokenKey)
}

// Middleware rejects requests over the limit with 429. A non-positive limit disables it.
func (rl *ClientRateLimiter) Middleware(m *metrics.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 || rl.Allow(limitKey(c)) {
			c.Next()
			return
		}
		if m != nil {
			m.RateLimited.Inc()
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
	}
}
