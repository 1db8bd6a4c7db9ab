package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// DefaultRateLimitConfig returns limits sized for a scraping backend: each
// allowed request can tie up a browser tab for tens of seconds.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterTable tracks per-IP limiters. Stale entries are swept opportunistically
// on lookup rather than by a background goroutine, so middleware instances
// never leak goroutines.
type limiterTable struct {
	cfg        RateLimitConfig
	sweepEvery time.Duration
	staleAfter time.Duration

	mu        sync.Mutex
	clients   map[string]*rateClient
	lastSweep time.Time
}

func newLimiterTable(cfg RateLimitConfig) *limiterTable {
	return &limiterTable{
		cfg:        cfg,
		sweepEvery: 5 * time.Minute,
		staleAfter: 10 * time.Minute,
		clients:    make(map[string]*rateClient),
		lastSweep:  time.Now(),
	}
}

func (t *limiterTable) allow(ip string) bool {
	now := time.Now()

	t.mu.Lock()
	if now.Sub(t.lastSweep) >= t.sweepEvery {
		t.sweepLocked(now)
	}
	cl, exists := t.clients[ip]
	if !exists {
		cl = &rateClient{
			limiter: rate.NewLimiter(rate.Limit(t.cfg.RequestsPerSecond), t.cfg.Burst),
		}
		t.clients[ip] = cl
	}
	cl.lastSeen = now
	limiter := cl.limiter
	t.mu.Unlock()

	return limiter.Allow()
}

// sweepLocked drops clients idle past staleAfter. Callers hold t.mu.
func (t *limiterTable) sweepLocked(now time.Time) {
	for ip, cl := range t.clients {
		if now.Sub(cl.lastSeen) > t.staleAfter {
			delete(t.clients, ip)
		}
	}
	t.lastSweep = now
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	table := newLimiterTable(cfg)

	return func(c *gin.Context) {
		if !table.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
