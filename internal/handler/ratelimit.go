package handler

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig tunes the per-IP request limiter. Zero fields fall back
// to the documented defaults, so callers only set what they configure.
type RateLimitConfig struct {
	// RPS is the steady-state requests per second per client IP.
	RPS int
	// Burst is the token bucket size (default 2*RPS).
	Burst int
	// StaleAfter is how long an idle client's bucket survives before the
	// sweeper drops it (default 10m).
	StaleAfter time.Duration
	// SweepEvery is the sweeper cadence (default 5m).
	SweepEvery time.Duration
	// RetryAfter is the hint sent with 429 responses (default 1s).
	RetryAfter time.Duration
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware that applies a token bucket per
// client IP. Idle buckets are swept in the background so the map does not
// grow with every address that ever hit the server.
func RateLimiter(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RPS * 2
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 5 * time.Minute
	}
	if cfg.RetryAfter < time.Second {
		cfg.RetryAfter = time.Second
	}
	retryAfter := strconv.Itoa(int(cfg.RetryAfter / time.Second))

	var mu sync.Mutex
	buckets := make(map[string]*clientBucket)

	go func() {
		for {
			time.Sleep(cfg.SweepEvery)
			mu.Lock()
			for ip, b := range buckets {
				if time.Since(b.lastSeen) > cfg.StaleAfter {
					delete(buckets, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		b, ok := buckets[ip]
		if !ok {
			b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)}
			buckets[ip] = b
		}
		b.lastSeen = time.Now()
		mu.Unlock()

		if !b.limiter.Allow() {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
