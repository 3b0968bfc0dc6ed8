package router

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/domain"
)

const limiterIdleTTL = 5 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
// Buckets idle for limiterIdleTTL are swept on access.
type RateLimiter struct {
	mu        sync.Mutex
	ips       map[string]*ipLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows rps requests per second per IP with a burst of rps
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		ips:   make(map[string]*ipLimiter),
		rps:   rate.Limit(rps),
		burst: rps,
		now:   time.Now,
	}
}

// Allow reports whether ip may make another request now
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= limiterIdleTTL {
		cutoff := now.Add(-limiterIdleTTL)
		for key, l := range rl.ips {
			if l.lastSeen.Before(cutoff) {
				delete(rl.ips, key)
			}
		}
		rl.lastSweep = now
	}

	l, ok := rl.ips[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.ips[ip] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// RateLimitMiddleware rejects callers over rps requests per second with 429.
// rps <= 0 disables it.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	rl := NewRateLimiter(rps)
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Message: domain.ErrThrottled.Error(),
				Kind:    domain.KindThrottled,
			})
			return
		}
		c.Next()
	}
}
