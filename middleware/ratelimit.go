package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu    sync.Mutex
	byIP  map[string]*ipLimiter
	r     rate.Limit
	b     int
	swept time.Time
}

// get returns ip's limiter. Stale entries are swept inline at most every
// limiterSweepEvery, so no background goroutine outlives the router.
func (s *limiterSet) get(ip string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.swept) > limiterSweepEvery {
		for k, il := range s.byIP {
			if now.Sub(il.lastSeen) > limiterIdleAfter {
				delete(s.byIP, k)
			}
		}
		s.swept = now
	}
	il, ok := s.byIP[ip]
	if !ok {
		il = &ipLimiter{limiter: rate.NewLimiter(s.r, s.b)}
		s.byIP[ip] = il
	}
	il.lastSeen = now
	return il.limiter
}

// retryAfter is the whole seconds until one token refills, at least 1.
func retryAfter(r rate.Limit) string {
	if r <= 0 || r == rate.Inf {
		return "1"
	}
	return strconv.Itoa(max(1, int(math.Ceil(1/float64(r)))))
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size. Rejected requests carry a
// Retry-After header so planner clients can back off between turns.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	set := &limiterSet{byIP: make(map[string]*ipLimiter), r: r, b: b, swept: time.Now()}
	wait := retryAfter(r)
	return func(c *gin.Context) {
		if !set.get(c.ClientIP(), time.Now()).Allow() {
			c.Header("Retry-After", wait)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
