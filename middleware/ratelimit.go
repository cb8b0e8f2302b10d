package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket refilled at rate per minute
// up to burst tokens.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     float64
	burst    float64
	idleTTL  time.Duration
	now      func() time.Time
}

func NewRateLimiter(rate, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     float64(rate),
		burst:    float64(burst),
		idleTTL:  time.Hour,
		now:      time.Now,
	}
}

// Allow takes one token from clientID's bucket if one is available.
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[clientID]
	if !ok {
		rl.visitors[clientID] = &visitor{tokens: rl.burst - 1, lastSeen: now}
		return true
	}

	elapsed := now.Sub(v.lastSeen).Minutes()
	v.tokens = min(v.tokens+elapsed*rl.rate, rl.burst)
	v.lastSeen = now

	if v.tokens >= 1 {
		v.tokens--
		return true
	}
	return false
}

// RetryAfter is how long a client with an empty bucket waits for a token.
func (rl *RateLimiter) RetryAfter() time.Duration {
	return time.Duration(float64(time.Minute) / rl.rate)
}

// Prune forgets clients idle longer than the TTL and reports how many.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	n := 0
	for id, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, id)
			n++
		}
	}
	return n
}

// RunCleanup prunes idle clients every interval until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune()
		}
	}
}

// RateLimitMiddleware rejects requests from clients over the limit.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	retryAfter := limiter.RetryAfter()
	seconds := strconv.Itoa(max(1, int(retryAfter.Round(time.Second)/time.Second)))

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", seconds)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter.String(),
			})
			return
		}
		c.Next()
	}
}
