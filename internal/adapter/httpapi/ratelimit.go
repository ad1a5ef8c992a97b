package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter restricts request frequency per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration

	// idle clients are swept at most once per sweepEvery
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter creates limiter allowing perSecond requests with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,

		sweepEvery: time.Minute,
		now:        time.Now,
	}
}

// Allow returns false if the client hits the limit.
func (r *RateLimiter) Allow(client string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.sweepEvery {
		r.sweep(now)
	}

	cl, ok := r.limiters[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[client] = cl
	}
	cl.seen = now
	return cl.limiter.AllowN(now, 1)
}

// sweep drops clients idle for longer than r.idle. Callers hold r.mu.
func (r *RateLimiter) sweep(now time.Time) {
	for k, cl := range r.limiters {
		if now.Sub(cl.seen) > r.idle {
			delete(r.limiters, k)
		}
	}
	r.lastSweep = now
}

// Middleware rejects requests over the limit with 429.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
			return
		}
		c.Next()
	}
}
