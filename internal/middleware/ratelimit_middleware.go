package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"matchmate-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// LimiterPool hands out one token bucket per key.
type LimiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func NewLimiterPool(rps float64, burst int) *LimiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &LimiterPool{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (p *LimiterPool) Get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.limiters[key] = l
	return l
}

func (p *LimiterPool) Burst() int {
	return p.burst
}

// Refill is the time one token takes to come back.
func (p *LimiterPool) Refill() time.Duration {
	return time.Duration(float64(time.Second) / p.rps)
}

// RateLimitMiddleware limits requests per authenticated user, falling back
// to the client IP before auth has run.
func RateLimitMiddleware(pool *LimiterPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := UserIDFromContext(c.Request.Context())
		if !ok {
			key = "ip:" + c.ClientIP()
		}

		if !pool.Get(key).Allow() {
			setRateLimitHeaders(c, pool.Burst(), 0, pool.Refill())
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, limit, remaining int, resetIn time.Duration) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(math.Ceil(resetIn.Seconds())), 10))
}
