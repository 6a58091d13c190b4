package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ezequielvera391/rimovies-api-v2/internal/config"
)

// RateLimiter throttles the credential and token endpoints per client IP so a
// single caller cannot brute-force logins or churn refresh tokens. It hands
// each client a token bucket sized from the configured per-minute budget.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	staleAfter time.Duration

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter from RATE_LIMIT_RPM. A zero or negative
// budget disables throttling and returns nil.
func NewRateLimiter(cfg config.Config) *RateLimiter {
	if cfg.RateLimitRPM <= 0 {
		return nil
	}
	burst := cfg.RateLimitRPM / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:      rate.Limit(float64(cfg.RateLimitRPM) / 60.0),
		burst:      burst,
		staleAfter: 5 * time.Minute,
		buckets:    make(map[string]*clientBucket),
	}
}

// Handler returns the gin middleware. A nil limiter passes everything
// through.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(clientIP string) bool {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.buckets[clientIP]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[clientIP] = bucket
		r.dropStaleLocked(now)
	}
	bucket.lastSeen = now
	return bucket.limiter.Allow()
}

func (r *RateLimiter) dropStaleLocked(now time.Time) {
	for clientIP, bucket := range r.buckets {
		if now.Sub(bucket.lastSeen) > r.staleAfter {
			delete(r.buckets, clientIP)
		}
	}
}
