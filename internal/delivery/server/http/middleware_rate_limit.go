package http

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRateClients = 10000
	defaultRateIdleTTL    = 15 * time.Minute
)

// RateLimitConfig bounds per-client request rates. A zero rate disables
// limiting. Idle clients are forgotten after IdleTTL, and at most
// MaxClients buckets are tracked.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	MaxClients        int
	IdleTTL           time.Duration
}

// clientLimiter keeps one token bucket per client key.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

func newClientLimiter(cfg RateLimitConfig) *clientLimiter {
	size := cfg.MaxClients
	if size <= 0 {
		size = defaultMaxRateClients
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultRateIdleTTL
	}
	return &clientLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets.Get(key)
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-adding refreshes the idle deadline.
	l.buckets.Add(key, bucket)
	l.mu.Unlock()
	return bucket.Allow()
}

func rateLimitMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newClientLimiter(cfg)
	return func(c *gin.Context) {
		if !limiter.allow(rateLimitKey(c)) {
			c.Header("Retry-After", "1")
			abortWithError(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if userID := strings.TrimSpace(currentUser(c).UserID); userID != "" {
		return "user:" + userID
	}
	if ip := clientIP(c.Request); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}
