package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/rmitchellscott/ditherbox/internal/logging"
)

// idleTTL is how long an unused client entry is kept.
const idleTTL = 10 * time.Minute

type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter implements per client IP token bucket rate limiting
type IPRateLimiter struct {
	limit rate.Limit
	burst int

	clients map[string]*clientLimit
	mutex   sync.Mutex
	now     func() time.Time
}

// NewIPRateLimiter allows perMinute requests per client IP with the given
// burst. A non-positive perMinute disables limiting.
func NewIPRateLimiter(perMinute, burst int) *IPRateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = max(perMinute, 1)
	}
	return &IPRateLimiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientLimit),
		now:     time.Now,
	}
}

func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	entry, ok := l.clients[ip]
	if !ok {
		entry = &clientLimit{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = entry
	}
	entry.lastSeen = l.now()
	return entry.limiter
}

// RateLimit is a middleware that rejects requests over the per-IP limit with
// 429 and a Retry-After header.
func (l *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limit == rate.Inf {
			c.Next()
			return
		}

		ip := c.ClientIP()
		reservation := l.getLimiter(ip).ReserveN(l.now(), 1)
		if delay := reservation.DelayFrom(l.now()); delay > 0 {
			reservation.CancelAt(l.now())
			logging.WarnWithComponent(logging.ComponentLimiter, "Rate limit exceeded", "ip", ip, "path", c.FullPath())
			c.Header("Retry-After", fmt.Sprintf("%d", int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// Cleanup removes idle client entries and returns how many were dropped.
func (l *IPRateLimiter) Cleanup() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()
	removed := 0
	for ip, entry := range l.clients {
		if now.Sub(entry.lastSeen) >= idleTTL {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// RequestSizeLimit rejects bodies larger than maxBytes. Declared lengths are
// checked up front; chunked bodies are capped while they are read.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			logging.WarnWithComponent(logging.ComponentAPI, "Request too large",
				"size", c.Request.ContentLength, "limit", maxBytes, "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":    "Request payload too large",
				"max_size": fmt.Sprintf("%dB", maxBytes),
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
