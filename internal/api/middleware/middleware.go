// Package middleware carries the request-scoped plumbing: caller identity,
// request logging and HTTP metrics. Authentication itself happens at the
// gateway; this service trusts the forwarded account header.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
	"github.com/custody-service/custody_service/pkg/ratelimit"
)

const accountIDKey = "account_id"

// AccountID returns the authenticated account id set by RequireAccount
func AccountID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(accountIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// RequireAccount extracts the caller identity from the X-Account-ID header
// set by the authenticating gateway.
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader("X-Account-ID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
			return
		}
		c.Set(accountIDKey, id)
		c.Next()
	}
}

// RateLimit rejects requests once the caller exceeds the limiter's window.
// Keys on the authenticated account, falling back to the client IP.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if id, ok := AccountID(c); ok {
			key = id.String()
		}

		result, err := limiter.Allow(c.Request.Context(), key)
		if err == nil && !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// RequestLogger logs each request with latency and status
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Metrics records request latency per route and status
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
