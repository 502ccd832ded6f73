package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"creatorExchange/internal/metrics"
)

const (
	ctxRequestID = "RequestID"
	ctxUserID    = "UserID"

	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"
)

// RequestIDMiddleware keeps the caller's request id or assigns a new one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Writer.Header().Set(headerRequestID, requestID)
		c.Next()
	}
}

// RequestLogger logs every request and counts it by route template.
func RequestLogger(logger *zap.Logger, rec *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if rec != nil {
			rec.Request(route, status)
		}
		logger.Info("request",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// clientLimiter hands out one token bucket per client key.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	return &clientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *clientLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// prune drops buckets that have refilled completely by now. Such a client
// has been idle long enough that a fresh bucket is identical; clients still
// draining theirs keep them.
func (l *clientLimiter) prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := 0
	for key, limiter := range l.limiters {
		if limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
			dropped++
		}
	}
	return dropped
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimitMiddleware rejects clients that exceed their bucket. Callers are
// keyed by user id when known and by IP otherwise.
func RateLimitMiddleware(l *clientLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(headerUserID)
		if key == "" {
			key = c.ClientIP()
		}
		if !l.get(key).Allow() {
			logger.Warn("rate limit exceeded", zap.String("client", key))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{
				Error:   "rate_limited",
				Message: "too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}

// IdentityMiddleware requires the user id set by the upstream auth proxy.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Error:   "unauthenticated",
				Message: headerUserID + " header is required",
			})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}
