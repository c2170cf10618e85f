package middleware

import (
	"net/http"
	"strconv"
	"time"

	"portfolio-backend/internal/delivery/http/response"
	"portfolio-backend/internal/domain"
	"portfolio-backend/internal/metrics"
	"portfolio-backend/pkg/logger"
	"portfolio-backend/pkg/ratelimit"
	"portfolio-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Name labels metrics and logs (e.g. "api")
	Name    string
	Limiter *ratelimit.Limiter
	// Custom key extractor (default: IP-based)
	KeyFunc func(*gin.Context) string
	// Whether to fail closed (reject) when the limiter store errors
	FailClosed bool
	// Message returned with the 429
	Message  string
	Security *security.SecurityLogger
}

// APIRateLimitConfig is the general limit applied to every /api route
func APIRateLimitConfig(limiter *ratelimit.Limiter, secLog *security.SecurityLogger) RateLimitConfig {
	return RateLimitConfig{
		Name:       "api",
		Limiter:    limiter,
		FailClosed: false, // Fail open by default for availability
		Message:    "Too many requests from this IP, please try again later.",
		Security:   secLog,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

// RateLimitMiddleware counts every request against the limiter and rejects
// callers over the limit with 429
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}

	return func(c *gin.Context) {
		decision, err := config.Limiter.CheckAndRecord(c.Request.Context(), config.KeyFunc(c))
		if err != nil {
			logger.Log.Error("Rate limiter unavailable", "limiter", config.Name, "error", err)
			if config.FailClosed {
				response.Error(c, http.StatusServiceUnavailable, "Service temporarily unavailable. Please try again.", nil)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		SetRateLimitHeaders(c, decision, config.Limiter.Now())

		if !decision.Allowed {
			config.Security.LogRateLimitTriggered(
				c.Request.Context(),
				c.ClientIP(),
				c.GetHeader("User-Agent"),
				c.GetString(domain.KeyRequestID),
				c.FullPath(),
			)
			metrics.RateLimitRejectionsTotal.WithLabelValues(config.Name).Inc()

			response.Error(c, http.StatusTooManyRequests, config.Message, nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// SetRateLimitHeaders writes the standard X-RateLimit-* headers, plus
// Retry-After when the request was refused
func SetRateLimitHeaders(c *gin.Context, d ratelimit.Decision, now time.Time) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
	if !d.Allowed {
		SetRetryAfter(c, d.RetryAfter(now))
	}
}

// SetRetryAfter writes Retry-After in whole seconds
func SetRetryAfter(c *gin.Context, wait time.Duration) {
	seconds := int(wait.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
}
