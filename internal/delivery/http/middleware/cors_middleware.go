package middleware

import (
	"net/http"
	"strings"

	"portfolio-backend/internal/delivery/http/response"
	"portfolio-backend/internal/domain"
	"portfolio-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware enforces the ALLOWED_ORIGINS whitelist.
//
// SECURITY: requests carrying an Origin that is not listed are refused with
// 403 before reaching any handler. Requests without an Origin header
// (same-origin navigations, curl, server-to-server) pass through.
func CORSMiddleware(allowedOrigins []string, secLog *security.SecurityLogger) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Vary header to ensure caches differentiate by Origin
		c.Header("Vary", "Origin")

		if origin != "" && !allowed[origin] {
			secLog.LogOriginRejected(c.Request.Context(), origin, c.ClientIP(), c.GetString(domain.KeyRequestID))
			response.Error(c, http.StatusForbidden, "Origin not allowed", nil)
			c.Abort()
			return
		}

		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, X-CSRF-Token, X-Request-ID")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")
			c.Header("Access-Control-Max-Age", "86400") // 24 hours
		}

		// Handle preflight requests
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
