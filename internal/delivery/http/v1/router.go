package v1

import (
	"portfolio-backend/config"
	"portfolio-backend/internal/delivery/http/middleware"
	"portfolio-backend/internal/domain"
	"portfolio-backend/internal/metrics"
	"portfolio-backend/pkg/logger"
	"portfolio-backend/pkg/ratelimit"
	"portfolio-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	ContactUC  domain.ContactUsecase
	HealthUC   domain.HealthUsecase
	CSRF       *middleware.CSRF
	APILimiter *ratelimit.Limiter // General limit for every /api route
	Security   *security.SecurityLogger
	Config     *config.Config
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	if err := r.SetTrustedProxies(deps.Config.TrustedProxies); err != nil {
		logger.Log.Warn("Invalid TRUSTED_PROXIES, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	// Global Middlewares
	r.Use(middleware.RequestID())
	r.Use(middleware.CORSMiddleware(deps.Config.AllowedOrigins, deps.Security))
	r.Use(gin.Recovery())
	r.Use(gin.Logger()) // Use standard Gin logger
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(metrics.Middleware())
	r.Use(middleware.ErrorHandler())

	if deps.Config.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(middleware.APIRateLimitConfig(deps.APILimiter, deps.Security)))

	NewHealthHandler(api, deps.HealthUC)
	NewCSRFHandler(api, deps.CSRF)
	NewContactHandler(api, deps.ContactUC, deps.CSRF)

	// Everything else is either a file of the site or a JSON 404
	r.NoRoute(StaticHandler(deps.Config.StaticDir))

	return r
}
