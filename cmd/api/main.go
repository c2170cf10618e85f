package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-backend/config"
	"portfolio-backend/internal/delivery/http/middleware"
	v1 "portfolio-backend/internal/delivery/http/v1"
	"portfolio-backend/internal/usecase"
	"portfolio-backend/pkg/csrf"
	"portfolio-backend/pkg/email"
	"portfolio-backend/pkg/logger"
	"portfolio-backend/pkg/ratelimit"
	redisclient "portfolio-backend/pkg/redis"
	"portfolio-backend/pkg/security"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Setup Loggers
	logger.Init(cfg.LogLevel)
	secLog := security.NewSecurityLogger("portfolio-backend", cfg.Environment)
	defer secLog.Sync()

	// 3. Setup Rate Limit Storage
	store := newRateLimitStore(cfg, secLog)
	apiLimiter := ratelimit.New(store, ratelimit.Config{
		Max:       cfg.RateLimitMax,
		Window:    cfg.RateLimitWindow,
		KeyPrefix: "ratelimit:api:",
	})
	contactLimiter := ratelimit.New(store, ratelimit.Config{
		Max:       cfg.ContactRateLimitMax,
		Window:    cfg.ContactRateLimitWindow,
		KeyPrefix: "ratelimit:contact:",
	})

	// 4. Setup Email Service
	emailService := email.NewEmailService(cfg)
	defer emailService.Close()
	if !emailService.IsConfigured() {
		logger.Log.Warn("Email service not fully configured - contact form will be unavailable")
	}

	// 5. Setup UseCases
	contactUC := usecase.NewContactUsecase(emailService, contactLimiter, secLog)
	healthUC := usecase.NewHealthUsecase(cfg.Environment)

	// 6. Setup CSRF
	csrfManager := csrf.NewManager([]byte(cfg.CSRFSecret), cfg.CSRFTTL)
	csrfMiddleware := middleware.NewCSRF(csrfManager, cfg.IsProduction(), secLog)

	// 7. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		ContactUC:  contactUC,
		HealthUC:   healthUC,
		CSRF:       csrfMiddleware,
		APILimiter: apiLimiter,
		Security:   secLog,
		Config:     cfg,
	})

	// 8. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Listen failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Log.Info("Server running",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"email_service", configuredLabel(emailService.IsConfigured()),
		"csrf_protection", "enabled",
		"rate_limiting", "enabled",
		"static_dir", cfg.StaticDir,
	)

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}

	logger.Log.Info("Server exiting")
}

// newRateLimitStore uses Redis when REDIS_URL is set, falling back to process
// memory whenever Redis errors.
func newRateLimitStore(cfg *config.Config, secLog *security.SecurityLogger) ratelimit.Store {
	memory := ratelimit.NewMemoryStore()
	if cfg.RedisURL == "" {
		return memory
	}

	client, err := redisclient.Connect(context.Background(), redisclient.Config{
		URL:      cfg.RedisURL,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Log.Warn("Redis unavailable, rate limiting uses in-memory storage", "error", err)
		return memory
	}
	logger.Log.Info("Rate limiting backed by Redis")

	return ratelimit.NewFallbackStore(ratelimit.NewRedisStore(client), memory, func(op string, err error) {
		secLog.LogRateLimitStoreDown(context.Background(), op, err)
	})
}

func configuredLabel(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
