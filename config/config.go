package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FallbackCSRFSecret is used outside production when CSRF_SECRET is unset.
const FallbackCSRFSecret = "fallback-secret-change-in-production"

type Config struct {
	Port        string
	Environment string
	// Comma separated origins permitted for cross-origin requests
	AllowedOrigins []string
	TrustedProxies []string
	StaticDir      string
	// CSRF
	CSRFSecret string
	CSRFTTL    time.Duration
	// SMTP Configuration
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	SMTPFromEmail  string
	ContactEmailTo string
	SMTPPoolSize   int
	SMTPTimeout    time.Duration
	// Redis Configuration
	RedisURL      string
	RedisPassword string
	// Rate Limiting Configuration
	RateLimitWindow        time.Duration
	RateLimitMax           int
	ContactRateLimitWindow time.Duration
	ContactRateLimitMax    int
	// Observability
	LogLevel       string
	MetricsEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if present; real environment variables win
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "3000"),
		Environment:    getEnv("APP_ENV", getEnv("NODE_ENV", "development")),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies: getEnvList("TRUSTED_PROXIES", nil),
		StaticDir:      getEnv("STATIC_DIR", "./public"),
		CSRFSecret:     getEnv("CSRF_SECRET", ""),
		CSRFTTL:        getEnvDuration("CSRF_TOKEN_TTL", 24*time.Hour),
		// SMTP Configuration
		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnv("SMTP_PORT", "465"),
		SMTPUsername:   getEnv("SMTP_USER", getEnv("SMTP_USERNAME", "")),
		SMTPPassword:   getEnv("SMTP_PASS", getEnv("SMTP_PASSWORD", "")),
		SMTPFromEmail:  getEnv("SMTP_FROM", ""),
		ContactEmailTo: getEnv("CONTACT_EMAIL_TO", getEnv("CONTACT_EMAIL", "")),
		SMTPPoolSize:   getEnvInt("SMTP_POOL_SIZE", 2),
		SMTPTimeout:    getEnvDuration("SMTP_TIMEOUT", 10*time.Second),
		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		// Rate Limiting Configuration (windows are given in milliseconds)
		RateLimitWindow:        getEnvMillis("RATE_LIMIT_WINDOW", 15*time.Minute),
		RateLimitMax:           getEnvInt("RATE_LIMIT_MAX", 100),
		ContactRateLimitWindow: getEnvMillis("CONTACT_RATE_LIMIT_WINDOW", time.Hour),
		ContactRateLimitMax:    getEnvInt("CONTACT_RATE_LIMIT_MAX", 3),
		// Observability
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if cfg.SMTPFromEmail == "" {
		cfg.SMTPFromEmail = cfg.SMTPUsername
	}
	if cfg.ContactEmailTo == "" {
		cfg.ContactEmailTo = cfg.SMTPUsername
	}

	if cfg.CSRFSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("CSRF_SECRET must be set in production")
		}
		log.Println("WARNING: CSRF_SECRET is missing. Using the development fallback secret.")
		cfg.CSRFSecret = FallbackCSRFSecret
	}
	if cfg.IsProduction() && len(cfg.CSRFSecret) < 32 {
		return nil, errors.New("CSRF_SECRET must be at least 32 characters in production")
	}

	if cfg.SMTPHost == "" || cfg.SMTPUsername == "" || cfg.SMTPPassword == "" {
		log.Println("WARNING: SMTP credentials not configured. Contact form submissions will be rejected.")
	}

	if cfg.RedisURL == "" {
		log.Println("WARNING: REDIS_URL not configured. Rate limiting will use in-memory storage.")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool returns a boolean environment variable or fallback if not set/invalid
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvMillis reads a whole number of milliseconds
func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

// getEnvDuration reads a Go duration string such as "10s"
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimRight(part, "/"))
		}
	}
	return out
}
