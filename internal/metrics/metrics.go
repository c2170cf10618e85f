// Package metrics provides Prometheus metrics for the contact API
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, route, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portfolio",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

var (
	// ContactSubmissionsTotal counts contact submissions by outcome
	ContactSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "contact",
			Name:      "submissions_total",
			Help:      "Contact form submissions by outcome",
		},
		[]string{"outcome"},
	)

	// MailDeliveryDuration measures time spent relaying a message
	MailDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "portfolio",
			Subsystem: "contact",
			Name:      "mail_delivery_duration_seconds",
			Help:      "Time taken to hand a contact message to the SMTP relay",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// RateLimitRejectionsTotal counts requests turned away by a limiter
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "security",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by a rate limiter",
		},
		[]string{"limiter"},
	)

	// CSRFFailuresTotal counts rejected CSRF checks
	CSRFFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "security",
			Name:      "csrf_failures_total",
			Help:      "State-changing requests rejected for a missing or invalid CSRF token",
		},
	)
)

// Contact submission outcomes
const (
	OutcomeDelivered     = "delivered"
	OutcomeInvalid       = "invalid"
	OutcomeHoneypot      = "honeypot"
	OutcomeRateLimited   = "rate_limited"
	OutcomeFailed        = "failed"
	OutcomeNotConfigured = "not_configured"
)

// Middleware records request count and latency per matched route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
