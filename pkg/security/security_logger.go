package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType represents the type of security event
type EventType string

const (
	EventCSRFFailed         EventType = "csrf_failed"
	EventRateLimitTriggered EventType = "rate_limit_triggered"
	EventRateLimitStoreDown EventType = "rate_limit_store_down"
	EventHoneypotTriggered  EventType = "honeypot_triggered"
	EventValidationFailed   EventType = "validation_failed"
	EventSuspiciousInput    EventType = "suspicious_input"
	EventOriginRejected     EventType = "origin_rejected"
	EventDeliveryFailed     EventType = "delivery_failed"
	EventContactDelivered   EventType = "contact_delivered"
)

// SecurityEvent represents a security-related event to be logged
type SecurityEvent struct {
	Timestamp    time.Time              `json:"timestamp"`
	Service      string                 `json:"service"`
	Environment  string                 `json:"env"`
	Level        string                 `json:"level"`
	Severity     Severity               `json:"severity"`
	Event        EventType              `json:"event"`
	SubjectType  string                 `json:"subject_type,omitempty"`  // "email", "ip", "origin"
	SubjectValue string                 `json:"subject_value,omitempty"` // Masked or hashed for PII
	IP           string                 `json:"ip,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// SecurityLogger provides structured logging for security events
type SecurityLogger struct {
	zapLogger   *zap.Logger
	serviceName string
	environment string
}

// NewSecurityLogger builds a security logger that writes JSON to stdout
func NewSecurityLogger(serviceName, environment string) *SecurityLogger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"

	// Container friendly outputs
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		// Fallback to a basic logger if config fails
		logger, _ = zap.NewProduction()
	}

	return NewWithZap(logger, serviceName, environment)
}

// NewWithZap wraps an existing zap logger
func NewWithZap(logger *zap.Logger, serviceName, environment string) *SecurityLogger {
	return &SecurityLogger{
		zapLogger:   logger,
		serviceName: serviceName,
		environment: environment,
	}
}

// NewNop returns a logger that discards everything
func NewNop() *SecurityLogger {
	return NewWithZap(zap.NewNop(), "", "")
}

// Log logs a security event
func (sl *SecurityLogger) Log(_ context.Context, event SecurityEvent) {
	if sl == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Service = sl.serviceName
	event.Environment = sl.environment

	// Log level follows the derived severity
	event.Severity = GetSeverity(event.Event)
	level := zapcore.WarnLevel
	switch {
	case event.Severity == SeverityINFO:
		level = zapcore.InfoLevel
	case IsHighOrAbove(event.Event):
		level = zapcore.ErrorLevel
	}
	event.Level = level.String()

	fields := []zap.Field{
		zap.String("service", event.Service),
		zap.String("env", event.Environment),
		zap.String("event", string(event.Event)),
		zap.String("severity", string(event.Severity)),
	}
	if event.SubjectType != "" {
		fields = append(fields, zap.String("subject_type", event.SubjectType))
	}
	if event.SubjectValue != "" {
		fields = append(fields, zap.String("subject_value", event.SubjectValue))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if len(event.Details) > 0 {
		detailsJSON, _ := json.Marshal(event.Details)
		fields = append(fields, zap.String("details", string(detailsJSON)))
	}

	sl.zapLogger.Log(level, string(event.Event), fields...)
}

// LogCSRFFailed logs a rejected CSRF check
func (sl *SecurityLogger) LogCSRFFailed(ctx context.Context, ip, userAgent, requestID, reason string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventCSRFFailed,
		SubjectType:  "ip",
		SubjectValue: ip,
		IP:           ip,
		UserAgent:    userAgent,
		RequestID:    requestID,
		Details:      map[string]interface{}{"reason": reason},
	})
}

// LogRateLimitTriggered logs when rate limiting is triggered
func (sl *SecurityLogger) LogRateLimitTriggered(ctx context.Context, ip, userAgent, requestID, endpoint string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventRateLimitTriggered,
		SubjectType:  "ip",
		SubjectValue: ip,
		IP:           ip,
		UserAgent:    userAgent,
		RequestID:    requestID,
		Details:      map[string]interface{}{"endpoint": endpoint},
	})
}

// LogRateLimitStoreDown logs a failing shared rate-limit store
func (sl *SecurityLogger) LogRateLimitStoreDown(ctx context.Context, op string, err error) {
	sl.Log(ctx, SecurityEvent{
		Event:       EventRateLimitStoreDown,
		SubjectType: "system",
		Details: map[string]interface{}{
			"op":    op,
			"error": err.Error(),
		},
	})
}

// LogHoneypotTriggered logs a submission that filled the hidden field
func (sl *SecurityLogger) LogHoneypotTriggered(ctx context.Context, ip, userAgent, requestID string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventHoneypotTriggered,
		SubjectType:  "ip",
		SubjectValue: ip,
		IP:           ip,
		UserAgent:    userAgent,
		RequestID:    requestID,
	})
}

// LogValidationFailed logs which fields failed; values are never logged
func (sl *SecurityLogger) LogValidationFailed(ctx context.Context, ip, requestID string, fields []string) {
	sl.Log(ctx, SecurityEvent{
		Event:     EventValidationFailed,
		IP:        ip,
		RequestID: requestID,
		Details:   map[string]interface{}{"fields": fields},
	})
}

// LogSuspiciousInput logs a submission containing injection patterns
func (sl *SecurityLogger) LogSuspiciousInput(ctx context.Context, email, ip, userAgent, requestID string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventSuspiciousInput,
		SubjectType:  "email",
		SubjectValue: MaskEmail(email),
		IP:           ip,
		UserAgent:    userAgent,
		RequestID:    requestID,
	})
}

// LogOriginRejected logs a cross-origin request from an unlisted origin
func (sl *SecurityLogger) LogOriginRejected(ctx context.Context, origin, ip, requestID string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventOriginRejected,
		SubjectType:  "origin",
		SubjectValue: origin,
		IP:           ip,
		RequestID:    requestID,
	})
}

// LogDeliveryFailed logs a relay failure for a contact message
func (sl *SecurityLogger) LogDeliveryFailed(ctx context.Context, email, ip, requestID string, err error) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventDeliveryFailed,
		SubjectType:  "email",
		SubjectValue: MaskEmail(email),
		IP:           ip,
		RequestID:    requestID,
		Details:      map[string]interface{}{"error": err.Error()},
	})
}

// LogContactDelivered logs a relayed contact message
func (sl *SecurityLogger) LogContactDelivered(ctx context.Context, email, ip, requestID string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventContactDelivered,
		SubjectType:  "email",
		SubjectValue: maskValue("email", email),
		IP:           ip,
		RequestID:    requestID,
	})
}

// Sync flushes any buffered log entries
func (sl *SecurityLogger) Sync() error {
	if sl == nil {
		return nil
	}
	return sl.zapLogger.Sync()
}

// --- Helper Functions ---

// MaskEmail masks an email for logging (e.g., "j***@example.com")
func MaskEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	atIndex := strings.IndexByte(email, '@')
	if atIndex < 0 {
		return HashValue(email)
	}
	if atIndex <= 1 {
		return "***" + email[atIndex:]
	}
	return email[:1] + "***" + email[atIndex:]
}

// HashValue creates a SHA256 hash of a value (for logging without PII)
func HashValue(value string) string {
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:8]) // First 16 chars of hex
}

// maskValue masks a value based on its type
func maskValue(subjectType, value string) string {
	switch subjectType {
	case "email":
		return MaskEmail(value)
	case "ip":
		return value // IPs are not PII in security context
	default:
		return HashValue(value)
	}
}
