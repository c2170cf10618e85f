package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfolio-backend/pkg/email"
	"portfolio-backend/pkg/ratelimit"
	"portfolio-backend/pkg/validation"
)

// User-facing messages shared by the server and the client
const (
	MsgContactSuccess = "Thank you for your message! I will get back to you within 24 hours."
	MsgContactFailure = "An error occurred while processing your message. Please try again later."
	MsgRateLimited    = "Too many contact form submissions, please try again later."
	MsgClientLimited  = "Too many submissions. Please try again later."
	MsgCSRFInvalid    = "Invalid CSRF token. Please refresh the page and try again."
	MsgMailerOffline  = "The contact form is temporarily unavailable. Please try again later."
)

// ContactRequest represents a contact form submission
type ContactRequest struct {
	Name    string `json:"name" yaml:"name"`
	Email   string `json:"email" yaml:"email"`
	Subject string `json:"subject" yaml:"subject"`
	Message string `json:"message" yaml:"message"`
	// Website is the honeypot field; people never see it, bots fill it in
	Website string `json:"website,omitempty" yaml:"website,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field
func (r ContactRequest) Trimmed() ContactRequest {
	return ContactRequest{
		Name:    strings.TrimSpace(r.Name),
		Email:   strings.TrimSpace(r.Email),
		Subject: strings.TrimSpace(r.Subject),
		Message: strings.TrimSpace(r.Message),
		Website: strings.TrimSpace(r.Website),
	}
}

// Values maps field names to values for validation.Validate
func (r ContactRequest) Values() map[string]string {
	return map[string]string{
		"name":    r.Name,
		"email":   r.Email,
		"subject": r.Subject,
		"message": r.Message,
	}
}

// IsHoneypotFilled reports whether the hidden field carries any content
func (r ContactRequest) IsHoneypotFilled() bool {
	return strings.TrimSpace(r.Website) != ""
}

// ClientMeta describes who sent a request
type ClientMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

// ContactOutcome says what happened to an accepted submission
type ContactOutcome int

const (
	OutcomeDelivered ContactOutcome = iota + 1
	// OutcomeDiscarded means the honeypot was filled; the caller still reports success
	OutcomeDiscarded
)

var (
	ErrMailerNotConfigured = errors.New("email service is not configured")
	ErrDeliveryFailed      = errors.New("contact message delivery failed")
)

// ValidationError carries per-field messages for a rejected submission
type ValidationError struct {
	Errors     []validation.FieldError
	Suspicious bool
}

func (e *ValidationError) Error() string {
	fields := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		fields[i] = fe.Field
	}
	return fmt.Sprintf("contact validation failed: %s", strings.Join(fields, ", "))
}

// RateLimitError is returned when an identity has used up its submissions
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("contact rate limit exceeded, retry after %s", e.RetryAfter)
}

// Mailer relays a sanitized contact message to the site owner
type Mailer interface {
	SendContactEmail(ctx context.Context, data email.ContactEmailData) error
	IsConfigured() bool
}

// SubmissionLimiter gates submissions per identity. Check never records;
// Record is called only after a successful delivery, and the caller holds
// Acquire for the identity from Check through Record.
type SubmissionLimiter interface {
	Acquire(ctx context.Context, identity string) (release func(), err error)
	Check(ctx context.Context, identity string) (ratelimit.Decision, error)
	Record(ctx context.Context, identity string) error
	Now() time.Time
}

// ContactUsecase defines the interface for contact form operations
type ContactUsecase interface {
	// SendContactMessage validates, rate limits and relays a submission
	SendContactMessage(ctx context.Context, req *ContactRequest, meta ClientMeta) (ContactOutcome, error)
}
