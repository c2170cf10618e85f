package usecase

import (
	"context"
	"fmt"
	"time"

	"portfolio-backend/internal/domain"
	"portfolio-backend/internal/metrics"
	"portfolio-backend/pkg/email"
	"portfolio-backend/pkg/logger"
	"portfolio-backend/pkg/sanitizer"
	"portfolio-backend/pkg/security"
	"portfolio-backend/pkg/validation"
)

type contactUsecase struct {
	mailer  domain.Mailer
	limiter domain.SubmissionLimiter
	secLog  *security.SecurityLogger
}

// NewContactUsecase creates a new contact usecase
func NewContactUsecase(mailer domain.Mailer, limiter domain.SubmissionLimiter, secLog *security.SecurityLogger) domain.ContactUsecase {
	return &contactUsecase{
		mailer:  mailer,
		limiter: limiter,
		secLog:  secLog,
	}
}

// SendContactMessage runs a submission through validation, the honeypot,
// the per-IP submission limit and the mail relay, in that order. The limit
// is only charged once the relay accepted the message.
func (uc *contactUsecase) SendContactMessage(ctx context.Context, req *domain.ContactRequest, meta domain.ClientMeta) (domain.ContactOutcome, error) {
	in := req.Trimmed()

	result := validation.Validate(in.Values())
	if !result.Valid {
		if result.Suspicious {
			uc.secLog.LogSuspiciousInput(ctx, in.Email, meta.IP, meta.UserAgent, meta.RequestID)
		} else {
			uc.secLog.LogValidationFailed(ctx, meta.IP, meta.RequestID, result.Fields())
		}
		metrics.ContactSubmissionsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return 0, &domain.ValidationError{Errors: result.Errors(), Suspicious: result.Suspicious}
	}

	if in.IsHoneypotFilled() {
		uc.secLog.LogHoneypotTriggered(ctx, meta.IP, meta.UserAgent, meta.RequestID)
		metrics.ContactSubmissionsTotal.WithLabelValues(metrics.OutcomeHoneypot).Inc()
		return domain.OutcomeDiscarded, nil
	}

	// Held until the submission is recorded or abandoned.
	release, err := uc.limiter.Acquire(ctx, meta.IP)
	if err != nil {
		return 0, fmt.Errorf("lock contact rate limit: %w", err)
	}
	defer release()

	decision, err := uc.limiter.Check(ctx, meta.IP)
	if err != nil {
		return 0, fmt.Errorf("check contact rate limit: %w", err)
	}
	if !decision.Allowed {
		uc.secLog.LogRateLimitTriggered(ctx, meta.IP, meta.UserAgent, meta.RequestID, "/api/contact")
		metrics.ContactSubmissionsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		metrics.RateLimitRejectionsTotal.WithLabelValues("contact").Inc()
		return 0, &domain.RateLimitError{RetryAfter: decision.RetryAfter(uc.limiter.Now())}
	}

	if !uc.mailer.IsConfigured() {
		metrics.ContactSubmissionsTotal.WithLabelValues(metrics.OutcomeNotConfigured).Inc()
		return 0, domain.ErrMailerNotConfigured
	}

	// Prepare email data
	emailData := email.ContactEmailData{
		SenderName:  sanitizer.Sanitize(in.Name),
		SenderEmail: sanitizer.Sanitize(in.Email),
		Subject:     sanitizer.Sanitize(in.Subject),
		Message:     sanitizer.Sanitize(in.Message),
		SubmittedAt: time.Now(),
	}

	start := time.Now()
	err = uc.mailer.SendContactEmail(ctx, emailData)
	metrics.MailDeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		uc.secLog.LogDeliveryFailed(ctx, in.Email, meta.IP, meta.RequestID, err)
		metrics.ContactSubmissionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return 0, fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}

	if err := uc.limiter.Record(ctx, meta.IP); err != nil {
		// The message went out; a lost record only loosens the limit.
		logger.Log.Warn("Failed to record contact submission", "error", err, "request_id", meta.RequestID)
	}

	uc.secLog.LogContactDelivered(ctx, in.Email, meta.IP, meta.RequestID)
	metrics.ContactSubmissionsTotal.WithLabelValues(metrics.OutcomeDelivered).Inc()
	logger.Log.Info("Contact form submission delivered",
		"email", security.MaskEmail(in.Email),
		"request_id", meta.RequestID,
	)

	return domain.OutcomeDelivered, nil
}
