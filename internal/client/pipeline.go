package client

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"portfolio-backend/internal/domain"
	"portfolio-backend/pkg/csrf"
	"portfolio-backend/pkg/logger"
	"portfolio-backend/pkg/ratelimit"
	"portfolio-backend/pkg/sanitizer"
	"portfolio-backend/pkg/validation"
)

// RateLimitKey is the key the local submission history is stored under.
const RateLimitKey = "contact_form_submissions"

// ErrBusy is returned when Submit is called while another submission runs.
var ErrBusy = errors.New("a submission is already in progress")

// State is a step of a submission attempt.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateRejected
	StateHoneypotSilent
	StateRateLimited
	StateSubmitting
	StateDelivered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateRejected:
		return "rejected"
	case StateHoneypotSilent:
		return "honeypot_silent"
	case StateRateLimited:
		return "rate_limited"
	case StateSubmitting:
		return "submitting"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is the message shown to the user after an attempt. Text is always
// one of the fixed messages in domain.
type Notice struct {
	Kind NoticeKind
	Text string
}

// HTML returns the notice text safe for insertion into markup.
func (n Notice) HTML() string {
	return sanitizer.Sanitize(n.Text)
}

// Result describes how an attempt ended.
type Result struct {
	// State is the terminal state of the attempt
	State       State
	Notice      Notice
	FieldErrors []validation.FieldError
	// ClearForm is set when the form should be reset
	ClearForm bool
	// Err is the underlying cause of StateFailed
	Err error
}

// Submitter is the part of Client the pipeline needs.
type Submitter interface {
	FetchCSRFToken(ctx context.Context) (string, error)
	SubmitContact(ctx context.Context, req domain.ContactRequest, token string) error
}

// Pipeline runs contact submissions on the client side: it validates, checks
// the honeypot and a local submission limit, then posts to the backend. The
// local checks are for quick feedback only; the backend repeats all of them.
type Pipeline struct {
	api     Submitter
	limiter *ratelimit.Limiter

	mu       sync.Mutex
	busy     bool
	state    State
	token    string
	degraded bool
}

// NewPipeline creates a pipeline. limiter tracks this client's own
// submissions, typically over a kvstore-backed ratelimit.KVStore.
func NewPipeline(api Submitter, limiter *ratelimit.Limiter) *Pipeline {
	return &Pipeline{api: api, limiter: limiter}
}

// Init fetches the session's CSRF token. When that fails a random token is
// used instead; the backend will then refuse submissions with 403, which
// Submit reports like any other failure. The fetch error is returned for
// logging.
func (p *Pipeline) Init(ctx context.Context) error {
	token, err := p.api.FetchCSRFToken(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.token = token
		p.degraded = false
		return nil
	}

	logger.Log.Warn("Could not fetch CSRF token, using a local placeholder", "error", err)
	fallback, randErr := csrf.RandomHex(csrf.NonceLength)
	if randErr != nil {
		return errors.Join(err, randErr)
	}
	p.token = fallback
	p.degraded = true
	return err
}

// Degraded reports whether the pipeline runs on a placeholder token.
func (p *Pipeline) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

// State returns the current state; StateIdle between attempts.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Busy reports whether a submission is in flight.
func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// ValidateField checks one field as the user leaves it.
func (p *Pipeline) ValidateField(field, value string) string {
	return validation.ValidateField(field, value)
}

// Submit runs one attempt. Only one attempt runs at a time; a concurrent call
// gets ErrBusy. Every other outcome, including transport errors, is reported
// through the Result.
func (p *Pipeline) Submit(ctx context.Context, req domain.ContactRequest) (Result, error) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return Result{}, ErrBusy
	}
	p.busy = true
	p.state = StateValidating
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.busy = false
		p.state = StateIdle
		p.mu.Unlock()
	}()

	in := req.Trimmed()

	if res := validation.Validate(in.Values()); !res.Valid {
		return Result{
			State:       StateRejected,
			Notice:      Notice{Kind: NoticeError, Text: validation.MsgFixErrors},
			FieldErrors: res.Errors(),
		}, nil
	}

	if in.IsHoneypotFilled() {
		return Result{
			State:     StateHoneypotSilent,
			Notice:    Notice{Kind: NoticeSuccess, Text: domain.MsgContactSuccess},
			ClearForm: true,
		}, nil
	}

	decision, err := p.limiter.Check(ctx, RateLimitKey)
	if err != nil {
		// The local limit is advisory; the server still enforces its own.
		logger.Log.Warn("Local submission history unavailable", "error", err)
	} else if !decision.Allowed {
		return Result{
			State:  StateRateLimited,
			Notice: Notice{Kind: NoticeError, Text: domain.MsgClientLimited},
		}, nil
	}

	p.mu.Lock()
	p.state = StateSubmitting
	token := p.token
	p.mu.Unlock()

	if token == "" {
		if initErr := p.Init(ctx); initErr != nil {
			logger.Log.Warn("Submitting with a placeholder CSRF token", "error", initErr)
		}
		p.mu.Lock()
		token = p.token
		p.mu.Unlock()
	}

	if err := p.api.SubmitContact(ctx, in, token); err != nil {
		return Result{
			State:  StateFailed,
			Notice: Notice{Kind: NoticeError, Text: failureMessage(err)},
			Err:    err,
		}, nil
	}

	if err := p.limiter.Record(ctx, RateLimitKey); err != nil {
		logger.Log.Warn("Failed to record submission locally", "error", err)
	}

	return Result{
		State:     StateDelivered,
		Notice:    Notice{Kind: NoticeSuccess, Text: domain.MsgContactSuccess},
		ClearForm: true,
	}, nil
}

// failureMessage picks the fixed message for a failed attempt. Server text is
// never shown.
func failureMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusForbidden:
			return domain.MsgCSRFInvalid
		case http.StatusTooManyRequests:
			return domain.MsgRateLimited
		}
	}
	return domain.MsgContactFailure
}
