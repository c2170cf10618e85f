package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"portfolio-backend/internal/domain"
	"portfolio-backend/internal/usecase"
	"portfolio-backend/pkg/email"
	"portfolio-backend/pkg/ratelimit"
	"portfolio-backend/pkg/security"
)

// Mock dependencies
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendContactEmail(ctx context.Context, data email.ContactEmailData) error {
	return m.Called(ctx, data).Error(0)
}

func (m *MockMailer) IsConfigured() bool {
	return m.Called().Bool(0)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Check(ctx context.Context, identity string) (ratelimit.Decision, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(ratelimit.Decision), args.Error(1)
}

func (m *MockLimiter) Acquire(ctx context.Context, identity string) (func(), error) {
	return func() {}, nil
}

func (m *MockLimiter) Record(ctx context.Context, identity string) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *MockLimiter) Now() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

var meta = domain.ClientMeta{IP: "192.0.2.10", UserAgent: "test", RequestID: "req-1"}

func validRequest() *domain.ContactRequest {
	return &domain.ContactRequest{
		Name:    "  Jane O'Neil ",
		Email:   "jane@example.com",
		Subject: "Project <b>idea</b>",
		Message: "Hello, I would like to discuss a project with you.",
	}
}

func allowed() ratelimit.Decision {
	return ratelimit.Decision{Allowed: true, Limit: 3, Remaining: 3}
}

func TestSendContactMessage_Delivers(t *testing.T) {
	mailer := new(MockMailer)
	limiter := new(MockLimiter)
	uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

	limiter.On("Check", mock.Anything, meta.IP).Return(allowed(), nil)
	limiter.On("Record", mock.Anything, meta.IP).Return(nil)
	mailer.On("IsConfigured").Return(true)
	mailer.On("SendContactEmail", mock.Anything, mock.MatchedBy(func(d email.ContactEmailData) bool {
		return d.SenderName == "Jane O&#39;Neil" &&
			d.SenderEmail == "jane@example.com" &&
			d.Subject == "Project idea"
	})).Return(nil)

	outcome, err := uc.SendContactMessage(context.Background(), validRequest(), meta)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDelivered, outcome)
	mailer.AssertExpectations(t)
	limiter.AssertExpectations(t)
}

func TestSendContactMessage_Rejections(t *testing.T) {
	t.Run("Should reject invalid fields without touching limiter or mailer", func(t *testing.T) {
		mailer := new(MockMailer)
		limiter := new(MockLimiter)
		uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

		req := validRequest()
		req.Email = "not-an-email"
		req.Message = "short"

		_, err := uc.SendContactMessage(context.Background(), req, meta)

		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Len(t, vErr.Errors, 2)
		assert.Equal(t, "email", vErr.Errors[0].Field)
		assert.Equal(t, "message", vErr.Errors[1].Field)
		limiter.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
		mailer.AssertNotCalled(t, "SendContactEmail", mock.Anything, mock.Anything)
	})

	t.Run("Should flag suspicious input", func(t *testing.T) {
		mailer := new(MockMailer)
		limiter := new(MockLimiter)
		uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

		req := validRequest()
		req.Message = "Look at this: <script>alert('x')</script>"

		_, err := uc.SendContactMessage(context.Background(), req, meta)

		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.True(t, vErr.Suspicious)
		mailer.AssertNotCalled(t, "SendContactEmail", mock.Anything, mock.Anything)
	})

	t.Run("Should silently discard honeypot submissions", func(t *testing.T) {
		mailer := new(MockMailer)
		limiter := new(MockLimiter)
		uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

		req := validRequest()
		req.Website = "http://spam.example"

		outcome, err := uc.SendContactMessage(context.Background(), req, meta)

		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeDiscarded, outcome)
		limiter.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
		limiter.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
		mailer.AssertNotCalled(t, "SendContactEmail", mock.Anything, mock.Anything)
	})

	t.Run("Should refuse when the limit is reached", func(t *testing.T) {
		mailer := new(MockMailer)
		limiter := new(MockLimiter)
		uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

		limiter.On("Check", mock.Anything, meta.IP).Return(ratelimit.Decision{
			Allowed: false,
			Limit:   3,
			ResetAt: limiter.Now().Add(20 * time.Minute),
		}, nil)

		_, err := uc.SendContactMessage(context.Background(), validRequest(), meta)

		var rlErr *domain.RateLimitError
		require.ErrorAs(t, err, &rlErr)
		assert.Equal(t, 20*time.Minute, rlErr.RetryAfter)
		mailer.AssertNotCalled(t, "SendContactEmail", mock.Anything, mock.Anything)
		limiter.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("Should fail when the mailer is not configured", func(t *testing.T) {
		mailer := new(MockMailer)
		limiter := new(MockLimiter)
		uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

		limiter.On("Check", mock.Anything, meta.IP).Return(allowed(), nil)
		mailer.On("IsConfigured").Return(false)

		_, err := uc.SendContactMessage(context.Background(), validRequest(), meta)

		assert.ErrorIs(t, err, domain.ErrMailerNotConfigured)
		limiter.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("Should not record a failed delivery", func(t *testing.T) {
		mailer := new(MockMailer)
		limiter := new(MockLimiter)
		uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

		limiter.On("Check", mock.Anything, meta.IP).Return(allowed(), nil)
		mailer.On("IsConfigured").Return(true)
		mailer.On("SendContactEmail", mock.Anything, mock.Anything).Return(errors.New("relay refused"))

		_, err := uc.SendContactMessage(context.Background(), validRequest(), meta)

		assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
		assert.Contains(t, err.Error(), "relay refused")
		limiter.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("Should surface limiter store errors", func(t *testing.T) {
		mailer := new(MockMailer)
		limiter := new(MockLimiter)
		uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

		limiter.On("Check", mock.Anything, meta.IP).Return(ratelimit.Decision{}, errors.New("store down"))

		_, err := uc.SendContactMessage(context.Background(), validRequest(), meta)

		assert.Error(t, err)
		mailer.AssertNotCalled(t, "SendContactEmail", mock.Anything, mock.Anything)
	})
}

func TestSendContactMessage_RecordFailureStillDelivers(t *testing.T) {
	mailer := new(MockMailer)
	limiter := new(MockLimiter)
	uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

	limiter.On("Check", mock.Anything, meta.IP).Return(allowed(), nil)
	limiter.On("Record", mock.Anything, meta.IP).Return(errors.New("store down"))
	mailer.On("IsConfigured").Return(true)
	mailer.On("SendContactEmail", mock.Anything, mock.Anything).Return(nil)

	outcome, err := uc.SendContactMessage(context.Background(), validRequest(), meta)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDelivered, outcome)
}

// slowMailer takes a while to relay, like a real SMTP round trip
type slowMailer struct {
	sent atomic.Int32
}

func (m *slowMailer) SendContactEmail(ctx context.Context, data email.ContactEmailData) error {
	time.Sleep(50 * time.Millisecond)
	m.sent.Add(1)
	return nil
}

func (m *slowMailer) IsConfigured() bool { return true }

func TestSendContactMessage_ParallelRequestsShareTheLimit(t *testing.T) {
	mailer := &slowMailer{}
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Max: 3, Window: time.Hour})
	uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

	var delivered, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := uc.SendContactMessage(context.Background(), validRequest(), meta)
			var rlErr *domain.RateLimitError
			switch {
			case err == nil && outcome == domain.OutcomeDelivered:
				delivered.Add(1)
			case errors.As(err, &rlErr):
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), mailer.sent.Load())
	assert.Equal(t, int32(3), delivered.Load())
	assert.Equal(t, int32(7), limited.Load())
}

func TestSendContactMessage_FailedDeliveryFreesTheSlotForTheNextCaller(t *testing.T) {
	mailer := new(MockMailer)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Max: 1, Window: time.Hour})
	uc := usecase.NewContactUsecase(mailer, limiter, security.NewNop())

	mailer.On("IsConfigured").Return(true)
	mailer.On("SendContactEmail", mock.Anything, mock.Anything).Return(errors.New("relay refused")).Once()
	mailer.On("SendContactEmail", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := uc.SendContactMessage(context.Background(), validRequest(), meta)
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)

	outcome, err := uc.SendContactMessage(context.Background(), validRequest(), meta)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDelivered, outcome)

	_, err = uc.SendContactMessage(context.Background(), validRequest(), meta)
	var rlErr *domain.RateLimitError
	assert.ErrorAs(t, err, &rlErr)
}

func TestHealthUsecase(t *testing.T) {
	status := usecase.NewHealthUsecase("test").Check(context.Background())

	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "test", status.Environment)
	assert.False(t, status.Timestamp.IsZero())
}
