package v1

import (
	"errors"
	"net/http"

	"portfolio-backend/internal/delivery/http/middleware"
	"portfolio-backend/internal/delivery/http/response"
	"portfolio-backend/internal/domain"
	"portfolio-backend/pkg/apperror"
	"portfolio-backend/pkg/validation"

	"github.com/gin-gonic/gin"
)

// maxContactBody caps the JSON body; the longest valid submission is well below it.
const maxContactBody = 16 << 10

type ContactHandler struct {
	contactUC domain.ContactUsecase
}

// NewContactHandler registers the contact route behind CSRF protection
func NewContactHandler(api *gin.RouterGroup, contactUC domain.ContactUsecase, csrf *middleware.CSRF) {
	handler := &ContactHandler{
		contactUC: contactUC,
	}

	api.POST("/contact", csrf.Protect(), handler.SubmitContact)
}

// SubmitContact accepts a contact form submission and relays it by mail.
// A filled honeypot is answered exactly like a delivered message.
func (h *ContactHandler) SubmitContact(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxContactBody)

	var req domain.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest("Invalid request body"))
		return
	}

	meta := domain.ClientMeta{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		RequestID: c.GetString(domain.KeyRequestID),
	}

	if _, err := h.contactUC.SendContactMessage(c.Request.Context(), &req, meta); err != nil {
		c.Error(contactError(c, err))
		return
	}

	response.Success(c, http.StatusOK, domain.MsgContactSuccess, nil)
}

func contactError(c *gin.Context, err error) *apperror.AppError {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		if validationErr.Suspicious {
			return apperror.BadRequest(validation.MsgInvalidInput)
		}
		return apperror.Validation(validation.MsgFixErrors, validationErr.Errors)
	}

	var limitErr *domain.RateLimitError
	if errors.As(err, &limitErr) {
		middleware.SetRetryAfter(c, limitErr.RetryAfter)
		return apperror.TooManyRequests(domain.MsgRateLimited)
	}

	if errors.Is(err, domain.ErrMailerNotConfigured) {
		return apperror.ServiceUnavailable(domain.MsgMailerOffline, err)
	}

	return apperror.New(http.StatusInternalServerError, domain.MsgContactFailure, err)
}
