package middleware

import (
	"errors"
	"net/http"

	"portfolio-backend/internal/delivery/http/response"
	"portfolio-backend/internal/domain"
	"portfolio-backend/pkg/apperror"
	"portfolio-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Check if there are errors appended to the context
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		reqID := c.GetString(domain.KeyRequestID)

		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			// SECURITY: Never expose internal error details to clients.
			logger.Log.Error("Internal server error", "error", err, "request_id", reqID, "path", c.Request.URL.Path)
			response.Error(c, http.StatusInternalServerError, "An unexpected error occurred. Please try again later.", nil)
			return
		}

		if appErr.Code >= http.StatusInternalServerError && appErr.Err != nil {
			logger.Log.Error("Request failed", "error", appErr.Err, "status", appErr.Code, "request_id", reqID, "path", c.Request.URL.Path)
		}

		if appErr.Details != nil {
			response.ValidationError(c, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		response.Error(c, appErr.Code, appErr.Message, nil)
	}
}
