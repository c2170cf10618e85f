package v1

import (
	"net/http"

	"portfolio-backend/internal/delivery/http/middleware"
	"portfolio-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// CSRFTokenResponse is the body of GET /api/csrf-token
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

type CSRFHandler struct {
	csrf *middleware.CSRF
}

func NewCSRFHandler(api *gin.RouterGroup, csrf *middleware.CSRF) {
	handler := &CSRFHandler{csrf: csrf}
	api.GET("/csrf-token", handler.GetToken)
}

// GetToken issues a token bound to the caller's session
func (h *CSRFHandler) GetToken(c *gin.Context) {
	token, err := h.csrf.IssueToken(c)
	if err != nil {
		c.Error(apperror.Internal(err))
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}
