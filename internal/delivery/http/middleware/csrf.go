package middleware

import (
	"errors"
	"net/http"

	"portfolio-backend/internal/delivery/http/response"
	"portfolio-backend/internal/domain"
	"portfolio-backend/internal/metrics"
	"portfolio-backend/pkg/csrf"
	"portfolio-backend/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CSRFTokenCookieName is the name of the cookie that stores the CSRF token
	CSRFTokenCookieName = "csrf-token"
	// CSRFTokenHeaderName is the name of the header that must contain the CSRF token
	CSRFTokenHeaderName = "X-CSRF-Token"
	// SessionCookieName identifies the browser session a token is bound to
	SessionCookieName = "sid"
)

// CSRF implements a signed double-submit cookie.
//
// How it works:
//  1. GET /api/csrf-token ensures the browser has a session cookie, issues a
//     token bound to that session, stores it in an http-only cookie and also
//     returns it in the body.
//  2. For state-changing requests (POST, PUT, DELETE, PATCH), Protect checks
//     that the X-CSRF-Token header and the cookie hold the same token, that
//     its signature and expiry are valid, and that it belongs to the session.
//
// Cookies are SameSite=Strict and http-only; Secure is set in production.
type CSRF struct {
	manager *csrf.Manager
	secure  bool
	secLog  *security.SecurityLogger
}

func NewCSRF(manager *csrf.Manager, secure bool, secLog *security.SecurityLogger) *CSRF {
	return &CSRF{manager: manager, secure: secure, secLog: secLog}
}

// IssueToken sets the session and token cookies and returns the token.
func (m *CSRF) IssueToken(c *gin.Context) (string, error) {
	sessionID, err := c.Cookie(SessionCookieName)
	if err != nil || sessionID == "" {
		sessionID = uuid.NewString()
		m.setCookie(c, SessionCookieName, sessionID)
	}

	token, err := m.manager.Issue(sessionID)
	if err != nil {
		return "", err
	}
	m.setCookie(c, CSRFTokenCookieName, token)
	return token, nil
}

// Protect rejects state-changing requests without a valid token.
func (m *CSRF) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		// For safe methods, no validation needed
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		cookieToken, _ := c.Cookie(CSRFTokenCookieName)
		sessionID, _ := c.Cookie(SessionCookieName)
		headerToken := c.GetHeader(CSRFTokenHeaderName)

		if err := m.manager.Verify(sessionID, cookieToken, headerToken); err != nil {
			m.secLog.LogCSRFFailed(
				c.Request.Context(),
				c.ClientIP(),
				c.GetHeader("User-Agent"),
				c.GetString(domain.KeyRequestID),
				failureReason(err),
			)
			metrics.CSRFFailuresTotal.Inc()

			response.Error(c, http.StatusForbidden, domain.MsgCSRFInvalid, nil)
			c.Abort()
			return
		}

		c.Set(domain.KeySessionID, sessionID)
		c.Next()
	}
}

func (m *CSRF) setCookie(c *gin.Context, name, value string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		name,
		value,
		0, // Session cookie; token expiry is enforced by the signed claims
		"/",
		"",       // Domain (empty = current domain)
		m.secure, // Secure (HTTPS only) in production
		true,     // HttpOnly
	)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, csrf.ErrMissingToken):
		return "missing"
	case errors.Is(err, csrf.ErrTokenMismatch):
		return "mismatch"
	case errors.Is(err, csrf.ErrSessionMismatch):
		return "session"
	default:
		return "invalid"
	}
}
