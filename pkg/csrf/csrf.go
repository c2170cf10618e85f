// Package csrf issues and verifies signed double-submit tokens.
//
// A token is an HS256 JWT carrying the session id it was issued for, a random
// nonce, and an expiry. The server hands the token to the browser twice: once
// in an http-only cookie and once in the response body. A state-changing
// request is accepted only when both copies are present, identical, correctly
// signed, unexpired, and bound to the caller's session.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NonceLength is the number of random bytes in each token.
const NonceLength = 32

var (
	ErrMissingToken    = errors.New("csrf: token missing")
	ErrTokenMismatch   = errors.New("csrf: cookie and header tokens differ")
	ErrInvalidToken    = errors.New("csrf: token invalid")
	ErrSessionMismatch = errors.New("csrf: token bound to another session")
)

// Claims is the token payload.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager issues and verifies tokens with one secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a manager. ttl bounds the lifetime of issued tokens.
func NewManager(secret []byte, ttl time.Duration) *Manager {
	return &Manager{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock returns a copy of m that reads time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

// Issue creates a token bound to sessionID.
func (m *Manager) Issue(sessionID string) (string, error) {
	nonce, err := RandomHex(NonceLength)
	if err != nil {
		return "", err
	}

	now := m.now()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign csrf token: %w", err)
	}
	return signed, nil
}

// Verify checks the cookie and header copies of a token for sessionID.
func (m *Manager) Verify(sessionID, cookieToken, headerToken string) error {
	if cookieToken == "" || headerToken == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return ErrTokenMismatch
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(headerToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}

	if sessionID == "" || subtle.ConstantTimeCompare([]byte(claims.SessionID), []byte(sessionID)) != 1 {
		return ErrSessionMismatch
	}
	return nil
}

// RandomHex returns n random bytes, hex encoded.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
