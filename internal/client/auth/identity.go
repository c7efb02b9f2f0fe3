// Package auth derives the caller's identity from the bearer token the
// session backend issued. Tokens are not verified here; the backend does that.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("malformed token")

type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
	Guest     bool
}

func GuestIdentity() Identity { return Identity{Guest: true} }

// ParseToken reads the sub, email and exp claims of raw. An empty token is a
// guest. An expired token is returned with Guest set, alongside an error.
func ParseToken(raw string, now time.Time) (Identity, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return GuestIdentity(), nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return GuestIdentity(), fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return GuestIdentity(), fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}

	id := Identity{UserID: sub}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		id.ExpiresAt = exp.Time
		if !exp.Time.After(now) {
			return Identity{Guest: true, UserID: sub, ExpiresAt: exp.Time}, jwt.ErrTokenExpired
		}
	}
	return id, nil
}

// TokenSource holds the current bearer token. It can be swapped at runtime
// by login/logout while requests are in flight.
type TokenSource struct {
	mu    sync.RWMutex
	token string
}

func NewTokenSource(token string) *TokenSource {
	return &TokenSource{token: token}
}

func (s *TokenSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *TokenSource) Set(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

func (s *TokenSource) Clear() { s.Set("") }
