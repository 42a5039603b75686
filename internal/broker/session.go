package broker

import (
	"sync"
	"time"

	"github.com/seenimoa/tradecore/pkg/utils"
)

// SessionState tracks the broker auth token and its expiry. Shared by
// the gateway and the token refresh job; goroutine-safe.
type SessionState struct {
	mu          sync.RWMutex
	accessToken string
	issuedAt    time.Time
	expiresAt   time.Time
}

// NewSessionState creates a session, optionally seeded with a token.
// Upstox tokens expire at 03:30 IST the next day; a seeded token is
// assumed valid until then.
func NewSessionState(token string) *SessionState {
	s := &SessionState{}
	if token != "" {
		s.SetToken(token, nextTokenExpiry(time.Now()))
	}
	return s
}

// Token returns the current access token, or "" when absent or expired.
func (s *SessionState) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accessToken == "" || time.Now().After(s.expiresAt) {
		return ""
	}
	return s.accessToken
}

// SetToken installs a fresh token with the given expiry.
func (s *SessionState) SetToken(token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
	s.issuedAt = time.Now()
	s.expiresAt = expiresAt
}

// IsAuthenticated reports whether a non-expired token is held.
func (s *SessionState) IsAuthenticated() bool {
	return s.Token() != ""
}

// ExpiresAt returns the current token's expiry time.
func (s *SessionState) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Clear drops the current token.
func (s *SessionState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.expiresAt = time.Time{}
}

// nextTokenExpiry returns 03:30 IST strictly after now.
func nextTokenExpiry(now time.Time) time.Time {
	local := now.In(utils.IST)
	expiry := time.Date(local.Year(), local.Month(), local.Day(), 3, 30, 0, 0, utils.IST)
	if !expiry.After(local) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	return expiry
}
