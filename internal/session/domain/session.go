package domain

import "time"

// Session is one persisted session record, keyed by its opaque handle.
type Session struct {
	Handle                   string
	UserID                   string
	RefreshTokenHash         string // SHA-256 hash of the current refresh token
	PreviousRefreshTokenHash string // hash of the prior generation; empty once confirmed
	SessionData              []byte // server-side JSON blob, never leaves the store
	TokenPayload             []byte // JSON blob embedded in access tokens
	AntiCSRFToken            string // empty when anti-CSRF is disabled for this session
	ExpiresAt                time.Time
	CreatedAt                time.Time
}

// Expired reports whether the session has passed its refresh lifetime.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
