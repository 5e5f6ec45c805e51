package domain

import "time"

// Event types emitted by the session core.
const (
	EventSessionCreated   = "session.created"
	EventSessionVerified  = "session.verified"
	EventSessionRefreshed = "session.refreshed"
	EventSessionRevoked   = "session.revoked"
	EventTokenTheft       = "session.token_theft"
	EventSessionsSwept    = "session.expired_swept"
)

// Event is one telemetry event (session-scoped, optional user).
type Event struct {
	SessionHandle string
	UserID        string
	EventType     string
	Source        string
	Metadata      []byte // JSON
	CreatedAt     time.Time
}
