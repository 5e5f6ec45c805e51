package repository

import (
	"context"
	"time"

	"session-control-plane/core/internal/session/domain"
)

// RotateTx is the set of mutations available while a session row is locked
// inside Rotate. Calls apply to the locked row only.
type RotateTx interface {
	// UpdateTokens replaces the current refresh token hash, records the prior
	// one as the previous generation, and extends the session expiry.
	UpdateTokens(ctx context.Context, refreshTokenHash, previousRefreshTokenHash, antiCSRFToken string, expiresAt time.Time) error
	// Delete removes the locked session row.
	Delete(ctx context.Context) error
}

// Repository defines persistence for session records.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	// GetByHandle returns the session for handle, or nil if not found.
	GetByHandle(ctx context.Context, handle string) (*domain.Session, error)
	GetSessionData(ctx context.Context, handle string) ([]byte, bool, error)
	// UpdateSessionData reports whether a row with the handle existed.
	UpdateSessionData(ctx context.Context, handle string, data []byte) (bool, error)
	// DeleteByHandle reports whether a row was deleted.
	DeleteByHandle(ctx context.Context, handle string) (bool, error)
	DeleteByUser(ctx context.Context, userID string) error
	ListHandlesByUser(ctx context.Context, userID string) ([]string, error)
	// DeleteExpired removes sessions whose expiry is strictly before now and
	// returns how many rows were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// ClearPreviousHash empties the previous-generation hash, but only while
	// it still matches expected. Reports whether the row matched.
	ClearPreviousHash(ctx context.Context, handle, expected string) (bool, error)
	// Rotate locks the session row for handle and invokes fn with it (nil
	// when no row exists). Mutations made through tx and the lock are
	// released together when Rotate commits.
	Rotate(ctx context.Context, handle string, fn func(current *domain.Session, tx RotateTx) error) error
}
