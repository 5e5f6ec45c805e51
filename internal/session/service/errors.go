package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session service; callers map them to their
// transport's failure modes.
var (
	// ErrUnauthorized means the session does not exist or the presented
	// credential can never become valid. The caller should treat the user
	// as logged out.
	ErrUnauthorized = errors.New("session unauthorized")

	// ErrTryRefreshToken means the access token cannot be accepted as-is
	// but the session may still be alive. The caller should run the
	// refresh flow.
	ErrTryRefreshToken = errors.New("access token rejected; try the refresh flow")

	// ErrTokenTheftDetected is the sentinel wrapped by TokenTheftError.
	ErrTokenTheftDetected = errors.New("refresh token theft detected")
)

// TokenTheftError reports a refresh token replay from outside the rotation
// grace window. The offending session has already been removed when this
// error is returned.
type TokenTheftError struct {
	SessionHandle string
	UserID        string
}

func (e *TokenTheftError) Error() string {
	return fmt.Sprintf("refresh token theft detected for session %s (user %s)", e.SessionHandle, e.UserID)
}

func (e *TokenTheftError) Unwrap() error { return ErrTokenTheftDetected }
