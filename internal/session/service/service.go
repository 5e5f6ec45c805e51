// Package service implements the session lifecycle: creation, access token
// verification, refresh token rotation with theft detection, revocation, and
// expired-session cleanup.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"session-control-plane/core/internal/security"
	"session-control-plane/core/internal/session/domain"
	"session-control-plane/core/internal/session/repository"
	"session-control-plane/core/internal/telemetry"
	tdomain "session-control-plane/core/internal/telemetry/domain"
	"session-control-plane/core/internal/token"
)

// refreshSecretBytes sizes the random secret inside each refresh token.
const refreshSecretBytes = 32

const eventSource = "session-core"

// SessionRepo is the minimal session repository needed by the service.
type SessionRepo interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByHandle(ctx context.Context, handle string) (*domain.Session, error)
	GetSessionData(ctx context.Context, handle string) ([]byte, bool, error)
	UpdateSessionData(ctx context.Context, handle string, data []byte) (bool, error)
	DeleteByHandle(ctx context.Context, handle string) (bool, error)
	DeleteByUser(ctx context.Context, userID string) error
	ListHandlesByUser(ctx context.Context, userID string) ([]string, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ClearPreviousHash(ctx context.Context, handle, expected string) (bool, error)
	Rotate(ctx context.Context, handle string, fn func(current *domain.Session, tx repository.RotateTx) error) error
}

// TheftHandler is invoked when refresh token theft is detected, after the
// stolen session has been removed.
type TheftHandler func(ctx context.Context, sessionHandle, userID string)

// TokenInfo is a token handed to the caller together with its expiry.
type TokenInfo struct {
	Token     string
	ExpiresAt time.Time
}

// NewSession is the result of creating or refreshing a session.
// IDRefreshToken is an opaque value front-ends watch to detect logout; it is
// never stored or verified server-side.
type NewSession struct {
	Handle         string
	UserID         string
	AccessToken    TokenInfo
	RefreshToken   TokenInfo
	IDRefreshToken TokenInfo
	AntiCSRFToken  string
	TokenPayload   []byte
}

// SessionContext is the result of verifying an access token. NewAccessToken
// is non-nil when the caller must replace the token it presented.
type SessionContext struct {
	Handle         string
	UserID         string
	TokenPayload   []byte
	NewAccessToken *TokenInfo
}

// Service orchestrates session state across the token codec, the refresh
// token wrapping key, and the shared session store.
type Service struct {
	repo         SessionRepo
	codec        *token.Codec
	refreshKeys  token.KeyProvider
	accessTTL    time.Duration
	refreshTTL   time.Duration
	antiCSRF     bool
	blacklisting bool
	emitter      telemetry.EventEmitter
	onTokenTheft TheftHandler

	now func() time.Time
}

// NewService returns a Service with the given dependencies. accessKeys signs
// access tokens and may rotate; refreshKeys wraps refresh tokens and must be
// a persistent key. emitter and onTokenTheft may be nil.
func NewService(
	repo SessionRepo,
	accessKeys token.KeyProvider,
	refreshKeys token.KeyProvider,
	accessTTL, refreshTTL time.Duration,
	antiCSRF, blacklisting bool,
	emitter telemetry.EventEmitter,
	onTokenTheft TheftHandler,
) *Service {
	return &Service{
		repo:         repo,
		codec:        token.NewCodec(accessKeys),
		refreshKeys:  refreshKeys,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		antiCSRF:     antiCSRF,
		blacklisting: blacklisting,
		emitter:      emitter,
		onTokenTheft: onTokenTheft,
		now:          time.Now,
	}
}

// CreateNewSession creates a session for userID and returns its first token
// pair. tokenPayload is embedded in every access token; sessionData stays in
// the store.
func (s *Service) CreateNewSession(ctx context.Context, userID string, tokenPayload, sessionData []byte) (*NewSession, error) {
	now := s.now().UTC()
	handle := uuid.New().String()

	refresh, refreshHash, err := s.mintRefreshToken(ctx, handle)
	if err != nil {
		return nil, err
	}

	antiCSRFToken := ""
	if s.antiCSRF {
		antiCSRFToken = uuid.New().String()
	}
	idRefreshToken, err := security.NewOpaqueToken(refreshSecretBytes)
	if err != nil {
		return nil, err
	}

	sessionExpiry := now.Add(s.refreshTTL)
	if err := s.repo.Create(ctx, &domain.Session{
		Handle:           handle,
		UserID:           userID,
		RefreshTokenHash: refreshHash,
		SessionData:      sessionData,
		TokenPayload:     tokenPayload,
		AntiCSRFToken:    antiCSRFToken,
		ExpiresAt:        sessionExpiry,
		CreatedAt:        now,
	}); err != nil {
		return nil, err
	}

	access, err := s.mintAccessToken(ctx, handle, userID, refreshHash, "", antiCSRFToken, tokenPayload, now)
	if err != nil {
		return nil, err
	}

	telemetry.EmitAsync(s.emitter, ctx, &tdomain.Event{
		SessionHandle: handle,
		UserID:        userID,
		EventType:     tdomain.EventSessionCreated,
		Source:        eventSource,
		CreatedAt:     now,
	})

	return &NewSession{
		Handle:         handle,
		UserID:         userID,
		AccessToken:    access,
		RefreshToken:   TokenInfo{Token: refresh, ExpiresAt: sessionExpiry},
		IDRefreshToken: TokenInfo{Token: idRefreshToken, ExpiresAt: sessionExpiry},
		AntiCSRFToken:  antiCSRFToken,
		TokenPayload:   tokenPayload,
	}, nil
}

// GetSession verifies an access token without touching the store in the
// common case. Tokens minted by a refresh carry the previous-generation hash
// and trigger one store round trip that confirms the rotation and re-signs
// the token without it; the caller must adopt the returned token.
func (s *Service) GetSession(ctx context.Context, accessToken, antiCSRFToken string) (*SessionContext, error) {
	payload, err := s.codec.Verify(ctx, accessToken)
	if err != nil {
		// The signing key may have rotated; the refresh flow re-signs
		// with the current key.
		return nil, ErrTryRefreshToken
	}

	if s.antiCSRF && payload.AntiCSRFToken != antiCSRFToken {
		return nil, ErrTryRefreshToken
	}

	result := &SessionContext{
		Handle:       payload.SessionHandle,
		UserID:       payload.UserID,
		TokenPayload: payload.UserPayload,
	}

	if payload.PreviousRefreshTokenHash == "" {
		if s.blacklisting {
			session, err := s.repo.GetByHandle(ctx, payload.SessionHandle)
			if err != nil {
				return nil, err
			}
			if session == nil {
				return nil, ErrUnauthorized
			}
		}
		return result, nil
	}

	// The token was minted by a refresh. Confirm the rotation it came from
	// is still the current one, close the grace window, and re-sign.
	session, err := s.repo.GetByHandle(ctx, payload.SessionHandle)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrUnauthorized
	}
	if session.RefreshTokenHash != payload.RefreshTokenHash {
		return nil, ErrUnauthorized
	}
	if _, err := s.repo.ClearPreviousHash(ctx, payload.SessionHandle, payload.PreviousRefreshTokenHash); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	access, err := s.mintAccessToken(ctx, payload.SessionHandle, payload.UserID,
		payload.RefreshTokenHash, "", payload.AntiCSRFToken, payload.UserPayload, now)
	if err != nil {
		return nil, err
	}
	result.NewAccessToken = &access

	telemetry.EmitAsync(s.emitter, ctx, &tdomain.Event{
		SessionHandle: payload.SessionHandle,
		UserID:        payload.UserID,
		EventType:     tdomain.EventSessionVerified,
		Source:        eventSource,
		CreatedAt:     now,
	})
	return result, nil
}

// RefreshSession trades a refresh token for a new token pair, rotating the
// stored hashes under a row lock. A token one generation behind the current
// one is answered with tokens for the current generation and no rotation. A
// token older than that is treated as stolen: the session is deleted, the
// theft handler runs, and a TokenTheftError is returned.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (*NewSession, error) {
	wrapKey, err := s.refreshKeys.GetKey(ctx)
	if err != nil {
		return nil, err
	}
	inner, err := security.Decrypt(refreshToken, wrapKey)
	if err != nil {
		return nil, ErrUnauthorized
	}
	secret, handle, ok := strings.Cut(inner, ".")
	if !ok || secret == "" || handle == "" {
		return nil, ErrUnauthorized
	}
	presentedHash := security.Hash(inner)

	now := s.now().UTC()
	var (
		result *NewSession
		theft  *TokenTheftError
		outErr error
	)
	err = s.repo.Rotate(ctx, handle, func(current *domain.Session, tx repository.RotateTx) error {
		if current == nil {
			outErr = ErrUnauthorized
			return nil
		}
		if current.Expired(now) {
			outErr = ErrUnauthorized
			return tx.Delete(ctx)
		}

		switch {
		case security.HashEqual(inner, current.RefreshTokenHash):
			// Current generation: rotate.
			newRefresh, newHash, err := s.mintRefreshToken(ctx, handle)
			if err != nil {
				return err
			}
			idRefreshToken, err := security.NewOpaqueToken(refreshSecretBytes)
			if err != nil {
				return err
			}
			antiCSRFToken := ""
			if s.antiCSRF {
				antiCSRFToken = uuid.New().String()
			}
			sessionExpiry := now.Add(s.refreshTTL)
			if err := tx.UpdateTokens(ctx, newHash, presentedHash, antiCSRFToken, sessionExpiry); err != nil {
				return err
			}
			access, err := s.mintAccessToken(ctx, handle, current.UserID,
				newHash, presentedHash, antiCSRFToken, current.TokenPayload, now)
			if err != nil {
				return err
			}
			result = &NewSession{
				Handle:         handle,
				UserID:         current.UserID,
				AccessToken:    access,
				RefreshToken:   TokenInfo{Token: newRefresh, ExpiresAt: sessionExpiry},
				IDRefreshToken: TokenInfo{Token: idRefreshToken, ExpiresAt: sessionExpiry},
				AntiCSRFToken:  antiCSRFToken,
				TokenPayload:   current.TokenPayload,
			}
			return nil

		case current.PreviousRefreshTokenHash != "" && security.HashEqual(inner, current.PreviousRefreshTokenHash):
			// One generation behind: a concurrent refresh already rotated.
			// Answer with the current generation and leave the row alone.
			access, err := s.mintAccessToken(ctx, handle, current.UserID,
				current.RefreshTokenHash, current.PreviousRefreshTokenHash,
				current.AntiCSRFToken, current.TokenPayload, now)
			if err != nil {
				return err
			}
			idRefreshToken, err := security.NewOpaqueToken(refreshSecretBytes)
			if err != nil {
				return err
			}
			result = &NewSession{
				Handle:         handle,
				UserID:         current.UserID,
				AccessToken:    access,
				RefreshToken:   TokenInfo{Token: refreshToken, ExpiresAt: current.ExpiresAt},
				IDRefreshToken: TokenInfo{Token: idRefreshToken, ExpiresAt: current.ExpiresAt},
				AntiCSRFToken:  current.AntiCSRFToken,
				TokenPayload:   current.TokenPayload,
			}
			return nil

		default:
			// Older than the grace window: the token was replayed after its
			// successor was already confirmed.
			theft = &TokenTheftError{SessionHandle: handle, UserID: current.UserID}
			return tx.Delete(ctx)
		}
	})
	if err != nil {
		return nil, err
	}
	if theft != nil {
		if s.onTokenTheft != nil {
			s.onTokenTheft(ctx, theft.SessionHandle, theft.UserID)
		}
		telemetry.EmitAsync(s.emitter, ctx, &tdomain.Event{
			SessionHandle: theft.SessionHandle,
			UserID:        theft.UserID,
			EventType:     tdomain.EventTokenTheft,
			Source:        eventSource,
			CreatedAt:     now,
		})
		return nil, theft
	}
	if outErr != nil {
		return nil, outErr
	}

	telemetry.EmitAsync(s.emitter, ctx, &tdomain.Event{
		SessionHandle: handle,
		UserID:        result.UserID,
		EventType:     tdomain.EventSessionRefreshed,
		Source:        eventSource,
		CreatedAt:     now,
	})
	return result, nil
}

// RevokeSessionUsingSessionHandle removes the session and reports whether it
// existed. Without blacklisting, live access tokens keep verifying until they
// expire.
func (s *Service) RevokeSessionUsingSessionHandle(ctx context.Context, handle string) (bool, error) {
	deleted, err := s.repo.DeleteByHandle(ctx, handle)
	if err != nil {
		return false, err
	}
	if deleted {
		telemetry.EmitAsync(s.emitter, ctx, &tdomain.Event{
			SessionHandle: handle,
			EventType:     tdomain.EventSessionRevoked,
			Source:        eventSource,
			CreatedAt:     s.now().UTC(),
		})
	}
	return deleted, nil
}

// RevokeAllSessionsForUser removes every session belonging to userID.
func (s *Service) RevokeAllSessionsForUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	telemetry.EmitAsync(s.emitter, ctx, &tdomain.Event{
		UserID:    userID,
		EventType: tdomain.EventSessionRevoked,
		Source:    eventSource,
		CreatedAt: s.now().UTC(),
	})
	return nil
}

// GetAllSessionHandlesForUser returns the handles of userID's live sessions.
func (s *Service) GetAllSessionHandlesForUser(ctx context.Context, userID string) ([]string, error) {
	return s.repo.ListHandlesByUser(ctx, userID)
}

// GetSessionData returns the server-side data for handle.
func (s *Service) GetSessionData(ctx context.Context, handle string) ([]byte, error) {
	data, found, err := s.repo.GetSessionData(ctx, handle)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnauthorized
	}
	return data, nil
}

// UpdateSessionData replaces the server-side data for handle.
func (s *Service) UpdateSessionData(ctx context.Context, handle string, data []byte) error {
	found, err := s.repo.UpdateSessionData(ctx, handle, data)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnauthorized
	}
	return nil
}

// RemoveExpiredSessions deletes sessions past their refresh lifetime and
// returns how many were removed.
func (s *Service) RemoveExpiredSessions(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	n, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		telemetry.EmitAsync(s.emitter, ctx, &tdomain.Event{
			EventType: tdomain.EventSessionsSwept,
			Source:    eventSource,
			CreatedAt: now,
		})
	}
	return n, nil
}

// mintRefreshToken builds a fresh refresh token for handle and returns the
// encrypted wire form together with the stored hash of its inner form.
func (s *Service) mintRefreshToken(ctx context.Context, handle string) (wire, hash string, err error) {
	secret, err := security.NewOpaqueToken(refreshSecretBytes)
	if err != nil {
		return "", "", err
	}
	inner := secret + "." + handle
	wrapKey, err := s.refreshKeys.GetKey(ctx)
	if err != nil {
		return "", "", err
	}
	wire, err = security.Encrypt(inner, wrapKey)
	if err != nil {
		return "", "", err
	}
	return wire, security.Hash(inner), nil
}

func (s *Service) mintAccessToken(ctx context.Context, handle, userID, refreshHash, previousRefreshHash, antiCSRFToken string, userPayload []byte, now time.Time) (TokenInfo, error) {
	expiresAt := now.Add(s.accessTTL)
	signed, err := s.codec.Create(ctx, token.Payload{
		SessionHandle:            handle,
		UserID:                   userID,
		RefreshTokenHash:         refreshHash,
		PreviousRefreshTokenHash: previousRefreshHash,
		AntiCSRFToken:            antiCSRFToken,
		UserPayload:              userPayload,
		ExpiresAt:                expiresAt.UnixMilli(),
	})
	if err != nil {
		return TokenInfo{}, err
	}
	return TokenInfo{Token: signed, ExpiresAt: expiresAt}, nil
}
