package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"session-control-plane/core/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db
// for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `session_handle, user_id, refresh_token_hash, previous_refresh_token_hash,
	session_data, token_payload, anti_csrf_token, expires_at, created_at`

// Create persists the session. The session must have Handle set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_records (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.Handle, s.UserID, s.RefreshTokenHash,
		nullString(s.PreviousRefreshTokenHash),
		s.SessionData, s.TokenPayload,
		nullString(s.AntiCSRFToken),
		s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetByHandle returns the session for handle, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByHandle(ctx context.Context, handle string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM session_records
		WHERE session_handle = $1`, handle)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// GetSessionData returns the server-side data blob for handle. The second
// return value reports whether the row existed.
func (r *PostgresRepository) GetSessionData(ctx context.Context, handle string) ([]byte, bool, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT session_data FROM session_records WHERE session_handle = $1`, handle).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get session data: %w", err)
	}
	return data, true, nil
}

// UpdateSessionData replaces the server-side data blob for handle and reports
// whether a row existed.
func (r *PostgresRepository) UpdateSessionData(ctx context.Context, handle string, data []byte) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE session_records SET session_data = $2 WHERE session_handle = $1`, handle, data)
	if err != nil {
		return false, fmt.Errorf("update session data: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update session data: %w", err)
	}
	return n > 0, nil
}

// DeleteByHandle removes the session for handle and reports whether a row was
// deleted.
func (r *PostgresRepository) DeleteByHandle(ctx context.Context, handle string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM session_records WHERE session_handle = $1`, handle)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

// DeleteByUser removes every session belonging to userID.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM session_records WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete sessions by user: %w", err)
	}
	return nil
}

// ListHandlesByUser returns the handles of every session belonging to userID.
func (r *PostgresRepository) ListHandlesByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_handle FROM session_records WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list session handles: %w", err)
	}
	defer rows.Close()
	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("list session handles: %w", err)
		}
		handles = append(handles, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list session handles: %w", err)
	}
	return handles, nil
}

// DeleteExpired removes sessions whose expiry is strictly before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM session_records WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}

// ClearPreviousHash empties the previous-generation hash for handle, guarded
// on it still matching expected so a concurrent rotation is not clobbered.
func (r *PostgresRepository) ClearPreviousHash(ctx context.Context, handle, expected string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE session_records
		SET previous_refresh_token_hash = NULL
		WHERE session_handle = $1 AND previous_refresh_token_hash = $2`, handle, expected)
	if err != nil {
		return false, fmt.Errorf("clear previous hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clear previous hash: %w", err)
	}
	return n > 0, nil
}

// Rotate opens a transaction, locks the session row for handle, and hands it
// to fn along with a mutator scoped to that row. The lock is held until the
// transaction commits, which serializes concurrent refreshes of one session
// across processes.
func (r *PostgresRepository) Rotate(ctx context.Context, handle string, fn func(current *domain.Session, tx RotateTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rotate session: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM session_records
		WHERE session_handle = $1
		FOR UPDATE`, handle)
	current, err := scanSession(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("rotate session: lock: %w", err)
		}
		current = nil
	}

	if err := fn(current, &postgresRotateTx{tx: tx, handle: handle}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rotate session: commit: %w", err)
	}
	return nil
}

type postgresRotateTx struct {
	tx     *sql.Tx
	handle string
}

func (t *postgresRotateTx) UpdateTokens(ctx context.Context, refreshTokenHash, previousRefreshTokenHash, antiCSRFToken string, expiresAt time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE session_records
		SET refresh_token_hash = $2,
		    previous_refresh_token_hash = $3,
		    anti_csrf_token = $4,
		    expires_at = $5
		WHERE session_handle = $1`,
		t.handle, refreshTokenHash, nullString(previousRefreshTokenHash), nullString(antiCSRFToken), expiresAt)
	if err != nil {
		return fmt.Errorf("rotate session: update tokens: %w", err)
	}
	return nil
}

func (t *postgresRotateTx) Delete(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM session_records WHERE session_handle = $1`, t.handle)
	if err != nil {
		return fmt.Errorf("rotate session: delete: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s             domain.Session
		prevHash      sql.NullString
		antiCSRFToken sql.NullString
	)
	err := row.Scan(
		&s.Handle, &s.UserID, &s.RefreshTokenHash, &prevHash,
		&s.SessionData, &s.TokenPayload, &antiCSRFToken,
		&s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.PreviousRefreshTokenHash = prevHash.String
	s.AntiCSRFToken = antiCSRFToken.String
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
