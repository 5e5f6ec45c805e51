package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"session-control-plane/core/internal/signingkey/domain"
)

// PostgresRepository stores signing keys in the signing_keys table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a signing-key repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the key row for name, or nil if none exists.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, name string) (*domain.Key, error) {
	key := domain.Key{Name: name}
	err := r.db.QueryRowContext(ctx, `
		SELECT key_value, created_at
		FROM signing_keys
		WHERE key_name = $1
	`, name).Scan(&key.Value, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("signing key get: %w", err)
	}
	return &key, nil
}

// Rotate locks the key row for name, lets fn decide whether to replace it,
// and commits. The row lock is what keeps two processes from generating
// duplicate keys when they observe expiry at the same time.
func (r *PostgresRepository) Rotate(ctx context.Context, name string, fn func(current *domain.Key) (*domain.Key, error)) (*domain.Key, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("signing key rotate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FOR UPDATE locks nothing when the row does not exist yet, so
	// first-time creation serializes on a transaction-scoped advisory lock.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
		return nil, fmt.Errorf("signing key rotate: %w", err)
	}

	current := &domain.Key{Name: name}
	err = tx.QueryRowContext(ctx, `
		SELECT key_value, created_at
		FROM signing_keys
		WHERE key_name = $1
		FOR UPDATE
	`, name).Scan(&current.Value, &current.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
	} else if err != nil {
		return nil, fmt.Errorf("signing key rotate: %w", err)
	}

	replacement, err := fn(current)
	if err != nil {
		return nil, err
	}
	if replacement != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO signing_keys (key_name, key_value, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key_name)
			DO UPDATE SET key_value = EXCLUDED.key_value, created_at = EXCLUDED.created_at
		`, name, replacement.Value, replacement.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("signing key rotate: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("signing key rotate: %w", err)
	}

	if replacement != nil {
		return replacement, nil
	}
	return current, nil
}
