package repository

import (
	"context"

	"session-control-plane/core/internal/signingkey/domain"
)

// Repository defines persistence for signing keys.
type Repository interface {
	// Get returns the key row for name, or nil if none exists. No lock is taken.
	Get(ctx context.Context, name string) (*domain.Key, error)

	// Rotate runs fn inside a transaction that holds a row lock on the key
	// record for name. fn receives the locked row (nil when absent) and
	// returns a replacement row to persist, or nil to keep the current one.
	// Rotate returns the row that is current after the transaction commits.
	Rotate(ctx context.Context, name string, fn func(current *domain.Key) (*domain.Key, error)) (*domain.Key, error)
}
