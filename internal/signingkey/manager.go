// Package signingkey owns access to symmetric signing keys: a fixed value, a
// caller-supplied getter, or a store-backed key that the manager generates,
// caches, and (optionally) rotates on an interval. Rotation is serialized
// across processes by a row lock on the key record; there is no in-memory
// coordination beyond the per-process cache.
package signingkey

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"session-control-plane/core/internal/security"
	"session-control-plane/core/internal/signingkey/domain"
)

// ErrConfiguration is returned when no key can be obtained with the manager's
// configuration (e.g. an empty static value or a failing getter with no
// fallback).
var ErrConfiguration = errors.New("signing key configuration error")

// Repository is the minimal signing-key persistence needed by the manager.
type Repository interface {
	Get(ctx context.Context, name string) (*domain.Key, error)
	Rotate(ctx context.Context, name string, fn func(current *domain.Key) (*domain.Key, error)) (*domain.Key, error)
}

// GetterFunc supplies a signing key from the caller on every use.
type GetterFunc func(ctx context.Context) (string, error)

// Manager resolves the current signing key. All methods are safe for
// concurrent use.
type Manager struct {
	staticValue string
	getter      GetterFunc

	repo           Repository
	keyName        string
	updateInterval time.Duration // 0 means the key never rotates

	mu     sync.Mutex
	cached *domain.Key

	now func() time.Time
}

// NewStatic returns a manager that always yields value.
func NewStatic(value string) *Manager {
	return &Manager{staticValue: value, now: time.Now}
}

// NewFromGetter returns a manager that asks get for the key on every call.
func NewFromGetter(get GetterFunc) *Manager {
	return &Manager{getter: get, now: time.Now}
}

// NewStoreBacked returns a manager that generates and persists the key named
// keyName through repo. With updateInterval zero the key is created once and
// never rotates; otherwise the manager rotates it once the cached key's age
// reaches updateInterval, adopting a newer key if another process rotated
// first.
func NewStoreBacked(repo Repository, keyName string, updateInterval time.Duration) *Manager {
	return &Manager{repo: repo, keyName: keyName, updateInterval: updateInterval, now: time.Now}
}

// GetKey returns the signing key to use right now.
//
// For a store-backed manager a rotation failure does not invalidate the
// cached key: the stale key keeps being served and the store error is
// surfaced only when there is no cached key at all.
func (m *Manager) GetKey(ctx context.Context) (string, error) {
	switch {
	case m.getter != nil:
		value, err := m.getter(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: key getter failed: %v", ErrConfiguration, err)
		}
		if value == "" {
			return "", fmt.Errorf("%w: key getter returned an empty key", ErrConfiguration)
		}
		return value, nil
	case m.repo != nil:
		return m.storeBackedKey(ctx)
	default:
		if m.staticValue == "" {
			return "", fmt.Errorf("%w: no static key material", ErrConfiguration)
		}
		return m.staticValue, nil
	}
}

func (m *Manager) storeBackedKey(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if m.cached != nil && !m.expired(m.cached, now) {
		return m.cached.Value, nil
	}

	// On a cold cache a plain read avoids taking the rotation lock when
	// another process already holds a fresh key.
	if m.cached == nil {
		if key, err := m.repo.Get(ctx, m.keyName); err == nil && key != nil && !m.expired(key, now) {
			m.cached = key
			return key.Value, nil
		}
	}

	key, err := m.repo.Rotate(ctx, m.keyName, func(current *domain.Key) (*domain.Key, error) {
		if current != nil && !m.expired(current, now) {
			// Another process rotated first; adopt its key instead of
			// generating a competing one.
			return nil, nil
		}
		value, err := security.GenerateSigningKey()
		if err != nil {
			return nil, err
		}
		return &domain.Key{Name: m.keyName, Value: value, CreatedAt: now}, nil
	})
	if err != nil {
		if m.cached != nil {
			return m.cached.Value, nil
		}
		return "", fmt.Errorf("signing key load: %w", err)
	}
	if key == nil {
		return "", fmt.Errorf("%w: signing key store returned no key", ErrConfiguration)
	}
	m.cached = key
	return key.Value, nil
}

func (m *Manager) expired(key *domain.Key, now time.Time) bool {
	if m.updateInterval <= 0 {
		return false
	}
	return now.Sub(key.CreatedAt) >= m.updateInterval
}
