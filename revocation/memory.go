package revocation

import (
	"context"
	"sync"
	"time"
)

// purgeEvery bounds how many revocations may be added between expiry sweeps.
const purgeEvery = 256

// Memory is an in-process revocation set. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	adds    int
	now     func() time.Time
}

// NewMemory returns an empty set. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries: make(map[string]time.Time),
		now:     now,
	}
}

// Revoke records tokenID until expiresAt. Already expired tokens are ignored.
func (m *Memory) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := m.add(ctx, tokenID, expiresAt, false)
	return err
}

// Consume revokes tokenID and reports whether it was not already revoked. The
// check and the insert happen under one lock.
func (m *Memory) Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	return m.add(ctx, tokenID, expiresAt, true)
}

func (m *Memory) add(ctx context.Context, tokenID string, expiresAt time.Time, exclusive bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if tokenID == "" {
		return false, ErrEmptyTokenID
	}
	now := m.now()
	if !expiresAt.After(now) {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.entries[tokenID]
	live := ok && prev.After(now)
	if exclusive && live {
		return false, nil
	}
	if !ok || expiresAt.After(prev) {
		m.entries[tokenID] = expiresAt
	}
	m.adds++
	if m.adds >= purgeEvery {
		m.purgeLocked(now)
		m.adds = 0
	}
	return !live, nil
}

// IsRevoked reports whether tokenID is revoked and not yet expired.
func (m *Memory) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	expiresAt, ok := m.entries[tokenID]
	m.mu.RUnlock()

	return ok && expiresAt.After(m.now()), nil
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Purge drops expired entries.
func (m *Memory) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(m.now())
}

func (m *Memory) purgeLocked(now time.Time) {
	for id, expiresAt := range m.entries {
		if !expiresAt.After(now) {
			delete(m.entries, id)
		}
	}
}
