package session

import (
	"context"
	"sync"
	"time"

	"github.com/authava/authgate/internal/rules"
)

// memory is the single-process Cache implementation: a mutex-guarded map
// with lazy expiry on access. It does not grow unboundedly under normal
// operation because every Get on a stale key deletes it and every Put
// sweeps out all expired entries.
type memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory builds the in-process session cache.
func NewMemory() Cache {
	return &memory{entries: make(map[string]Entry)}
}

func (m *memory) Get(_ context.Context, token string) (rules.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[token]
	if !ok {
		return rules.Session{}, false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(m.entries, token)
		return rules.Session{}, false, nil
	}
	return entry.Session, true, nil
}

func (m *memory) Put(_ context.Context, token string, s rules.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if now.After(e.ExpiresAt) {
			delete(m.entries, k)
		}
	}
	m.entries[token] = Entry{Session: s, StoredAt: now, ExpiresAt: now.Add(ttl)}
	return nil
}

func (m *memory) Evict(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}

func (m *memory) Close(_ context.Context) error { return nil }
