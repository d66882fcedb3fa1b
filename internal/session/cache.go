// Package session implements the session cache (C2): a token→Session
// mapping with TTL-bounded entries. Two interchangeable backends are
// provided: Memory (single-process) and Redis (namespaced, remote).
//
// The cache is a read-through collaborator: callers never mutate cached
// session content, only the (token → session) mapping. Cache errors never
// cause request failure — a failed Get is a miss, a failed Put is logged and
// the caller proceeds with the freshly resolved session.
package session

import (
	"context"
	"time"

	"github.com/authava/authgate/internal/rules"
)

// Entry is a cached principal with its observable window.
type Entry struct {
	Session   rules.Session `json:"session"`
	StoredAt  time.Time     `json:"stored_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Cache is the session cache contract (C2). Implementations must never
// return an entry once time.Now() has passed ExpiresAt.
type Cache interface {
	// Get returns the cached session for token, or ok=false if absent or
	// expired. Get must never return a stale value.
	Get(ctx context.Context, token string) (rules.Session, bool, error)
	// Put upserts the (token, session) mapping with a positive ttl.
	Put(ctx context.Context, token string, s rules.Session, ttl time.Duration) error
	// Evict removes the mapping for token. Evicting a missing key is success.
	Evict(ctx context.Context, token string) error
	// Close releases any resources held by the backend.
	Close(ctx context.Context) error
}

// keyNamespace prefixes every cache key so a shared Redis instance can be
// used for more than just authgate session data.
const keyNamespace = "authgate:session:"

func namespacedKey(token string) string {
	return keyNamespace + token
}
