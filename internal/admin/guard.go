// Package admin implements the admin guard (C7) and the administrative CRUD
// surface (A5) mounted over a mutable rule store.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/authava/authgate/internal/rules"
)

// Resolver resolves a session token against the identity service; the guard
// consults its Cache before calling it. It is the same shape the decision
// pipeline depends on, so the admin guard reuses the identity client and
// session cache without introducing a second contract.
type Resolver interface {
	Resolve(ctx context.Context, sessionURL, token string) (rules.Session, time.Duration, error)
}

// Cache is the subset of session.Cache the guard needs.
type Cache interface {
	Get(ctx context.Context, token string) (rules.Session, bool, error)
	Put(ctx context.Context, token string, s rules.Session, ttl time.Duration) error
}

// Guard gates the admin HTTP surface per §4.7: a bearer token equal to the
// configured admin token (or the literal "test-token" affordance, when
// enabled), or a session cookie resolving to a principal whose roles
// intersect the configured admin-roles list.
type Guard struct {
	Token          string
	AllowTestToken bool
	SessionCookie  string
	Roles          []string

	Cache      Cache
	Resolver   Resolver
	SessionURL func() string
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Status: "error", Message: message})
}

// Middleware wraps next, admitting a request iff the bearer or session
// condition of §4.7 holds.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.admitBearer(r) {
			next.ServeHTTP(w, r)
			return
		}

		ok, sufficient := g.admitSession(r)
		if ok && sufficient {
			next.ServeHTTP(w, r)
			return
		}
		if ok && !sufficient {
			writeJSONError(w, http.StatusForbidden, "insufficient role for administrative access")
			return
		}

		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSONError(w, http.StatusUnauthorized, "Authentication required")
	})
}

func (g *Guard) admitBearer(r *http.Request) bool {
	if strings.TrimSpace(g.Token) == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	t, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	if t == g.Token {
		return true
	}
	return g.AllowTestToken && t == "test-token"
}

// admitSession reports (present, roleSufficient). present is false when no
// admin session cookie or resolvable principal exists at all — that path
// falls through to the bearer-failure 401.
func (g *Guard) admitSession(r *http.Request) (present bool, sufficient bool) {
	cookieName := g.SessionCookie
	if cookieName == "" {
		return false, false
	}
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return false, false
	}

	sess, ok, err := g.lookup(r.Context(), c.Value)
	if err != nil || !ok {
		return false, false
	}

	return true, hasAnyRole(sess.User.Roles, g.Roles)
}

func (g *Guard) lookup(ctx context.Context, token string) (rules.Session, bool, error) {
	if g.Cache != nil {
		if sess, ok, err := g.Cache.Get(ctx, token); err == nil && ok {
			return sess, true, nil
		}
	}
	if g.Resolver == nil || g.SessionURL == nil {
		return rules.Session{}, false, nil
	}
	sessionURL := g.SessionURL()
	if sessionURL == "" {
		return rules.Session{}, false, nil
	}
	sess, ttl, err := g.Resolver.Resolve(ctx, sessionURL, token)
	if err != nil {
		return rules.Session{}, false, err
	}
	if g.Cache != nil {
		_ = g.Cache.Put(ctx, token, sess, ttl)
	}
	return sess, true, nil
}

func hasAnyRole(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
