// Package store implements the rule store (C1): the collaborator that
// supplies the current rule table and reloads it on demand. Two providers
// are available — JSON file (internal/store/json.go) and Postgres
// (internal/store/postgres.go) — behind the single Store contract so the
// pipeline never knows which one is in play.
package store

import (
	"context"
	"errors"

	"github.com/authava/authgate/internal/rules"
)

// Bundle is everything the pipeline needs after a successful load: the
// identity endpoint, the login redirect target, the request-cookie name to
// read tokens from, and the validated rule table.
type Bundle struct {
	SessionURL    string
	LoginRedirect string
	CookieName    string
	Table         rules.Table
}

// Store supplies the current rule table and reloads it on demand (C1). A
// reload failure must leave the previously loaded bundle in place — Store
// implementations are not required to enforce that themselves; callers
// (internal/pipeline) retain the last good Bundle and only swap it in on a
// successful Load.
type Store interface {
	Load(ctx context.Context) (Bundle, error)
}

// Mutable is implemented by stores that back the administrative CRUD
// surface (A5/C7) — currently only the Postgres provider. The JSON file
// provider is deliberately not Mutable: administrative writes have nowhere
// durable to go without reimplementing file-locking semantics the spec does
// not ask for.
type Mutable interface {
	Store
	ListRules(ctx context.Context) ([]rules.Rule, error)
	GetRule(ctx context.Context, id int64) (rules.Rule, error)
	CreateRule(ctx context.Context, r rules.Rule) (rules.Rule, error)
	UpdateRule(ctx context.Context, id int64, r rules.Rule) (rules.Rule, error)
	DeleteRule(ctx context.Context, id int64) error
}

// ErrNotFound is returned by Mutable lookups for an unknown rule id.
var ErrNotFound = errors.New("store: rule not found")

// ErrInvalid is returned when a caller-supplied rule fails validation.
var ErrInvalid = errors.New("store: invalid rule")
