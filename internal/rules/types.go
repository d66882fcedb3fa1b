// Package rules holds the authgate data model: rules, requirements, and the
// principal shape returned by the identity service.
package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Rule is a (host-pattern, path-pattern, requirement) triple. ID is only
// meaningful for rules backed by a mutable store; file-backed rules are
// addressed by table position.
type Rule struct {
	ID          int64       `json:"id,omitempty"`
	HostPattern string      `json:"host"`
	PathPattern string      `json:"path"`
	Requirement Requirement `json:"require"`
}

// Requirement is a conjunction of four optional clauses. A principal
// satisfies a Requirement iff it satisfies every present clause.
type Requirement struct {
	Roles       []string      `json:"roles,omitempty"`
	Permissions []string      `json:"permissions,omitempty"`
	Scopes      []ScopeDemand `json:"scopes,omitempty"`
	Teams       []TeamDemand  `json:"teams,omitempty"`
}

// Empty reports whether none of the four clauses carry any content.
func (r Requirement) Empty() bool {
	return len(r.Roles) == 0 && len(r.Permissions) == 0 && len(r.Scopes) == 0 && len(r.Teams) == 0
}

// ScopeDemand is a requested (resource_type, action, optional resource_id).
type ScopeDemand struct {
	ResourceType string  `json:"resource_type"`
	Action       string  `json:"action"`
	ResourceID   *string `json:"resource_id,omitempty"`
}

// ScopeGrant is a held (resource_type, resource_id, action).
type ScopeGrant struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Action       string `json:"action"`
}

// Matches reports whether g satisfies demand d: equal resource_type and
// action, and either d has no resource_id or it equals g's.
func (g ScopeGrant) Matches(d ScopeDemand) bool {
	if g.ResourceType != d.ResourceType || g.Action != d.Action {
		return false
	}
	if d.ResourceID == nil {
		return true
	}
	return g.ResourceID == *d.ResourceID
}

// TeamDemand names a team (by id or name, either suffices) and optionally an
// inner scope requirement evaluated against that team's own grants.
type TeamDemand struct {
	TeamID   *string       `json:"team_id,omitempty"`
	TeamName *string       `json:"team_name,omitempty"`
	Scopes   []ScopeDemand `json:"scopes,omitempty"`
}

// Satisfies reports whether team t satisfies demand d.
func (d TeamDemand) Satisfies(t Team) bool {
	idMatch := d.TeamID != nil && *d.TeamID == t.ID
	nameMatch := d.TeamName != nil && *d.TeamName == t.Name
	if d.TeamID == nil && d.TeamName == nil {
		return false
	}
	if !idMatch && !nameMatch {
		return false
	}
	for _, demand := range d.Scopes {
		if !anyGrantMatches(t.Scopes, demand) {
			return false
		}
	}
	return true
}

func anyGrantMatches(grants []ScopeGrant, demand ScopeDemand) bool {
	for _, g := range grants {
		if g.Matches(demand) {
			return true
		}
	}
	return false
}

// Team is a team membership entry on a principal.
type Team struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	IsOwner bool         `json:"is_owner"`
	Scopes  []ScopeGrant `json:"scopes"`
}

// User is the identity payload nested inside a Session.
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Teams       []Team   `json:"teams"`
}

// Session is the principal returned by the identity service.
type Session struct {
	User        User    `json:"user"`
	TenantID    string  `json:"tenant_id"`
	Authority   string  `json:"authority"`
	RedirectURL *string `json:"redirect_url,omitempty"`
}

// Table is an ordered, immutable snapshot of the rule set. Order is
// provider-defined and must be preserved across reloads; the first rule
// whose host and path both match a request wins.
type Table struct {
	Rules []Rule
}

// ErrEmptyRequirement is returned when a rule's Requirement has no clauses.
var ErrEmptyRequirement = errors.New("rules: requirement must have at least one non-empty clause")

// Validate checks invariants 1-3 from the data model: a rule with an empty
// requirement is rejected, path wildcards only trail, host wildcards are
// exactly "*.X".
func (r Rule) Validate() error {
	if r.Requirement.Empty() {
		return fmt.Errorf("rule %q%q: %w", r.HostPattern, r.PathPattern, ErrEmptyRequirement)
	}
	if err := validateHostPattern(r.HostPattern); err != nil {
		return fmt.Errorf("rule %q%q: %w", r.HostPattern, r.PathPattern, err)
	}
	if err := validatePathPattern(r.PathPattern); err != nil {
		return fmt.Errorf("rule %q%q: %w", r.HostPattern, r.PathPattern, err)
	}
	return nil
}

func validateHostPattern(pattern string) error {
	if pattern == "" {
		return errors.New("host pattern must not be empty")
	}
	if !strings.Contains(pattern, "*") {
		return nil
	}
	if !strings.HasPrefix(pattern, "*.") || len(pattern) <= 2 {
		return fmt.Errorf("host pattern %q: wildcard must be exactly \"*.X\" for non-empty X", pattern)
	}
	if strings.Count(pattern, "*") != 1 {
		return fmt.Errorf("host pattern %q: at most one wildcard is allowed", pattern)
	}
	return nil
}

func validatePathPattern(pattern string) error {
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("path pattern %q: must be an absolute path", pattern)
	}
	if !strings.Contains(pattern, "*") {
		return nil
	}
	if strings.Count(pattern, "*") != 1 || !strings.HasSuffix(pattern, "*") {
		return fmt.Errorf("path pattern %q: wildcard must appear exactly once, as the final character", pattern)
	}
	return nil
}

// NewTable validates every rule and returns an immutable table, preserving
// input order.
func NewTable(input []Rule) (Table, error) {
	if len(input) == 0 {
		return Table{}, errors.New("rules: table must contain at least one rule")
	}
	out := make([]Rule, len(input))
	for i, r := range input {
		if err := r.Validate(); err != nil {
			return Table{}, err
		}
		out[i] = r
	}
	return Table{Rules: out}, nil
}
