// Package policy implements the policy evaluator (C5): a pure function
// deciding whether a resolved principal satisfies a matched rule's
// requirement.
package policy

import (
	"fmt"

	"github.com/authava/authgate/internal/rules"
)

// Outcome classifies the result of evaluating a Requirement against a Session.
type Outcome int

const (
	// Authorized means every present clause was satisfied.
	Authorized Outcome = iota
	// Unauthorized means the principal failed a clause cleanly; Reason names it.
	Unauthorized
	// Error means a clause could not be evaluated at all (shape error); the
	// pipeline classifies this as an internal error, never as allow.
	Error
)

// Decision is the result of Evaluate.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Evaluate checks session against requirement in the fixed order roles,
// permissions, scopes, teams. The first failing clause wins and is reported;
// order does not affect the final outcome, only which reason is surfaced.
func Evaluate(session rules.Session, requirement rules.Requirement) Decision {
	if len(requirement.Roles) > 0 {
		if !hasAny(session.User.Roles, requirement.Roles) {
			return Decision{Outcome: Unauthorized, Reason: "missing required role"}
		}
	}

	if len(requirement.Permissions) > 0 {
		if !hasAny(session.User.Permissions, requirement.Permissions) {
			return Decision{Outcome: Unauthorized, Reason: "missing required permission"}
		}
	}

	if len(requirement.Scopes) > 0 {
		for _, demand := range requirement.Scopes {
			if err := validateDemand(demand); err != nil {
				return Decision{Outcome: Error, Reason: err.Error()}
			}
		}
		grants := allGrants(session.User.Teams)
		for _, demand := range requirement.Scopes {
			if !anyGrantMatches(grants, demand) {
				return Decision{Outcome: Unauthorized, Reason: fmt.Sprintf("missing scope %s:%s", demand.ResourceType, demand.Action)}
			}
		}
	}

	if len(requirement.Teams) > 0 {
		for _, demand := range requirement.Teams {
			if demand.TeamID == nil && demand.TeamName == nil {
				return Decision{Outcome: Error, Reason: "team demand missing both team_id and team_name"}
			}
			for _, inner := range demand.Scopes {
				if err := validateDemand(inner); err != nil {
					return Decision{Outcome: Error, Reason: err.Error()}
				}
			}
		}
		satisfied := false
		for _, demand := range requirement.Teams {
			for _, team := range session.User.Teams {
				if demand.Satisfies(team) {
					satisfied = true
					break
				}
			}
			if satisfied {
				break
			}
		}
		if !satisfied {
			return Decision{Outcome: Unauthorized, Reason: "no team membership satisfies required team demand"}
		}
	}

	return Decision{Outcome: Authorized}
}

func validateDemand(d rules.ScopeDemand) error {
	if d.ResourceType == "" || d.Action == "" {
		return fmt.Errorf("policy: malformed scope demand: resource_type and action are required")
	}
	return nil
}

func hasAny(have, want []string) bool {
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

func allGrants(teams []rules.Team) []rules.ScopeGrant {
	var out []rules.ScopeGrant
	for _, t := range teams {
		out = append(out, t.Scopes...)
	}
	return out
}

func anyGrantMatches(grants []rules.ScopeGrant, demand rules.ScopeDemand) bool {
	for _, g := range grants {
		if g.Matches(demand) {
			return true
		}
	}
	return false
}
