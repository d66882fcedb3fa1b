package match

import (
	"testing"

	"github.com/authava/authgate/internal/rules"
)

func mustTable(t *testing.T, input []rules.Rule) rules.Table {
	t.Helper()
	table, err := rules.NewTable(input)
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	return table
}

func req() rules.Requirement {
	return rules.Requirement{Roles: []string{"user"}}
}

func TestMatchLiteralHostAndPath(t *testing.T) {
	table := mustTable(t, []rules.Rule{{HostPattern: "app.example.com", PathPattern: "/api", Requirement: req()}})

	if _, ok := Match(table, "app.example.com", "/api"); !ok {
		t.Fatal("expected literal match")
	}
	if _, ok := Match(table, "other.example.com", "/api"); ok {
		t.Fatal("expected no match for different host")
	}
	if _, ok := Match(table, "app.example.com", "/other"); ok {
		t.Fatal("expected no match for different path")
	}
}

func TestMatchHostWildcard(t *testing.T) {
	table := mustTable(t, []rules.Rule{{HostPattern: "*.example.com", PathPattern: "/", Requirement: req()}})

	if _, ok := Match(table, "app.example.com", "/"); !ok {
		t.Fatal("expected subdomain to match wildcard")
	}
	if _, ok := Match(table, "example.com", "/"); ok {
		t.Fatal("expected bare suffix not to match wildcard")
	}
	if _, ok := Match(table, "notexample.com", "/"); ok {
		t.Fatal("expected non-dot-separated suffix not to match")
	}
}

func TestMatchPathPrefixWildcard(t *testing.T) {
	table := mustTable(t, []rules.Rule{{HostPattern: "example.com", PathPattern: "/api/*", Requirement: req()}})

	if _, ok := Match(table, "example.com", "/api/users"); !ok {
		t.Fatal("expected prefix match")
	}
	if _, ok := Match(table, "example.com", "/apiother"); ok {
		t.Fatal("expected no match without matching prefix segment")
	}
}

func TestMatchFirstRuleWinsOnTie(t *testing.T) {
	first := rules.Rule{HostPattern: "example.com", PathPattern: "/*", Requirement: rules.Requirement{Roles: []string{"first"}}}
	second := rules.Rule{HostPattern: "*.com", PathPattern: "/", Requirement: rules.Requirement{Roles: []string{"second"}}}
	table := mustTable(t, []rules.Rule{first, second})

	rule, ok := Match(table, "example.com", "/")
	if !ok {
		t.Fatal("expected a match")
	}
	if rule.Requirement.Roles[0] != "first" {
		t.Fatalf("expected table-order tie-break to pick first rule, got %v", rule.Requirement.Roles)
	}
}

func TestMatchNoRuleMatches(t *testing.T) {
	table := mustTable(t, []rules.Rule{{HostPattern: "example.com", PathPattern: "/", Requirement: req()}})
	if _, ok := Match(table, "unrelated.com", "/somewhere"); ok {
		t.Fatal("expected no match")
	}
}
