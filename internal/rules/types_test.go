package rules

import "testing"

func strptr(s string) *string { return &s }

func TestRuleValidateRejectsEmptyRequirement(t *testing.T) {
	r := Rule{HostPattern: "example.com", PathPattern: "/"}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for empty requirement")
	}
}

func TestRuleValidateHostWildcard(t *testing.T) {
	cases := []struct {
		pattern string
		wantErr bool
	}{
		{"example.com", false},
		{"*.example.com", false},
		{"*.", true},
		{"a.*.com", true},
		{"*example.com", true},
		{"", true},
	}
	for _, c := range cases {
		r := Rule{HostPattern: c.pattern, PathPattern: "/", Requirement: Requirement{Roles: []string{"admin"}}}
		err := r.Validate()
		if c.wantErr && err == nil {
			t.Errorf("pattern %q: expected error, got none", c.pattern)
		}
		if !c.wantErr && err != nil {
			t.Errorf("pattern %q: unexpected error: %v", c.pattern, err)
		}
	}
}

func TestRuleValidatePathWildcard(t *testing.T) {
	cases := []struct {
		pattern string
		wantErr bool
	}{
		{"/api", false},
		{"/api/*", false},
		{"/*api", true},
		{"api", true},
		{"/a*b*", true},
		{"", true},
	}
	for _, c := range cases {
		r := Rule{HostPattern: "example.com", PathPattern: c.pattern, Requirement: Requirement{Roles: []string{"admin"}}}
		err := r.Validate()
		if c.wantErr && err == nil {
			t.Errorf("pattern %q: expected error, got none", c.pattern)
		}
		if !c.wantErr && err != nil {
			t.Errorf("pattern %q: unexpected error: %v", c.pattern, err)
		}
	}
}

func TestNewTableRejectsEmpty(t *testing.T) {
	if _, err := NewTable(nil); err == nil {
		t.Fatal("expected error for empty table")
	}
}

func TestNewTablePreservesOrder(t *testing.T) {
	input := []Rule{
		{HostPattern: "a.com", PathPattern: "/", Requirement: Requirement{Roles: []string{"x"}}},
		{HostPattern: "b.com", PathPattern: "/", Requirement: Requirement{Roles: []string{"y"}}},
	}
	table, err := NewTable(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Rules[0].HostPattern != "a.com" || table.Rules[1].HostPattern != "b.com" {
		t.Fatal("table did not preserve input order")
	}
}

func TestScopeGrantMatches(t *testing.T) {
	g := ScopeGrant{ResourceType: "project", ResourceID: "p1", Action: "read"}

	if !(g.Matches(ScopeDemand{ResourceType: "project", Action: "read"})) {
		t.Error("expected match with no resource_id constraint")
	}
	if !(g.Matches(ScopeDemand{ResourceType: "project", Action: "read", ResourceID: strptr("p1")})) {
		t.Error("expected match with matching resource_id")
	}
	if g.Matches(ScopeDemand{ResourceType: "project", Action: "read", ResourceID: strptr("p2")}) {
		t.Error("expected no match with differing resource_id")
	}
	if g.Matches(ScopeDemand{ResourceType: "project", Action: "write"}) {
		t.Error("expected no match with differing action")
	}
}

func TestTeamDemandSatisfies(t *testing.T) {
	team := Team{ID: "t1", Name: "eng", Scopes: []ScopeGrant{{ResourceType: "repo", ResourceID: "r1", Action: "write"}}}

	d := TeamDemand{TeamID: strptr("t1")}
	if !d.Satisfies(team) {
		t.Error("expected team-id-only demand to match by id")
	}

	d = TeamDemand{TeamName: strptr("eng")}
	if !d.Satisfies(team) {
		t.Error("expected team-name-only demand to match by name")
	}

	d = TeamDemand{TeamID: strptr("nope"), TeamName: strptr("nope")}
	if d.Satisfies(team) {
		t.Error("expected mismatched id and name to fail")
	}

	d = TeamDemand{TeamID: strptr("t1"), Scopes: []ScopeDemand{{ResourceType: "repo", Action: "write"}}}
	if !d.Satisfies(team) {
		t.Error("expected inner scope demand satisfied by team's own grants")
	}

	d = TeamDemand{TeamID: strptr("t1"), Scopes: []ScopeDemand{{ResourceType: "repo", Action: "admin"}}}
	if d.Satisfies(team) {
		t.Error("expected inner scope demand not satisfied")
	}

	d = TeamDemand{}
	if d.Satisfies(team) {
		t.Error("expected demand with neither id nor name to never match")
	}
}

func TestRequirementEmpty(t *testing.T) {
	if !(Requirement{}).Empty() {
		t.Fatal("expected zero-value Requirement to be empty")
	}
	if (Requirement{Roles: []string{"x"}}).Empty() {
		t.Fatal("expected non-empty Requirement to report not empty")
	}
}
