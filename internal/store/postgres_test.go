package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authava/authgate/internal/rules"
)

// These exercise PostgresStore against a real database and are skipped
// unless AUTHGATE_TEST_DATABASE_URL points at one — there is no in-process
// Postgres fake in the dependency set, unlike the memory-backed session
// cache tests.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("AUTHGATE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTHGATE_TEST_DATABASE_URL not set, skipping postgres store test")
	}
	return dsn
}

func TestPostgresStoreRuleCRUD(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	rule := rules.Rule{HostPattern: "app.example.com", PathPattern: "/*", Requirement: rules.Requirement{Roles: []string{"user"}}}
	created, err := s.CreateRule(ctx, rule)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	fetched, err := s.GetRule(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.HostPattern, fetched.HostPattern)

	updated := fetched
	updated.Requirement = rules.Requirement{Roles: []string{"admin"}}
	result, err := s.UpdateRule(ctx, created.ID, updated)
	require.NoError(t, err)
	require.Equal(t, "admin", result.Requirement.Roles[0])

	require.NoError(t, s.DeleteRule(ctx, created.ID))

	_, err = s.GetRule(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreCreateRuleRejectsInvalid(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CreateRule(ctx, rules.Rule{HostPattern: "example.com", PathPattern: "/"})
	require.ErrorIs(t, err, ErrInvalid)
}
