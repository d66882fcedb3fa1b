package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/authava/authgate/internal/rules"
)

// ruleRow is the Postgres-backed representation of a rules.Rule, grounded
// on the pack's bun-ORM repository convention (one row struct, one bun.DB,
// plain SQL-shaped methods).
type ruleRow struct {
	bun.BaseModel `bun:"table:rules,alias:r"`

	ID          int64  `bun:"id,pk,autoincrement"`
	HostPattern string `bun:"host_pattern,notnull"`
	PathPattern string `bun:"path_pattern,notnull"`
	Requirement []byte `bun:"requirement,type:jsonb,notnull"`
}

func (row ruleRow) toRule() (rules.Rule, error) {
	var req rules.Requirement
	if err := json.Unmarshal(row.Requirement, &req); err != nil {
		return rules.Rule{}, fmt.Errorf("store: decode requirement for rule %d: %w", row.ID, err)
	}
	return rules.Rule{ID: row.ID, HostPattern: row.HostPattern, PathPattern: row.PathPattern, Requirement: req}, nil
}

func rowFromRule(r rules.Rule) (ruleRow, error) {
	payload, err := json.Marshal(r.Requirement)
	if err != nil {
		return ruleRow{}, fmt.Errorf("store: encode requirement: %w", err)
	}
	return ruleRow{ID: r.ID, HostPattern: r.HostPattern, PathPattern: r.PathPattern, Requirement: payload}, nil
}

// authConfigRow is the single-row table carrying the identity endpoint,
// login redirect target, and cookie name for a Postgres-backed deployment —
// there is no environment variable for login_redirect (§6), so it must live
// alongside the rules it governs.
type authConfigRow struct {
	bun.BaseModel `bun:"table:auth_config,alias:a"`

	ID            int64  `bun:"id,pk"`
	SessionURL    string `bun:"session_url,notnull"`
	LoginRedirect string `bun:"login_redirect,notnull"`
	CookieName    string `bun:"cookie_name,notnull"`
}

// PostgresStore is the mutable rule store backend (C1), backed by
// uptrace/bun over bun's own pgdriver database/sql driver.
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore opens a connection pool against dsn and verifies it with
// a ping before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: postgres ping: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Load selects the singleton auth_config row and every rule row, ordered by
// id so table order is preserved across reloads (§3).
func (s *PostgresStore) Load(ctx context.Context) (Bundle, error) {
	var auth authConfigRow
	if err := s.db.NewSelect().Model(&auth).Where("id = 1").Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bundle{}, errors.New("store: postgres: auth_config row missing")
		}
		return Bundle{}, fmt.Errorf("store: postgres: load auth_config: %w", err)
	}
	if auth.SessionURL == "" {
		return Bundle{}, errors.New("store: postgres: auth_config.session_url must not be empty")
	}
	if auth.LoginRedirect == "" {
		return Bundle{}, errors.New("store: postgres: auth_config.login_redirect must not be empty")
	}

	var rows []ruleRow
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return Bundle{}, fmt.Errorf("store: postgres: load rules: %w", err)
	}

	ruleset := make([]rules.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return Bundle{}, err
		}
		ruleset = append(ruleset, rule)
	}
	table, err := rules.NewTable(ruleset)
	if err != nil {
		return Bundle{}, err
	}

	cookieName := auth.CookieName
	if cookieName == "" {
		cookieName = "session"
	}

	return Bundle{
		SessionURL:    auth.SessionURL,
		LoginRedirect: auth.LoginRedirect,
		CookieName:    cookieName,
		Table:         table,
	}, nil
}

func (s *PostgresStore) ListRules(ctx context.Context) ([]rules.Rule, error) {
	var rows []ruleRow
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("store: postgres: list rules: %w", err)
	}
	out := make([]rules.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (s *PostgresStore) GetRule(ctx context.Context, id int64) (rules.Rule, error) {
	row := new(ruleRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return rules.Rule{}, ErrNotFound
	}
	if err != nil {
		return rules.Rule{}, fmt.Errorf("store: postgres: get rule %d: %w", id, err)
	}
	return row.toRule()
}

func (s *PostgresStore) CreateRule(ctx context.Context, r rules.Rule) (rules.Rule, error) {
	if err := r.Validate(); err != nil {
		return rules.Rule{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	row, err := rowFromRule(r)
	if err != nil {
		return rules.Rule{}, err
	}
	if _, err := s.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return rules.Rule{}, fmt.Errorf("store: postgres: create rule: %w", err)
	}
	return row.toRule()
}

func (s *PostgresStore) UpdateRule(ctx context.Context, id int64, r rules.Rule) (rules.Rule, error) {
	if err := r.Validate(); err != nil {
		return rules.Rule{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	r.ID = id
	row, err := rowFromRule(r)
	if err != nil {
		return rules.Rule{}, err
	}
	res, err := s.db.NewUpdate().Model(&row).WherePK().Exec(ctx)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("store: postgres: update rule %d: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return rules.Rule{}, ErrNotFound
	}
	return row.toRule()
}

func (s *PostgresStore) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*ruleRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: postgres: delete rule %d: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Mutable = (*PostgresStore)(nil)
