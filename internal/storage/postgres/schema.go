package postgres

import (
	"context"
	"fmt"
)

// Schema returns the DDL for every table, in dependency order.
func (s *Store) Schema() []string {
	t := s.tables
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id              TEXT PRIMARY KEY,
	client_id       TEXT NOT NULL,
	name            TEXT NOT NULL,
	domain          TEXT NOT NULL DEFAULT '',
	ticker          TEXT NOT NULL DEFAULT '',
	industry        TEXT NOT NULL DEFAULT '',
	employees       INTEGER NOT NULL DEFAULT 0,
	country         TEXT NOT NULL DEFAULT '',
	linkedin_url    TEXT NOT NULL DEFAULT '',
	blog_url        TEXT NOT NULL DEFAULT '',
	active          BOOLEAN NOT NULL DEFAULT TRUE,
	last_scanned_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t.Companies),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_client_idx ON %s (client_id, active)`, t.Companies, t.Companies),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	client_id  TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	config     JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t.Strategies),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id             TEXT PRIMARY KEY,
	client_id      TEXT NOT NULL,
	company_id     TEXT NOT NULL,
	company_name   TEXT NOT NULL,
	fingerprint    TEXT NOT NULL,
	signal         JSONB NOT NULL,
	classification JSONB NOT NULL,
	deal_score     INTEGER NOT NULL,
	priority       TEXT NOT NULL,
	contacts       JSONB NOT NULL DEFAULT '[]'::jsonb,
	draft          JSONB,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (client_id, fingerprint)
)`, t.Leads),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_score_idx ON %s (client_id, deal_score DESC)`, t.Leads, t.Leads),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	trigger_src TEXT NOT NULL,
	client_id   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	counters    JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_text  TEXT NOT NULL DEFAULT ''
)`, t.Runs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id            TEXT NOT NULL,
	client_id         TEXT NOT NULL,
	last_update       TIMESTAMPTZ NOT NULL,
	companies_scanned BIGINT NOT NULL DEFAULT 0,
	companies_failed  BIGINT NOT NULL DEFAULT 0,
	signals_found     BIGINT NOT NULL DEFAULT 0,
	leads_created     BIGINT NOT NULL DEFAULT 0,
	budget_skips      BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, client_id)
)`, t.ClientStats),
	}
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.Schema() {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
