// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DB is the subset of pgxpool.Pool used by the stores.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Tables names every table the stores touch.
type Tables struct {
	Companies   string `mapstructure:"companies"`
	Strategies  string `mapstructure:"strategies"`
	Leads       string `mapstructure:"leads"`
	Runs        string `mapstructure:"runs"`
	ClientStats string `mapstructure:"client_stats"`
}

// DefaultTables returns the standard table names.
func DefaultTables() Tables {
	return Tables{
		Companies:   "companies",
		Strategies:  "client_strategies",
		Leads:       "leads",
		Runs:        "scan_runs",
		ClientStats: "scan_client_stats",
	}
}

func (t Tables) withDefaults() Tables {
	d := DefaultTables()
	if t.Companies == "" {
		t.Companies = d.Companies
	}
	if t.Strategies == "" {
		t.Strategies = d.Strategies
	}
	if t.Leads == "" {
		t.Leads = d.Leads
	}
	if t.Runs == "" {
		t.Runs = d.Runs
	}
	if t.ClientStats == "" {
		t.ClientStats = d.ClientStats
	}
	return t
}

func (t Tables) validate() error {
	for _, name := range []string{t.Companies, t.Strategies, t.Leads, t.Runs, t.ClientStats} {
		if !validTableName.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	Tables          Tables
}

// Store implements the company, strategy, lead, run and progress repositories.
type Store struct {
	db     DB
	tables Tables
	now    func() time.Time
}

// Open connects a pool and wraps it in a Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := New(pool, cfg.Tables)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// New constructs a Store over an existing pool (pgxmock in tests).
func New(db DB, tables Tables) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	tables = tables.withDefaults()
	if err := tables.validate(); err != nil {
		return nil, err
	}
	return &Store{db: db, tables: tables, now: time.Now}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// Ping checks connectivity with a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return lead.ErrNotFound
	}
	return err
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}

func nullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}
