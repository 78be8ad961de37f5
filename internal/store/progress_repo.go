package store

import (
	"context"
	"time"
)

// ClientStats aggregates one client's progress within a scan run.
type ClientStats struct {
	RunID            string    `json:"run_id"`
	ClientID         string    `json:"client_id"`
	LastUpdate       time.Time `json:"last_update"`
	CompaniesScanned int64     `json:"companies_scanned"`
	CompaniesFailed  int64     `json:"companies_failed"`
	SignalsFound     int64     `json:"signals_found"`
	LeadsCreated     int64     `json:"leads_created"`
	BudgetSkips      int64     `json:"budget_skips"`
}

// ClientDelta is an increment applied to ClientStats.
type ClientDelta struct {
	CompaniesScanned int64
	CompaniesFailed  int64
	SignalsFound     int64
	LeadsCreated     int64
	BudgetSkips      int64
}

// IsZero reports whether the delta changes nothing.
func (d ClientDelta) IsZero() bool {
	return d == ClientDelta{}
}

// ProgressRepository persists incremental per-client progress.
type ProgressRepository interface {
	// UpsertClientStats adds delta to the (run, client) row, creating it when missing.
	UpsertClientStats(ctx context.Context, runID, clientID string, delta ClientDelta, at time.Time) error
	// ListRunClients returns the per-client rows of one run.
	ListRunClients(ctx context.Context, runID string, limit, offset int) ([]ClientStats, error)
}
