package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/store"
)

// CreateRun inserts a new scan run.
func (s *Store) CreateRun(ctx context.Context, run lead.ScanRun) error {
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("encode run counters: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, trigger_src, client_id, status, started_at, finished_at, counters, error_text)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, s.tables.Runs)
	_, err = s.db.Exec(ctx, query,
		run.ID,
		run.Trigger,
		run.ClientID,
		string(run.Status),
		run.StartedAt.UTC(),
		nullableTime(run.FinishedAt),
		counters,
		run.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRun sets status, error text and counters. Terminal statuses stamp finished_at.
func (s *Store) UpdateRun(ctx context.Context, runID string, status lead.RunStatus, errText string, counters lead.ScanCounters) error {
	raw, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("encode run counters: %w", err)
	}
	var finished *time.Time
	if status.IsTerminal() {
		now := s.now().UTC()
		finished = &now
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $1, error_text = $2, counters = $3, finished_at = COALESCE($4, finished_at)
WHERE id = $5`, s.tables.Runs)
	tag, err := s.db.Exec(ctx, query, string(status), errText, raw, nullableTime(finished), runID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run %s: %w", runID, lead.ErrNotFound)
	}
	return nil
}

// GetRun loads a run or returns lead.ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (lead.ScanRun, error) {
	query := fmt.Sprintf(`
SELECT id, trigger_src, client_id, status, started_at, finished_at, counters, error_text
FROM %s WHERE id = $1`, s.tables.Runs)
	var (
		run      lead.ScanRun
		status   string
		finished pgtype.Timestamptz
		counters []byte
	)
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Trigger,
		&run.ClientID,
		&status,
		&run.StartedAt,
		&finished,
		&counters,
		&run.ErrorText,
	)
	if err != nil {
		return lead.ScanRun{}, fmt.Errorf("get run %s: %w", runID, notFound(err))
	}
	run.Status = lead.RunStatus(status)
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = timePtr(finished)
	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &run.Counters); err != nil {
			return lead.ScanRun{}, fmt.Errorf("decode run %s counters: %w", runID, err)
		}
	}
	return run, nil
}

// UpsertClientStats adds delta to the per-client progress row of a run.
func (s *Store) UpsertClientStats(ctx context.Context, runID, clientID string, d store.ClientDelta, at time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %[1]s AS t (run_id, client_id, last_update, companies_scanned, companies_failed,
	signals_found, leads_created, budget_skips)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (run_id, client_id) DO UPDATE SET
	last_update = GREATEST(t.last_update, EXCLUDED.last_update),
	companies_scanned = t.companies_scanned + EXCLUDED.companies_scanned,
	companies_failed = t.companies_failed + EXCLUDED.companies_failed,
	signals_found = t.signals_found + EXCLUDED.signals_found,
	leads_created = t.leads_created + EXCLUDED.leads_created,
	budget_skips = t.budget_skips + EXCLUDED.budget_skips`, s.tables.ClientStats)
	_, err := s.db.Exec(ctx, query,
		runID,
		clientID,
		at.UTC(),
		d.CompaniesScanned,
		d.CompaniesFailed,
		d.SignalsFound,
		d.LeadsCreated,
		d.BudgetSkips,
	)
	if err != nil {
		return fmt.Errorf("upsert client stats: %w", err)
	}
	return nil
}

// ListRunClients returns per-client stats for a run, busiest first.
func (s *Store) ListRunClients(ctx context.Context, runID string, limit, offset int) ([]store.ClientStats, error) {
	if limit <= 0 {
		limit = defaultLeadLimit
	}
	query := fmt.Sprintf(`
SELECT run_id, client_id, last_update, companies_scanned, companies_failed, signals_found,
	leads_created, budget_skips
FROM %s
WHERE run_id = $1
ORDER BY companies_scanned + companies_failed DESC, client_id
LIMIT $2 OFFSET $3`, s.tables.ClientStats)
	rows, err := s.db.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run clients: %w", err)
	}
	defer rows.Close()

	var out []store.ClientStats
	for rows.Next() {
		var st store.ClientStats
		err := rows.Scan(
			&st.RunID,
			&st.ClientID,
			&st.LastUpdate,
			&st.CompaniesScanned,
			&st.CompaniesFailed,
			&st.SignalsFound,
			&st.LeadsCreated,
			&st.BudgetSkips,
		)
		if err != nil {
			return nil, fmt.Errorf("scan client stats row: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client stats: %w", err)
	}
	return out, nil
}
