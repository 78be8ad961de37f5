package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/progress"
	"github.com/JakeFAU/leadwatch/internal/store"
)

// StoreSink folds company events into per-(run, client) deltas and writes
// one upsert per pair and batch.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type statsKey struct {
	runID    string
	clientID string
}

type statsDelta struct {
	delta store.ClientDelta
	at    time.Time
}

// Consume collapses the batch and forwards it to the repository.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[statsKey]*statsDelta)
	order := make([]statsKey, 0)
	for _, evt := range batch {
		if evt.IsCycle() || evt.ClientID == "" {
			continue
		}
		key := statsKey{runID: evt.RunID, clientID: evt.ClientID}
		st := stats[key]
		if st == nil {
			st = &statsDelta{}
			stats[key] = st
			order = append(order, key)
		}
		switch evt.Stage {
		case progress.StageCompanyDone:
			st.delta.CompaniesScanned++
		case progress.StageCompanyError:
			st.delta.CompaniesFailed++
		case progress.StageSignal:
			st.delta.SignalsFound++
		case progress.StageLead:
			st.delta.LeadsCreated++
		case progress.StageBudgetSkip:
			st.delta.BudgetSkips++
		}
		if evt.TS.After(st.at) {
			st.at = evt.TS
		}
	}

	for _, key := range order {
		st := stats[key]
		if st.delta.IsZero() {
			continue
		}
		if err := s.repo.UpsertClientStats(ctx, key.runID, key.clientID, st.delta, st.at); err != nil {
			return fmt.Errorf("upsert client stats: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
