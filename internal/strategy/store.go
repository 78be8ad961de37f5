// Package strategy keeps the merged per-client strategies in memory.
package strategy

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

// Store merges configured defaults with repository rows.
type Store struct {
	repo     lead.StrategyRepository
	defaults lead.ClientStrategy
	logger   *zap.Logger

	mu         sync.RWMutex
	strategies map[string]lead.ClientStrategy
	loadedAt   time.Time
}

// NewStore creates an empty Store. Call Refresh before use.
func NewStore(repo lead.StrategyRepository, defaults lead.ClientStrategy, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		repo:       repo,
		defaults:   defaults,
		logger:     logger.Named("strategy"),
		strategies: make(map[string]lead.ClientStrategy),
	}
}

// Refresh reloads every row and swaps the in-memory map.
func (s *Store) Refresh(ctx context.Context) error {
	rows, err := s.repo.ListStrategies(ctx)
	if err != nil {
		return fmt.Errorf("list strategies: %w", err)
	}
	next := make(map[string]lead.ClientStrategy, len(rows))
	for _, row := range rows {
		if row.ClientID == "" {
			s.logger.Warn("skipping strategy without client id", zap.String("name", row.Name))
			continue
		}
		next[row.ClientID] = Merge(s.defaults, row)
	}
	s.mu.Lock()
	s.strategies = next
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()
	s.logger.Debug("strategies refreshed", zap.Int("count", len(next)))
	return nil
}

// Get returns the merged strategy for clientID.
func (s *Store) Get(clientID string) (lead.ClientStrategy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strategies[clientID]
	return st, ok
}

// All returns every strategy sorted by client ID.
func (s *Store) All() []lead.ClientStrategy {
	s.mu.RLock()
	out := make([]lead.ClientStrategy, 0, len(s.strategies))
	for _, st := range s.strategies {
		out = append(out, st)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Snapshot returns a copy of the map keyed by client ID.
func (s *Store) Snapshot() map[string]lead.ClientStrategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.strategies)
}

// LoadedAt reports the last successful refresh.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// StartAutoRefresh refreshes every interval until ctx is done.
func (s *Store) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("strategy refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

// Merge overlays row on defaults. Zero scalars and empty lists inherit the default.
func Merge(defaults, row lead.ClientStrategy) lead.ClientStrategy {
	out := row
	if out.Name == "" {
		out.Name = out.ClientID
	}
	if out.Frequency == "" {
		out.Frequency = defaults.Frequency
	}
	if out.DailyQuota == 0 {
		out.DailyQuota = defaults.DailyQuota
	}
	if len(out.Scouts) == 0 {
		out.Scouts = defaults.Scouts
	}
	if len(out.TriggerTypes) == 0 {
		out.TriggerTypes = defaults.TriggerTypes
	}
	if len(out.Keywords) == 0 {
		out.Keywords = defaults.Keywords
	}
	if len(out.NegativeKeywords) == 0 {
		out.NegativeKeywords = defaults.NegativeKeywords
	}
	if out.ClassifierPrompt == "" {
		out.ClassifierPrompt = defaults.ClassifierPrompt
	}
	if out.MinConfidence == 0 {
		out.MinConfidence = defaults.MinConfidence
	}
	if out.MinDealScore == 0 {
		out.MinDealScore = defaults.MinDealScore
	}
	if out.MaxSignalAgeDays == 0 {
		out.MaxSignalAgeDays = defaults.MaxSignalAgeDays
	}
	if out.ScoreWeights.IsZero() {
		out.ScoreWeights = defaults.ScoreWeights
	}
	if len(defaults.TypeWeights) > 0 || len(row.TypeWeights) > 0 {
		merged := make(map[lead.TriggerType]float64, len(defaults.TypeWeights)+len(row.TypeWeights))
		maps.Copy(merged, defaults.TypeWeights)
		maps.Copy(merged, row.TypeWeights)
		out.TypeWeights = merged
	}
	if len(out.ICP.Industries) == 0 {
		out.ICP.Industries = defaults.ICP.Industries
	}
	if len(out.ICP.Countries) == 0 {
		out.ICP.Countries = defaults.ICP.Countries
	}
	if out.ICP.MinEmployees == 0 {
		out.ICP.MinEmployees = defaults.ICP.MinEmployees
	}
	if out.ICP.MaxEmployees == 0 {
		out.ICP.MaxEmployees = defaults.ICP.MaxEmployees
	}
	out.Voice = mergeVoice(defaults.Voice, row.Voice)
	if len(out.TargetTitles) == 0 {
		out.TargetTitles = defaults.TargetTitles
	}
	if out.MaxContacts == 0 {
		out.MaxContacts = defaults.MaxContacts
	}
	if out.Budgets.SearchCalls == 0 {
		out.Budgets.SearchCalls = defaults.Budgets.SearchCalls
	}
	if out.Budgets.LLMCalls == 0 {
		out.Budgets.LLMCalls = defaults.Budgets.LLMCalls
	}
	if out.Budgets.EnrichmentCalls == 0 {
		out.Budgets.EnrichmentCalls = defaults.Budgets.EnrichmentCalls
	}
	return out
}

func mergeVoice(defaults, row lead.Voice) lead.Voice {
	out := row
	if out.Tone == "" {
		out.Tone = defaults.Tone
	}
	if out.SenderName == "" {
		out.SenderName = defaults.SenderName
	}
	if out.SenderCompany == "" {
		out.SenderCompany = defaults.SenderCompany
	}
	if out.ValueProp == "" {
		out.ValueProp = defaults.ValueProp
	}
	if out.CallToAction == "" {
		out.CallToAction = defaults.CallToAction
	}
	if out.MaxWords == 0 {
		out.MaxWords = defaults.MaxWords
	}
	return out
}
