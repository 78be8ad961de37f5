package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/store"
)

// Store keeps companies, strategies, leads, runs and progress in memory for development/testing.
type Store struct {
	mu         sync.RWMutex
	now        func() time.Time
	companies  map[string]lead.Company
	strategies map[string]lead.ClientStrategy
	leads      []lead.Lead
	leadKeys   map[string]struct{}
	runs       map[string]lead.ScanRun
	stats      map[string]store.ClientStats
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		now:        time.Now,
		companies:  make(map[string]lead.Company),
		strategies: make(map[string]lead.ClientStrategy),
		leadKeys:   make(map[string]struct{}),
		runs:       make(map[string]lead.ScanRun),
		stats:      make(map[string]store.ClientStats),
	}
}

// ListActiveCompanies returns active companies ordered by client and name.
func (s *Store) ListActiveCompanies(_ context.Context) ([]lead.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lead.Company, 0, len(s.companies))
	for _, c := range s.companies {
		if c.Active {
			out = append(out, copyCompany(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GetCompany fetches a company by ID.
func (s *Store) GetCompany(_ context.Context, companyID string) (lead.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[companyID]
	if !ok {
		return lead.Company{}, fmt.Errorf("get company %s: %w", companyID, lead.ErrNotFound)
	}
	return copyCompany(c), nil
}

// UpsertCompany inserts or replaces a company, keeping its scan history.
func (s *Store) UpsertCompany(_ context.Context, c lead.Company) error {
	if c.ID == "" || c.ClientID == "" {
		return errors.New("company id and client id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.companies[c.ID]; ok {
		c.LastScannedAt = existing.LastScannedAt
		c.CreatedAt = existing.CreatedAt
	} else {
		c.LastScannedAt = nil
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now().UTC()
		}
	}
	s.companies[c.ID] = c
	return nil
}

// MarkScanned records the last scan time of a company.
func (s *Store) MarkScanned(_ context.Context, companyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[companyID]
	if !ok {
		return fmt.Errorf("mark company %s scanned: %w", companyID, lead.ErrNotFound)
	}
	ts := at.UTC()
	c.LastScannedAt = &ts
	s.companies[companyID] = c
	return nil
}

// ListStrategies returns every stored strategy ordered by client ID.
func (s *Store) ListStrategies(_ context.Context) ([]lead.ClientStrategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lead.ClientStrategy, 0, len(s.strategies))
	for _, st := range s.strategies {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// UpsertStrategy stores a strategy.
func (s *Store) UpsertStrategy(_ context.Context, st lead.ClientStrategy) error {
	if st.ClientID == "" {
		return errors.New("strategy client id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[st.ClientID] = st
	return nil
}

// SaveLead appends a lead unless the client already has one with the same fingerprint.
func (s *Store) SaveLead(_ context.Context, l lead.Lead) error {
	if l.ID == "" {
		return errors.New("lead id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := leadKey(l.ClientID, l.Signal.Fingerprint)
	if _, dup := s.leadKeys[key]; dup {
		return nil
	}
	s.leadKeys[key] = struct{}{}
	s.leads = append(s.leads, l)
	return nil
}

// LeadExists reports whether the client already has a lead for fingerprint.
func (s *Store) LeadExists(_ context.Context, clientID, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.leadKeys[leadKey(clientID, fingerprint)]
	return ok, nil
}

// ListLeads returns leads by descending score, newest first within a score.
func (s *Store) ListLeads(_ context.Context, f lead.LeadFilter) ([]lead.Lead, error) {
	s.mu.RLock()
	out := make([]lead.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		if f.ClientID != "" && l.ClientID != f.ClientID {
			continue
		}
		if l.DealScore < f.MinScore {
			continue
		}
		out = append(out, l)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DealScore != out[j].DealScore {
			return out[i].DealScore > out[j].DealScore
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateRun stores a new run.
func (s *Store) CreateRun(_ context.Context, run lead.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRun updates status, error text and counters. Terminal statuses stamp FinishedAt.
func (s *Store) UpdateRun(
	_ context.Context,
	runID string,
	status lead.RunStatus,
	errText string,
	counters lead.ScanCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("update run %s: %w", runID, lead.ErrNotFound)
	}
	run.Status = status
	run.ErrorText = errText
	run.Counters = counters
	if status.IsTerminal() && run.FinishedAt == nil {
		now := s.now().UTC()
		run.FinishedAt = &now
	}
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(_ context.Context, runID string) (lead.ScanRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return lead.ScanRun{}, fmt.Errorf("get run %s: %w", runID, lead.ErrNotFound)
	}
	return run, nil
}

// UpsertClientStats adds delta to the (run, client) stats row.
func (s *Store) UpsertClientStats(_ context.Context, runID, clientID string, d store.ClientDelta, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runID + "|" + clientID
	st, ok := s.stats[key]
	if !ok {
		st = store.ClientStats{RunID: runID, ClientID: clientID}
	}
	if at.After(st.LastUpdate) {
		st.LastUpdate = at.UTC()
	}
	st.CompaniesScanned += d.CompaniesScanned
	st.CompaniesFailed += d.CompaniesFailed
	st.SignalsFound += d.SignalsFound
	st.LeadsCreated += d.LeadsCreated
	st.BudgetSkips += d.BudgetSkips
	s.stats[key] = st
	return nil
}

// ListRunClients returns per-client stats of a run, busiest first.
func (s *Store) ListRunClients(_ context.Context, runID string, limit, offset int) ([]store.ClientStats, error) {
	s.mu.RLock()
	var out []store.ClientStats
	for _, st := range s.stats {
		if st.RunID == runID {
			out = append(out, st)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti := out[i].CompaniesScanned + out[i].CompaniesFailed
		tj := out[j].CompaniesScanned + out[j].CompaniesFailed
		if ti != tj {
			return ti > tj
		}
		return out[i].ClientID < out[j].ClientID
	})
	if offset >= len(out) {
		return []store.ClientStats{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func leadKey(clientID, fingerprint string) string {
	return clientID + "|" + fingerprint
}

func copyCompany(c lead.Company) lead.Company {
	if c.LastScannedAt != nil {
		ts := *c.LastScannedAt
		c.LastScannedAt = &ts
	}
	return c
}
