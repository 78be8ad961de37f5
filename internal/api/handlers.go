package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/monitor"
	"github.com/JakeFAU/leadwatch/internal/schedule"
	"github.com/JakeFAU/leadwatch/internal/scoring"
)

const (
	defaultLeadLimit    = 50
	maxLeadLimit        = 500
	defaultClientsLimit = 100
	maxClientsLimit     = 1000
	readyTimeout        = 2 * time.Second
	progressTimeout     = 3 * time.Second
	defaultEnqueueWait  = 5 * time.Second
)

type scanRequest struct {
	ClientID string `json:"client_id"`
	Force    bool   `json:"force"`
	MaxTasks *int   `json:"max_tasks"`
}

// startScan handles POST /v1/scans. An empty body scans every due company.
func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	maxTasks := s.cfg.Monitor.MaxTasks
	if req.MaxTasks != nil {
		if *req.MaxTasks < 0 {
			writeError(w, http.StatusBadRequest, "max_tasks must be >= 0")
			return
		}
		maxTasks = *req.MaxTasks
	}
	opts := monitor.StartOptions{
		Trigger: monitor.TriggerAPI,
		Options: schedule.Options{
			Force:    req.Force,
			MaxTasks: maxTasks,
			ClientID: strings.TrimSpace(req.ClientID),
		},
	}
	s.start(w, r, opts)
}

// scanCompany handles POST /v1/companies/{company_id}/scan by forcing a
// single-company run.
func (s *Server) scanCompany(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "company_id")
	company, err := s.deps.Companies.GetCompany(r.Context(), companyID)
	if err != nil {
		s.fail(w, err, "load company")
		return
	}
	if !company.Active {
		writeError(w, http.StatusConflict, "company is inactive")
		return
	}
	s.start(w, r, monitor.StartOptions{
		Trigger: monitor.TriggerCompany,
		Options: schedule.Options{
			Force:      true,
			ClientID:   company.ClientID,
			CompanyIDs: []string{company.ID},
		},
	})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, opts monitor.StartOptions) {
	wait := s.cfg.Monitor.EnqueueTimeout
	if wait <= 0 {
		wait = defaultEnqueueWait
	}
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	run, err := s.deps.Scanner.Start(ctx, opts)
	if err != nil {
		s.fail(w, err, "start scan")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"status": run.Status,
		"queued": run.Counters.CompaniesQueued,
	})
}

// getRun handles GET /v1/scans/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.fail(w, err, "load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

// listRunClients handles GET /v1/scans/{run_id}/clients?limit=&offset=.
func (s *Server) listRunClients(w http.ResponseWriter, r *http.Request) {
	if s.deps.Progress == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultClientsLimit, maxClientsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
	defer cancel()

	rows, err := s.deps.Progress.ListRunClients(ctx, chi.URLParam(r, "run_id"), limit, offset)
	if err != nil {
		s.fail(w, err, "list run clients")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": rows})
}

// listLeads handles GET /v1/leads?client_id=&min_score=&limit=.
func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	limit, _, err := parseLimitOffset(r, defaultLeadLimit, maxLeadLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := lead.LeadFilter{
		ClientID: strings.TrimSpace(r.URL.Query().Get("client_id")),
		Limit:    limit,
	}
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		score, convErr := strconv.Atoi(raw)
		if convErr != nil || score < 0 || score > 100 {
			writeError(w, http.StatusBadRequest, "invalid min_score")
			return
		}
		filter.MinScore = score
	}
	leads, err := s.deps.Leads.ListLeads(r.Context(), filter)
	if err != nil {
		s.fail(w, err, "list leads")
		return
	}
	if leads == nil {
		leads = []lead.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

// getStrategy handles GET /v1/clients/{client_id}/strategy.
func (s *Server) getStrategy(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	st, ok := s.deps.Strategies.Get(clientID)
	if !ok {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategy": st})
}

type dueTask struct {
	CompanyID     string     `json:"company_id"`
	CompanyName   string     `json:"company_name"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	NextDue       time.Time  `json:"next_due"`
}

// previewDue handles GET /v1/clients/{client_id}/due?force=&max_tasks=.
func (s *Server) previewDue(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	opts := schedule.Options{ClientID: clientID}
	q := r.URL.Query()
	if raw := q.Get("force"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid force")
			return
		}
		opts.Force = force
	}
	if raw := q.Get("max_tasks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid max_tasks")
			return
		}
		opts.MaxTasks = n
	}

	tasks, err := s.deps.Scanner.Preview(r.Context(), opts)
	if err != nil {
		s.fail(w, err, "preview due companies")
		return
	}
	st, _ := s.deps.Strategies.Get(clientID)
	out := make([]dueTask, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, dueTask{
			CompanyID:     task.Company.ID,
			CompanyName:   task.Company.Name,
			LastScannedAt: task.Company.LastScannedAt,
			NextDue:       schedule.NextDue(task.Company, st),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"client_id": clientID, "tasks": out})
}

type scoreRequest struct {
	ClientID    string       `json:"client_id"`
	CompanyID   string       `json:"company_id"`
	Company     lead.Company `json:"company"`
	Decision    string       `json:"decision"`
	TriggerType string       `json:"trigger_type"`
	Confidence  float64      `json:"confidence"`
	PublishedAt *time.Time   `json:"published_at"`
}

// score handles POST /v1/score and returns the deal-score breakdown for an
// ad-hoc classification. Decision defaults to triggered.
func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	strategy := s.cfg.Strategy.Defaults
	if req.ClientID != "" {
		st, ok := s.deps.Strategies.Get(req.ClientID)
		if !ok {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		strategy = st
	}
	company := req.Company
	if req.CompanyID != "" {
		c, err := s.deps.Companies.GetCompany(r.Context(), req.CompanyID)
		if err != nil {
			s.fail(w, err, "load company")
			return
		}
		company = c
	}
	decision := lead.DecisionTriggered
	if req.Decision != "" {
		d, ok := lead.ParseDecision(req.Decision)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid decision")
			return
		}
		decision = d
	}

	res := scoring.ComputeDealScore(scoring.Input{
		Classification: lead.Classification{
			Decision:    decision,
			TriggerType: lead.ParseTriggerType(req.TriggerType),
			Confidence:  req.Confidence,
		},
		PublishedAt: req.PublishedAt,
		Company:     company,
		Strategy:    strategy,
		Now:         s.deps.Clock.Now(),
		HalfLife:    s.cfg.Scoring.HalfLife,
		MaxAge:      scoring.MaxAgeFor(strategy, s.cfg.Scoring.MaxAge),
	})
	writeJSON(w, http.StatusOK, res)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
