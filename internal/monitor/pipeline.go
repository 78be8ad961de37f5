// Package monitor runs scan cycles: it turns the due queue into scan tasks,
// scans each company through scouts, classification and scoring, and records
// qualifying leads.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/leadwatch/internal/classify"
	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/progress"
	"github.com/JakeFAU/leadwatch/internal/resilience"
	"github.com/JakeFAU/leadwatch/internal/scoring"
	"github.com/JakeFAU/leadwatch/internal/storage"
	"github.com/JakeFAU/leadwatch/internal/telemetry"
)

// EventLeadCreated is the publisher event name for new leads.
const EventLeadCreated = "lead.created"

// ErrAllScoutsFailed is returned when no scout completed for a company.
var ErrAllScoutsFailed = errors.New("all scouts failed")

// StrategySource resolves merged client strategies.
type StrategySource interface {
	Get(clientID string) (lead.ClientStrategy, bool)
}

// ScoutSource returns the scouts enabled for a strategy.
type ScoutSource interface {
	For(strategy lead.ClientStrategy) ([]lead.Scout, error)
}

// Screener is the cheap pre-LLM check.
type Screener interface {
	Check(signal lead.Signal, strategy lead.ClientStrategy) classify.Verdict
}

// Config tunes the per-company pipeline.
type Config struct {
	// ScoutConcurrency bounds parallel scouts per company.
	ScoutConcurrency int
	// SeenTTL is how long a classified signal is remembered.
	SeenTTL time.Duration
	// HalfLife and MaxAge shape the recency component of the deal score.
	HalfLife time.Duration
	MaxAge   time.Duration
	// Snapshots stores the evidence text of every lead in the blob store.
	Snapshots bool
	// Enrich and Draft toggle contact lookup and email drafting for leads.
	Enrich bool
	Draft  bool
}

func (c Config) withDefaults() Config {
	if c.ScoutConcurrency <= 0 {
		c.ScoutConcurrency = 3
	}
	if c.SeenTTL <= 0 {
		c.SeenTTL = 30 * 24 * time.Hour
	}
	return c
}

// Deps are the pipeline collaborators. Contacts, Drafter, Seen, Blobs and
// Publisher are optional.
type Deps struct {
	Strategies StrategySource
	Scouts     ScoutSource
	Screener   Screener
	Classifier lead.Classifier
	Contacts   lead.ContactFinder
	Drafter    lead.EmailDrafter
	Leads      lead.LeadStore
	Companies  lead.CompanyStore
	Seen       lead.SeenCache
	Blobs      lead.BlobStore
	Publisher  lead.Publisher
	Hasher     lead.Hasher
	IDs        lead.IDGenerator
	Clock      lead.Clock
	Progress   progress.Emitter
	Logger     *zap.Logger
}

// CompanyResult summarises one company scan.
type CompanyResult struct {
	Signals     int
	Classified  int
	Leads       []lead.Lead
	BudgetSkips int
	ScoutErrors int
	Duration    time.Duration
}

// Counters converts the result into run counters.
func (r CompanyResult) Counters() lead.ScanCounters {
	return lead.ScanCounters{
		SignalsFound:      r.Signals,
		SignalsClassified: r.Classified,
		LeadsCreated:      len(r.Leads),
		BudgetSkips:       r.BudgetSkips,
	}
}

// LeadCreatedEvent is the payload published for every new lead.
type LeadCreatedEvent struct {
	Event       string    `json:"event"`
	LeadID      string    `json:"lead_id"`
	ClientID    string    `json:"client_id"`
	CompanyID   string    `json:"company_id"`
	CompanyName string    `json:"company_name"`
	URL         string    `json:"url"`
	TriggerType string    `json:"trigger_type"`
	Summary     string    `json:"summary,omitempty"`
	DealScore   int       `json:"deal_score"`
	Priority    string    `json:"priority"`
	SnapshotURI string    `json:"snapshot_uri,omitempty"`
	Contacts    int       `json:"contacts"`
	Drafted     bool      `json:"drafted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Pipeline scans one company at a time.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewPipeline wires a Pipeline.
func NewPipeline(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Strategies == nil:
		return nil, errors.New("strategy source is required")
	case deps.Scouts == nil:
		return nil, errors.New("scout source is required")
	case deps.Classifier == nil:
		return nil, errors.New("classifier is required")
	case deps.Leads == nil || deps.Companies == nil:
		return nil, errors.New("lead and company stores are required")
	case deps.Hasher == nil || deps.IDs == nil || deps.Clock == nil:
		return nil, errors.New("hasher, id generator and clock are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg.withDefaults(), logger: deps.Logger.Named("pipeline")}, nil
}

// companyScan carries the mutable state of one ScanCompany call.
type companyScan struct {
	task     lead.ScanTask
	strategy lead.ClientStrategy
	reporter progress.Reporter
	logger   *zap.Logger
	result   CompanyResult

	contactsLoaded bool
	contacts       []lead.Contact
}

// ScanCompany runs scouts, dedupes, classifies and scores the signals of one
// company, then stores and publishes qualifying leads. The company is marked
// scanned unless every scout failed.
func (p *Pipeline) ScanCompany(ctx context.Context, task lead.ScanTask) (res CompanyResult, err error) {
	company := task.Company
	ctx, span := telemetry.StartSpan(ctx, "monitor.scan_company",
		attribute.String("client_id", task.ClientID),
		attribute.String("company_id", company.ID),
		attribute.String("run_id", task.RunID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	start := p.deps.Clock.Now()
	strategy, ok := p.deps.Strategies.Get(task.ClientID)
	if !ok {
		return CompanyResult{}, fmt.Errorf("no strategy for client %s: %w", task.ClientID, lead.ErrNotFound)
	}

	scan := &companyScan{
		task:     task,
		strategy: strategy,
		reporter: progress.NewReporter(p.deps.Progress, task.RunID, p.deps.Clock.Now),
		logger: p.logger.With(
			zap.String("run_id", task.RunID),
			zap.String("client_id", task.ClientID),
			zap.String("company_id", company.ID),
		),
	}
	scan.reporter.Emit(progress.Event{Stage: progress.StageCompanyStart, ClientID: task.ClientID, CompanyID: company.ID})

	signals, err := p.runScouts(ctx, scan)
	if err != nil {
		scan.result.Duration = p.deps.Clock.Now().Sub(start)
		return scan.result, err
	}

	fresh, err := p.dedupe(ctx, scan, signals)
	if err != nil {
		scan.result.Duration = p.deps.Clock.Now().Sub(start)
		return scan.result, err
	}
	scan.result.Signals = len(fresh)

	p.evaluate(ctx, scan, fresh)

	if err := p.deps.Companies.MarkScanned(ctx, company.ID, p.deps.Clock.Now()); err != nil {
		scan.result.Duration = p.deps.Clock.Now().Sub(start)
		return scan.result, fmt.Errorf("mark scanned: %w", err)
	}
	scan.result.Duration = p.deps.Clock.Now().Sub(start)
	scan.logger.Info("company scanned",
		zap.Int("signals", scan.result.Signals),
		zap.Int("classified", scan.result.Classified),
		zap.Int("leads", len(scan.result.Leads)),
		zap.Int("budget_skips", scan.result.BudgetSkips),
		zap.Duration("duration", scan.result.Duration),
	)
	return scan.result, nil
}

func (p *Pipeline) runScouts(ctx context.Context, scan *companyScan) ([]lead.Signal, error) {
	scouts, err := p.deps.Scouts.For(scan.strategy)
	if err != nil {
		scan.logger.Warn("strategy names unknown scouts", zap.Error(err))
	}
	if len(scouts) == 0 {
		return nil, fmt.Errorf("no scouts enabled for client %s", scan.task.ClientID)
	}

	var (
		mu        sync.Mutex
		signals   []lead.Signal
		failures  int
		budgetHit bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ScoutConcurrency)
	for _, s := range scouts {
		g.Go(func() error {
			found, err := s.Scout(gctx, scan.task.Company, scan.strategy)
			mu.Lock()
			defer mu.Unlock()
			// Partial results are kept even when the scout stopped early.
			signals = append(signals, found...)
			if err != nil {
				failures++
				if errors.Is(err, lead.ErrBudgetExhausted) {
					budgetHit = true
				}
				scan.logger.Warn("scout failed", zap.String("scout", s.Name()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	scan.result.ScoutErrors = failures
	if budgetHit {
		p.budgetSkip(scan, "search budget exhausted")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan company: %w", err)
	}
	if failures == len(scouts) && len(signals) == 0 {
		return nil, fmt.Errorf("%d scouts: %w", failures, ErrAllScoutsFailed)
	}
	return signals, nil
}

// dedupe drops repeats within the batch, signals that already produced a lead
// and signals classified within SeenTTL.
func (p *Pipeline) dedupe(ctx context.Context, scan *companyScan, signals []lead.Signal) ([]lead.Signal, error) {
	batch := make(map[string]struct{}, len(signals))
	out := make([]lead.Signal, 0, len(signals))
	for _, sig := range signals {
		if _, dup := batch[sig.Fingerprint]; dup {
			continue
		}
		batch[sig.Fingerprint] = struct{}{}

		exists, err := p.deps.Leads.LeadExists(ctx, scan.task.ClientID, sig.Fingerprint)
		if err != nil {
			p.forget(ctx, scan, out)
			return nil, fmt.Errorf("dedupe signal: %w", err)
		}
		if exists {
			telemetry.ObserveSignal(sig.Scout, "duplicate")
			continue
		}
		if p.deps.Seen != nil {
			fresh, err := p.deps.Seen.MarkSeen(ctx, seenKey(sig), p.cfg.SeenTTL)
			if err != nil {
				scan.logger.Warn("seen cache unavailable", zap.Error(err))
			} else if !fresh {
				telemetry.ObserveSignal(sig.Scout, "duplicate")
				continue
			}
		}
		out = append(out, sig)
		scan.reporter.Emit(progress.Event{
			Stage:     progress.StageSignal,
			ClientID:  scan.task.ClientID,
			CompanyID: scan.task.Company.ID,
			Scout:     sig.Scout,
			URL:       sig.URL,
		})
	}
	return out, nil
}

func (p *Pipeline) evaluate(ctx context.Context, scan *companyScan, signals []lead.Signal) {
	for i, sig := range signals {
		if p.deps.Screener != nil {
			if v := p.deps.Screener.Check(sig, scan.strategy); v.Skip {
				telemetry.ObserveSignal(sig.Scout, "filtered")
				continue
			}
		}

		cls, err := p.deps.Classifier.Classify(ctx, lead.ClassifyRequest{
			Company:  scan.task.Company,
			Strategy: scan.strategy,
			Signal:   sig,
		})
		if err != nil {
			if stop := p.classifyFailed(ctx, scan, signals[i:], err); stop {
				return
			}
			continue
		}
		scan.result.Classified++
		telemetry.ObserveSignal(sig.Scout, string(cls.Decision))

		score := scoring.ComputeDealScore(scoring.Input{
			Classification: cls,
			PublishedAt:    sig.PublishedAt,
			Company:        scan.task.Company,
			Strategy:       scan.strategy,
			Now:            p.deps.Clock.Now(),
			HalfLife:       p.cfg.HalfLife,
			MaxAge:         scoring.MaxAgeFor(scan.strategy, p.cfg.MaxAge),
		})
		if cls.Decision != lead.DecisionTriggered || score.Score < scan.strategy.MinDealScore {
			continue
		}
		if l, ok := p.createLead(ctx, scan, sig, cls, score); ok {
			scan.result.Leads = append(scan.result.Leads, l)
		}
	}
}

// classifyFailed handles a classification error and reports whether the
// remaining signals should be left for a later cycle.
func (p *Pipeline) classifyFailed(ctx context.Context, scan *companyScan, rest []lead.Signal, err error) bool {
	stop := errors.Is(err, lead.ErrBudgetExhausted) ||
		errors.Is(err, resilience.ErrCircuitOpen) ||
		ctx.Err() != nil
	if !stop {
		telemetry.ObserveSignal(rest[0].Scout, "error")
		scan.logger.Warn("classify signal", zap.String("url", rest[0].URL), zap.Error(err))
		p.forget(ctx, scan, rest[:1])
		return false
	}
	if errors.Is(err, lead.ErrBudgetExhausted) {
		p.budgetSkip(scan, "llm budget exhausted")
	} else {
		scan.logger.Warn("classification halted", zap.Int("unclassified", len(rest)), zap.Error(err))
	}
	p.forget(ctx, scan, rest)
	return true
}

// forget releases seen markers so signals that were not fully handled are
// retried next cycle.
func (p *Pipeline) forget(ctx context.Context, scan *companyScan, signals []lead.Signal) {
	if p.deps.Seen == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, sig := range signals {
		if err := p.deps.Seen.Forget(ctx, seenKey(sig)); err != nil {
			scan.logger.Warn("release seen marker", zap.String("url", sig.URL), zap.Error(err))
		}
	}
}

func (p *Pipeline) createLead(
	ctx context.Context,
	scan *companyScan,
	sig lead.Signal,
	cls lead.Classification,
	score scoring.Result,
) (lead.Lead, bool) {
	id, err := p.deps.IDs.NewID()
	if err != nil {
		scan.logger.Error("generate lead id", zap.Error(err))
		p.forget(ctx, scan, []lead.Signal{sig})
		return lead.Lead{}, false
	}
	company := scan.task.Company
	l := lead.Lead{
		ID:             id,
		ClientID:       scan.task.ClientID,
		CompanyID:      company.ID,
		CompanyName:    company.Name,
		Signal:         sig,
		Classification: cls,
		DealScore:      score.Score,
		Priority:       score.Priority,
		Status:         lead.LeadStatusNew,
		CreatedAt:      p.deps.Clock.Now().UTC(),
	}

	if p.cfg.Snapshots && p.deps.Blobs != nil {
		l.Signal.SnapshotURI = p.snapshot(ctx, scan, sig)
	}
	if p.cfg.Enrich && p.deps.Contacts != nil {
		l.Contacts = p.loadContacts(ctx, scan)
		if len(l.Contacts) > 0 {
			l.Status = lead.LeadStatusEnriched
		}
	}
	if p.cfg.Draft && p.deps.Drafter != nil && len(l.Contacts) > 0 {
		draft, err := p.deps.Drafter.Draft(ctx, lead.DraftRequest{
			Company:        company,
			Strategy:       scan.strategy,
			Contact:        pickContact(l.Contacts),
			Signal:         l.Signal,
			Classification: cls,
		})
		switch {
		case errors.Is(err, lead.ErrBudgetExhausted):
			p.budgetSkip(scan, "llm budget exhausted before draft")
		case err != nil:
			scan.logger.Warn("draft email", zap.String("lead_id", l.ID), zap.Error(err))
		default:
			l.Draft = &draft
			l.Status = lead.LeadStatusDrafted
		}
	}

	if err := p.deps.Leads.SaveLead(ctx, l); err != nil {
		scan.logger.Error("save lead", zap.String("lead_id", l.ID), zap.Error(err))
		p.forget(ctx, scan, []lead.Signal{sig})
		return lead.Lead{}, false
	}
	telemetry.ObserveLead(l.ClientID, string(l.Priority), l.DealScore)
	p.publish(ctx, scan, l)
	scan.reporter.Emit(progress.Event{
		Stage:     progress.StageLead,
		ClientID:  l.ClientID,
		CompanyID: l.CompanyID,
		Scout:     sig.Scout,
		URL:       sig.URL,
		Score:     l.DealScore,
	})
	scan.logger.Info("lead created",
		zap.String("lead_id", l.ID),
		zap.String("trigger_type", string(cls.TriggerType)),
		zap.Int("deal_score", l.DealScore),
		zap.String("priority", string(l.Priority)),
	)
	return l, true
}

func (p *Pipeline) snapshot(ctx context.Context, scan *companyScan, sig lead.Signal) string {
	body := []byte(snapshotText(sig))
	hash, err := p.deps.Hasher.Hash(body)
	if err != nil {
		scan.logger.Warn("hash snapshot", zap.Error(err))
		return ""
	}
	path, err := storage.SnapshotPath(scan.task.ClientID, scan.task.Company.ID, hash)
	if err != nil {
		scan.logger.Warn("snapshot path", zap.Error(err))
		return ""
	}
	uri, err := p.deps.Blobs.PutObject(ctx, path, storage.SnapshotContentType, strings.NewReader(string(body)))
	if err != nil {
		scan.logger.Warn("store snapshot", zap.String("path", path), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) loadContacts(ctx context.Context, scan *companyScan) []lead.Contact {
	if scan.contactsLoaded {
		return scan.contacts
	}
	scan.contactsLoaded = true
	contacts, err := p.deps.Contacts.FindContacts(ctx, scan.task.Company, scan.strategy)
	switch {
	case errors.Is(err, lead.ErrBudgetExhausted):
		p.budgetSkip(scan, "enrichment budget exhausted")
	case err != nil:
		scan.logger.Warn("find contacts", zap.Error(err))
	}
	scan.contacts = contacts
	return contacts
}

func (p *Pipeline) publish(ctx context.Context, scan *companyScan, l lead.Lead) {
	if p.deps.Publisher == nil {
		return
	}
	evt := LeadCreatedEvent{
		Event:       EventLeadCreated,
		LeadID:      l.ID,
		ClientID:    l.ClientID,
		CompanyID:   l.CompanyID,
		CompanyName: l.CompanyName,
		URL:         l.Signal.URL,
		TriggerType: string(l.Classification.TriggerType),
		Summary:     l.Classification.Summary,
		DealScore:   l.DealScore,
		Priority:    string(l.Priority),
		SnapshotURI: l.Signal.SnapshotURI,
		Contacts:    len(l.Contacts),
		Drafted:     l.Draft != nil,
		CreatedAt:   l.CreatedAt,
	}
	if _, err := p.deps.Publisher.Publish(ctx, EventLeadCreated, evt); err != nil {
		scan.logger.Warn("publish lead", zap.String("lead_id", l.ID), zap.Error(err))
	}
}

func (p *Pipeline) budgetSkip(scan *companyScan, note string) {
	scan.result.BudgetSkips++
	scan.reporter.Emit(progress.Event{
		Stage:     progress.StageBudgetSkip,
		ClientID:  scan.task.ClientID,
		CompanyID: scan.task.Company.ID,
		Note:      note,
	})
	scan.logger.Info("budget skip", zap.String("reason", note))
}

func seenKey(sig lead.Signal) string {
	return sig.ClientID + "|" + sig.Fingerprint
}

func snapshotText(sig lead.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", sig.URL)
	if sig.PublishedAt != nil {
		fmt.Fprintf(&b, "Published: %s\n", sig.PublishedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Discovered: %s\n\n", sig.DiscoveredAt.UTC().Format(time.RFC3339))
	b.WriteString(sig.Text())
	b.WriteString("\n")
	return b.String()
}

// pickContact prefers the first contact with an email address.
func pickContact(contacts []lead.Contact) lead.Contact {
	for _, c := range contacts {
		if c.Email != "" {
			return c
		}
	}
	return contacts[0]
}
