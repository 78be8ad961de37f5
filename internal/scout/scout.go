// Package scout discovers candidate trigger signals for a company.
//
// Every scout follows the same two steps: discovery through the search API,
// then optional content extraction by fetching each hit. Scouts differ in the
// queries they build, which hosts they accept and whether pages need a
// headless browser.
package scout

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/extract"
	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/resilience"
)

// Budget reserves paid calls for a client.
type Budget interface {
	Reserve(ctx context.Context, strategy lead.ClientStrategy, service string, n int) error
}

// Fingerprinter derives dedupe keys.
type Fingerprinter interface {
	Fingerprint(parts ...string) string
}

// Config tunes discovery and extraction.
type Config struct {
	MaxResults   int
	ResultsPerQ  int
	Recency      string
	FetchContent bool
	Headless     bool
	ContentRunes int
	MaxKeywords  int
}

func (c Config) withDefaults() Config {
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.ResultsPerQ <= 0 {
		c.ResultsPerQ = 10
	}
	if c.ContentRunes <= 0 {
		c.ContentRunes = 4000
	}
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = 4
	}
	return c
}

// Deps are the collaborators shared by all scouts.
type Deps struct {
	Search  lead.SearchClient
	Fetcher lead.PageFetcher
	Caller  *resilience.Caller
	Budget  Budget
	Hasher  Fingerprinter
	IDs     lead.IDGenerator
	Clock   lead.Clock
	Logger  *zap.Logger
}

// spec describes one scout.
type spec struct {
	name     string
	queries  func(c lead.Company, s lead.ClientStrategy, cfg Config) []lead.SearchQuery
	accept   func(result lead.SearchResult, c lead.Company) bool
	headless bool
	// snippetOnly scouts skip fetching unless headless rendering is available.
	snippetOnly bool
}

type searchScout struct {
	spec
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

func newSearchScout(sp spec, cfg Config, deps Deps) *searchScout {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &searchScout{
		spec:   sp,
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: logger.Named("scout").With(zap.String("scout", sp.name)),
	}
}

func (s *searchScout) Name() string {
	return s.name
}

// Scout runs discovery and extraction. Signals found before a budget or
// search failure are returned together with the error.
func (s *searchScout) Scout(ctx context.Context, company lead.Company, strategy lead.ClientStrategy) ([]lead.Signal, error) {
	now := s.deps.Clock.Now().UTC()
	results, discoverErr := s.discover(ctx, company, strategy, now)

	signals := make([]lead.Signal, 0, len(results))
	for _, r := range results {
		sig, err := s.toSignal(ctx, company, r, now)
		if err != nil {
			return signals, err
		}
		signals = append(signals, sig)
	}
	return signals, discoverErr
}

func (s *searchScout) discover(
	ctx context.Context,
	company lead.Company,
	strategy lead.ClientStrategy,
	now time.Time,
) ([]lead.SearchResult, error) {
	maxAge := time.Duration(strategy.MaxSignalAgeDays) * 24 * time.Hour
	seen := make(map[string]struct{})
	var out []lead.SearchResult

	for _, q := range s.queries(company, strategy, s.cfg) {
		if len(out) >= s.cfg.MaxResults {
			break
		}
		if err := s.deps.Budget.Reserve(ctx, strategy, resilience.ServiceSearch, 1); err != nil {
			return out, err
		}
		var hits []lead.SearchResult
		err := s.deps.Caller.Call(ctx, resilience.ServiceSearch, func(ctx context.Context) error {
			var err error
			hits, err = s.deps.Search.Search(ctx, q)
			return err
		})
		if err != nil {
			return out, fmt.Errorf("%s search: %w", s.name, err)
		}
		for _, h := range hits {
			key := NormalizeURL(h.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			if s.accept != nil && !s.accept(h, company) {
				continue
			}
			if maxAge > 0 && h.PublishedAt != nil && now.Sub(*h.PublishedAt) > maxAge {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, h)
			if len(out) >= s.cfg.MaxResults {
				break
			}
		}
	}
	return out, nil
}

func (s *searchScout) toSignal(ctx context.Context, company lead.Company, r lead.SearchResult, now time.Time) (lead.Signal, error) {
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return lead.Signal{}, fmt.Errorf("signal id: %w", err)
	}
	sig := lead.Signal{
		ID:           id,
		ClientID:     company.ClientID,
		CompanyID:    company.ID,
		Scout:        s.name,
		URL:          r.URL,
		Title:        r.Title,
		Snippet:      r.Snippet,
		PublishedAt:  r.PublishedAt,
		DiscoveredAt: now,
		Fingerprint:  s.deps.Hasher.Fingerprint(company.ClientID, NormalizeURL(r.URL)),
	}
	if !s.shouldFetch() {
		return sig, nil
	}

	doc, err := s.fetch(ctx, r.URL)
	if err != nil {
		if ctx.Err() != nil {
			return sig, fmt.Errorf("%s fetch: %w", s.name, ctx.Err())
		}
		s.logger.Debug("content extraction failed, keeping snippet",
			zap.String("url", r.URL), zap.Error(err))
		return sig, nil
	}
	sig.Content = doc.Text
	if sig.Title == "" {
		sig.Title = doc.Title
	}
	if sig.Snippet == "" {
		sig.Snippet = doc.Description
	}
	if doc.PublishedAt != nil {
		sig.PublishedAt = doc.PublishedAt
	}
	return sig, nil
}

func (s *searchScout) shouldFetch() bool {
	if !s.cfg.FetchContent || s.deps.Fetcher == nil {
		return false
	}
	if s.snippetOnly && !s.cfg.Headless {
		return false
	}
	return true
}

func (s *searchScout) fetch(ctx context.Context, rawURL string) (extract.Document, error) {
	var page lead.Page
	err := s.deps.Caller.Call(ctx, resilience.ServiceFetch, func(ctx context.Context) error {
		var err error
		page, err = s.deps.Fetcher.Fetch(ctx, lead.FetchRequest{
			URL:         rawURL,
			UseHeadless: s.headless && s.cfg.Headless,
		})
		return err
	})
	if err != nil {
		return extract.Document{}, err
	}
	doc, err := extract.HTML(page.Body, s.cfg.ContentRunes)
	if err != nil {
		return extract.Document{}, fmt.Errorf("extract %s: %w", rawURL, err)
	}
	return doc, nil
}
