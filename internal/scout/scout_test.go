package scout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/hash/sha256"
	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/resilience"
)

var now = time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("sig-%d", s.n), nil
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []lead.SearchQuery
	results map[string][]lead.SearchResult
	err     error
}

func (f *fakeSearch) Search(_ context.Context, q lead.SearchQuery) ([]lead.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	for prefix, res := range f.results {
		if strings.HasPrefix(q.Query, prefix) {
			return res, nil
		}
	}
	return nil, nil
}

type fakeFetcher struct {
	pages map[string]string
	reqs  []lead.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req lead.FetchRequest) (lead.Page, error) {
	f.reqs = append(f.reqs, req)
	body, ok := f.pages[req.URL]
	if !ok {
		return lead.Page{}, resilience.Permanent(errors.New("404"))
	}
	return lead.Page{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

type fakeBudget struct {
	remaining int
	calls     int
}

func (f *fakeBudget) Reserve(_ context.Context, _ lead.ClientStrategy, service string, n int) error {
	f.calls++
	if service != resilience.ServiceSearch {
		return nil
	}
	if f.remaining < n {
		return lead.ErrBudgetExhausted
	}
	f.remaining -= n
	return nil
}

func ago(days int) *time.Time {
	t := now.AddDate(0, 0, -days)
	return &t
}

func newDeps(search lead.SearchClient, fetcher lead.PageFetcher, budget Budget) Deps {
	guards := resilience.NewRegistry(resilience.Config{Retry: resilience.RetryConfig{MaxRetries: 0}}, nil, zap.NewNop())
	return Deps{
		Search:  search,
		Fetcher: fetcher,
		Caller:  resilience.NewCaller(guards, nil),
		Budget:  budget,
		Hasher:  sha256.New(),
		IDs:     &seqIDs{},
		Clock:   fixedClock{},
		Logger:  zap.NewNop(),
	}
}

var acme = lead.Company{ID: "c1", ClientID: "client-a", Name: "Acme", Domain: "https://www.acme.com/"}

func TestBlogScoutFiltersAndExtracts(t *testing.T) {
	t.Parallel()

	search := &fakeSearch{results: map[string][]lead.SearchResult{
		"site:acme.com": {
			{Title: "Acme raises Series B", URL: "https://acme.com/blog/series-b?utm_source=x", Snippet: "funding", PublishedAt: ago(3)},
			{Title: "dup", URL: "https://www.acme.com/blog/series-b/", PublishedAt: ago(3)},
			{Title: "Elsewhere", URL: "https://other.com/acme", PublishedAt: ago(1)},
			{Title: "Ancient", URL: "https://acme.com/blog/2019", PublishedAt: ago(400)},
			{Title: "Hiring", URL: "https://blog.acme.com/hiring"},
		},
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://acme.com/blog/series-b?utm_source=x": `<html><head><meta property="article:published_time" content="2025-05-18T00:00:00Z"></head><body><p>Acme raised $40M.</p></body></html>`,
	}}
	cfg := Config{FetchContent: true, MaxResults: 5}
	s := newSearchScout(blogSpec(), cfg, newDeps(search, fetcher, &fakeBudget{remaining: 10}))

	strategy := lead.ClientStrategy{ClientID: "client-a", Keywords: []string{"funding", "new office"}, MaxSignalAgeDays: 90}
	signals, err := s.Scout(context.Background(), acme, strategy)
	require.NoError(t, err)
	require.Len(t, signals, 2)

	require.Equal(t, `site:acme.com (blog OR news OR announcement OR press) (funding OR "new office")`, search.queries[0].Query)

	first := signals[0]
	require.Equal(t, "sig-1", first.ID)
	require.Equal(t, "client-a", first.ClientID)
	require.Equal(t, "c1", first.CompanyID)
	require.Equal(t, Blog, first.Scout)
	require.Equal(t, "Acme raised $40M.", first.Content)
	require.Equal(t, time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC), *first.PublishedAt)
	require.Equal(t, sha256.New().Fingerprint("client-a", "https://acme.com/blog/series-b"), first.Fingerprint)
	require.Equal(t, now, first.DiscoveredAt)

	// the second page 404s; the snippet-only signal is kept
	require.Equal(t, "Hiring", signals[1].Title)
	require.Empty(t, signals[1].Content)
}

func TestSnippetOnlyScoutSkipsFetchWithoutHeadless(t *testing.T) {
	t.Parallel()

	search := &fakeSearch{results: map[string][]lead.SearchResult{
		"site:linkedin.com": {
			{Title: "Acme on LinkedIn", URL: "https://www.linkedin.com/posts/acme_hiring-123"},
			{Title: "Not linkedin", URL: "https://example.com/x"},
		},
	}}
	fetcher := &fakeFetcher{}
	s := newSearchScout(linkedInSpec(), Config{FetchContent: true}, newDeps(search, fetcher, &fakeBudget{remaining: 10}))

	signals, err := s.Scout(context.Background(), acme, lead.ClientStrategy{ClientID: "client-a"})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	require.Empty(t, fetcher.reqs)

	s = newSearchScout(linkedInSpec(), Config{FetchContent: true, Headless: true}, newDeps(search, fetcher, &fakeBudget{remaining: 10}))
	_, err = s.Scout(context.Background(), acme, lead.ClientStrategy{ClientID: "client-a"})
	require.NoError(t, err)
	require.Len(t, fetcher.reqs, 1)
	require.True(t, fetcher.reqs[0].UseHeadless)
}

func TestNewsScoutSplitsTriggerQueries(t *testing.T) {
	t.Parallel()

	search := &fakeSearch{}
	s := newSearchScout(newsSpec(), Config{}, newDeps(search, nil, &fakeBudget{remaining: 10}))
	strategy := lead.ClientStrategy{
		ClientID:     "client-a",
		TriggerTypes: []lead.TriggerType{lead.TriggerHiring, lead.TriggerFunding, lead.TriggerAward},
	}
	_, err := s.Scout(context.Background(), acme, strategy)
	require.NoError(t, err)
	require.Len(t, search.queries, 2)
	require.True(t, search.queries[0].News)
	require.Contains(t, search.queries[0].Query, `"Acme"`)
	require.Contains(t, search.queries[0].Query, "hiring")
	require.Contains(t, search.queries[0].Query, "funding")
	require.Contains(t, search.queries[1].Query, "award")
}

func TestScoutStopsOnBudget(t *testing.T) {
	t.Parallel()

	search := &fakeSearch{}
	budget := &fakeBudget{remaining: 0}
	s := newSearchScout(newsSpec(), Config{}, newDeps(search, nil, budget))
	signals, err := s.Scout(context.Background(), acme, lead.ClientStrategy{ClientID: "client-a"})
	require.ErrorIs(t, err, lead.ErrBudgetExhausted)
	require.Empty(t, signals)
	require.Empty(t, search.queries)
}

func TestScoutSearchFailure(t *testing.T) {
	t.Parallel()

	search := &fakeSearch{err: errors.New("upstream 502")}
	s := newSearchScout(testimonialSpec(), Config{}, newDeps(search, nil, &fakeBudget{remaining: 10}))
	_, err := s.Scout(context.Background(), acme, lead.ClientStrategy{})
	require.ErrorContains(t, err, "testimonial search")
}

func TestRegistryFor(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Config{}, newDeps(&fakeSearch{}, nil, &fakeBudget{}))
	require.Equal(t, []string{Blog, LinkedIn, News, Portfolio, Social, Testimonial}, r.Names())

	all, err := r.For(lead.ClientStrategy{})
	require.NoError(t, err)
	require.Len(t, all, 6)

	some, err := r.For(lead.ClientStrategy{ClientID: "x", Scouts: []string{"News", "blog", "news", "podcast"}})
	require.ErrorContains(t, err, "podcast")
	require.Len(t, some, 2)
	require.Equal(t, News, some[0].Name())
	require.Equal(t, Blog, some[1].Name())
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://acme.com/blog/post?a=1&b=2",
		NormalizeURL("http://WWW.Acme.com/blog/post/?b=2&utm_medium=email&a=1&fbclid=xyz#comments"))
	require.Equal(t, "not a url", NormalizeURL(" not a url "))
	require.Equal(t, "acme.com", CleanDomain("https://www.acme.com/about"))
	require.True(t, HostMatches("blog.acme.com", "acme.com"))
	require.False(t, HostMatches("notacme.com", "acme.com"))
}
