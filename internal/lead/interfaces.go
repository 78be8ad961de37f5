package lead

import (
	"context"
	"io"
	"net/http"
	"time"
)

// CompanyStore persists monitored companies.
type CompanyStore interface {
	ListActiveCompanies(ctx context.Context) ([]Company, error)
	GetCompany(ctx context.Context, companyID string) (Company, error)
	UpsertCompany(ctx context.Context, company Company) error
	MarkScanned(ctx context.Context, companyID string, at time.Time) error
}

// StrategyRepository loads and saves per-client strategy rows.
type StrategyRepository interface {
	ListStrategies(ctx context.Context) ([]ClientStrategy, error)
	UpsertStrategy(ctx context.Context, strategy ClientStrategy) error
}

// LeadStore persists qualified leads.
type LeadStore interface {
	SaveLead(ctx context.Context, lead Lead) error
	LeadExists(ctx context.Context, clientID, fingerprint string) (bool, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error)
}

// RunStore persists scan run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run ScanRun) error
	UpdateRun(ctx context.Context, runID string, status RunStatus, errText string, counters ScanCounters) error
	GetRun(ctx context.Context, runID string) (ScanRun, error)
}

// SearchQuery is one search-engine request.
type SearchQuery struct {
	Query   string
	Num     int
	Recency string // qdr-style window such as "m" (month) or "w" (week)
	News    bool
}

// SearchResult is one organic or news hit.
type SearchResult struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt *time.Time
	Position    int
}

// SearchClient discovers URLs via a search API.
type SearchClient interface {
	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)
}

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	URL         string
	UseHeadless bool
	Headers     http.Header
}

// Page is a fetched document.
type Page struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// PageFetcher fetches a URL and returns the body plus metadata.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (Page, error)
}

// Scout discovers and extracts one content type for a company.
type Scout interface {
	Name() string
	Scout(ctx context.Context, company Company, strategy ClientStrategy) ([]Signal, error)
}

// ClassifyRequest bundles what the classifier needs for one signal.
type ClassifyRequest struct {
	Company  Company
	Strategy ClientStrategy
	Signal   Signal
}

// Classifier turns a signal into a structured decision.
type Classifier interface {
	Classify(ctx context.Context, request ClassifyRequest) (Classification, error)
}

// ContactFinder looks up people at a company.
type ContactFinder interface {
	FindContacts(ctx context.Context, company Company, strategy ClientStrategy) ([]Contact, error)
}

// DraftRequest bundles what the drafter needs for one email.
type DraftRequest struct {
	Company        Company
	Strategy       ClientStrategy
	Contact        Contact
	Signal         Signal
	Classification Classification
}

// EmailDrafter writes outreach emails.
type EmailDrafter interface {
	Draft(ctx context.Context, request DraftRequest) (EmailDraft, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes lead events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// SeenCache remembers fingerprints for a bounded time.
type SeenCache interface {
	// MarkSeen records key and reports whether it was new.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget removes key so a later MarkSeen reports it as new again.
	Forget(ctx context.Context, key string) error
}

// QuotaCounter is a windowed counter used for daily budgets.
type QuotaCounter interface {
	// Increment adds n to key and returns the new total. The key expires at expireAt.
	Increment(ctx context.Context, key string, n int, expireAt time.Time) (int, error)
	// Decrement undoes a reservation that exceeded its limit.
	Decrement(ctx context.Context, key string, n int) error
}

// Queue provides enqueue/dequeue semantics for scan tasks.
type Queue interface {
	Enqueue(ctx context.Context, task ScanTask) error
	Dequeue(ctx context.Context) (ScanTask, error)
}

// Hasher computes digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
