// Package lead defines the core types and ports shared across the monitoring subsystems.
package lead

import (
	"errors"
	"strings"
	"time"
)

// Sentinel errors shared by stores and the pipeline.
var (
	ErrNotFound        = errors.New("not found")
	ErrBudgetExhausted = errors.New("daily budget exhausted")
	ErrQueueClosed     = errors.New("queue closed")
)

// TriggerType classifies the company event a signal describes.
type TriggerType string

// Supported trigger types.
const (
	TriggerHiring           TriggerType = "hiring"
	TriggerFunding          TriggerType = "funding"
	TriggerLeadershipChange TriggerType = "leadership_change"
	TriggerAward            TriggerType = "award"
	TriggerExpansion        TriggerType = "expansion"
	TriggerPartnership      TriggerType = "partnership"
	TriggerProductLaunch    TriggerType = "product_launch"
	TriggerOther            TriggerType = "other"
)

// AllTriggerTypes lists every known trigger type in a stable order.
func AllTriggerTypes() []TriggerType {
	return []TriggerType{
		TriggerHiring,
		TriggerFunding,
		TriggerLeadershipChange,
		TriggerAward,
		TriggerExpansion,
		TriggerPartnership,
		TriggerProductLaunch,
		TriggerOther,
	}
}

// ParseTriggerType normalizes free-form model output into a TriggerType.
// Unknown values map to TriggerOther.
func ParseTriggerType(raw string) TriggerType {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "hiring", "hire", "job_posting":
		return TriggerHiring
	case "funding", "fundraise", "investment":
		return TriggerFunding
	case "leadership_change", "leadership", "executive_change", "new_executive":
		return TriggerLeadershipChange
	case "award", "recognition":
		return TriggerAward
	case "expansion", "new_office", "new_market":
		return TriggerExpansion
	case "partnership", "partner":
		return TriggerPartnership
	case "product_launch", "launch", "new_product":
		return TriggerProductLaunch
	default:
		return TriggerOther
	}
}

// Decision is the classifier verdict for a signal.
type Decision string

// Classifier decisions.
const (
	DecisionTriggered Decision = "triggered"
	DecisionPass      Decision = "pass"
	DecisionRejected  Decision = "rejected"
)

// ParseDecision normalizes a decision string. Unknown values are treated as pass.
func ParseDecision(raw string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(raw))) {
	case DecisionTriggered:
		return DecisionTriggered, true
	case DecisionPass:
		return DecisionPass, true
	case DecisionRejected:
		return DecisionRejected, true
	default:
		return DecisionPass, false
	}
}

// Frequency is a client's monitoring cadence.
type Frequency string

// Monitoring frequencies.
const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Interval converts the frequency to a re-scan interval. Unknown values are weekly.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyBiweekly:
		return 14 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Company is a monitored account belonging to one client.
type Company struct {
	ID            string     `json:"id" yaml:"id"`
	ClientID      string     `json:"client_id" yaml:"client_id"`
	Name          string     `json:"name" yaml:"name"`
	Domain        string     `json:"domain,omitempty" yaml:"domain"`
	Ticker        string     `json:"ticker,omitempty" yaml:"ticker"`
	Industry      string     `json:"industry,omitempty" yaml:"industry"`
	Employees     int        `json:"employees,omitempty" yaml:"employees"`
	Country       string     `json:"country,omitempty" yaml:"country"`
	LinkedInURL   string     `json:"linkedin_url,omitempty" yaml:"linkedin_url"`
	BlogURL       string     `json:"blog_url,omitempty" yaml:"blog_url"`
	Active        bool       `json:"active" yaml:"active"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty" yaml:"-"`
	CreatedAt     time.Time  `json:"created_at" yaml:"-"`
}

// ICP holds the ideal-customer-profile criteria for a client.
type ICP struct {
	Industries   []string `json:"industries,omitempty" yaml:"industries" mapstructure:"industries"`
	Countries    []string `json:"countries,omitempty" yaml:"countries" mapstructure:"countries"`
	MinEmployees int      `json:"min_employees,omitempty" yaml:"min_employees" mapstructure:"min_employees"`
	MaxEmployees int      `json:"max_employees,omitempty" yaml:"max_employees" mapstructure:"max_employees"`
}

// Voice describes how outreach drafts should sound for a client.
type Voice struct {
	Tone          string `json:"tone,omitempty" yaml:"tone" mapstructure:"tone"`
	SenderName    string `json:"sender_name,omitempty" yaml:"sender_name" mapstructure:"sender_name"`
	SenderCompany string `json:"sender_company,omitempty" yaml:"sender_company" mapstructure:"sender_company"`
	ValueProp     string `json:"value_prop,omitempty" yaml:"value_prop" mapstructure:"value_prop"`
	CallToAction  string `json:"call_to_action,omitempty" yaml:"call_to_action" mapstructure:"call_to_action"`
	MaxWords      int    `json:"max_words,omitempty" yaml:"max_words" mapstructure:"max_words"`
}

// ScoreWeights are the relative weights of the deal-score components.
type ScoreWeights struct {
	Confidence  float64 `json:"confidence" yaml:"confidence" mapstructure:"confidence"`
	TriggerType float64 `json:"trigger_type" yaml:"trigger_type" mapstructure:"trigger_type"`
	Recency     float64 `json:"recency" yaml:"recency" mapstructure:"recency"`
	ICP         float64 `json:"icp" yaml:"icp" mapstructure:"icp"`
}

// IsZero reports whether no weight was configured.
func (w ScoreWeights) IsZero() bool {
	return w.Confidence == 0 && w.TriggerType == 0 && w.Recency == 0 && w.ICP == 0
}

// Budgets caps external calls per client per UTC day. Zero means unlimited.
type Budgets struct {
	SearchCalls     int `json:"search_calls,omitempty" yaml:"search_calls" mapstructure:"search_calls"`
	LLMCalls        int `json:"llm_calls,omitempty" yaml:"llm_calls" mapstructure:"llm_calls"`
	EnrichmentCalls int `json:"enrichment_calls,omitempty" yaml:"enrichment_calls" mapstructure:"enrichment_calls"`
}

// ClientStrategy is the per-tenant monitoring configuration.
type ClientStrategy struct {
	ClientID         string                  `json:"client_id" yaml:"client_id" mapstructure:"client_id"`
	Name             string                  `json:"name" yaml:"name" mapstructure:"name"`
	Active           bool                    `json:"active" yaml:"active" mapstructure:"active"`
	Frequency        Frequency               `json:"frequency" yaml:"frequency" mapstructure:"frequency"`
	DailyQuota       int                     `json:"daily_quota" yaml:"daily_quota" mapstructure:"daily_quota"`
	Scouts           []string                `json:"scouts,omitempty" yaml:"scouts" mapstructure:"scouts"`
	TriggerTypes     []TriggerType           `json:"trigger_types,omitempty" yaml:"trigger_types" mapstructure:"trigger_types"`
	Keywords         []string                `json:"keywords,omitempty" yaml:"keywords" mapstructure:"keywords"`
	NegativeKeywords []string                `json:"negative_keywords,omitempty" yaml:"negative_keywords" mapstructure:"negative_keywords"`
	ClassifierPrompt string                  `json:"classifier_prompt,omitempty" yaml:"classifier_prompt" mapstructure:"classifier_prompt"`
	MinConfidence    float64                 `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence"`
	MinDealScore     int                     `json:"min_deal_score" yaml:"min_deal_score" mapstructure:"min_deal_score"`
	MaxSignalAgeDays int                     `json:"max_signal_age_days" yaml:"max_signal_age_days" mapstructure:"max_signal_age_days"`
	ScoreWeights     ScoreWeights            `json:"score_weights" yaml:"score_weights" mapstructure:"score_weights"`
	TypeWeights      map[TriggerType]float64 `json:"type_weights,omitempty" yaml:"type_weights" mapstructure:"type_weights"`
	ICP              ICP                     `json:"icp" yaml:"icp" mapstructure:"icp"`
	Voice            Voice                   `json:"voice" yaml:"voice" mapstructure:"voice"`
	TargetTitles     []string                `json:"target_titles,omitempty" yaml:"target_titles" mapstructure:"target_titles"`
	MaxContacts      int                     `json:"max_contacts" yaml:"max_contacts" mapstructure:"max_contacts"`
	Budgets          Budgets                 `json:"budgets" yaml:"budgets" mapstructure:"budgets"`
}

// AllowsTrigger reports whether the strategy accepts the given trigger type.
// An empty TriggerTypes list accepts everything.
func (s ClientStrategy) AllowsTrigger(t TriggerType) bool {
	if len(s.TriggerTypes) == 0 {
		return true
	}
	for _, allowed := range s.TriggerTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// Signal is a candidate trigger event discovered by a scout.
type Signal struct {
	ID           string     `json:"id"`
	ClientID     string     `json:"client_id"`
	CompanyID    string     `json:"company_id"`
	Scout        string     `json:"scout"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet,omitempty"`
	Content      string     `json:"content,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	Fingerprint  string     `json:"fingerprint"`
	SnapshotURI  string     `json:"snapshot_uri,omitempty"`
}

// Text returns the best available text for classification.
func (s Signal) Text() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Title, s.Snippet, s.Content} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// Classification is the structured classifier verdict for one signal.
type Classification struct {
	Decision    Decision    `json:"decision"`
	TriggerType TriggerType `json:"trigger_type"`
	Confidence  float64     `json:"confidence"`
	Reasoning   string      `json:"reasoning,omitempty"`
	Summary     string      `json:"summary,omitempty"`
}

// Contact is a person found by enrichment.
type Contact struct {
	FullName    string `json:"full_name"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Title       string `json:"title,omitempty"`
	Email       string `json:"email,omitempty"`
	EmailStatus string `json:"email_status,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	Source      string `json:"source"`
}

// EmailDraft is an LLM-written outreach email.
type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Priority buckets deal scores.
type Priority string

// Lead priorities.
const (
	PriorityHot  Priority = "hot"
	PriorityWarm Priority = "warm"
	PriorityCold Priority = "cold"
)

// PriorityFor maps a 0-100 deal score onto a priority bucket.
func PriorityFor(score int) Priority {
	switch {
	case score >= 75:
		return PriorityHot
	case score >= 50:
		return PriorityWarm
	default:
		return PriorityCold
	}
}

// LeadStatus tracks outreach state.
type LeadStatus string

// Lead statuses.
const (
	LeadStatusNew      LeadStatus = "new"
	LeadStatusDrafted  LeadStatus = "drafted"
	LeadStatusEnriched LeadStatus = "enriched"
)

// Lead is a scored, classified trigger event ready for outreach.
type Lead struct {
	ID             string         `json:"id"`
	ClientID       string         `json:"client_id"`
	CompanyID      string         `json:"company_id"`
	CompanyName    string         `json:"company_name"`
	Signal         Signal         `json:"signal"`
	Classification Classification `json:"classification"`
	DealScore      int            `json:"deal_score"`
	Priority       Priority       `json:"priority"`
	Contacts       []Contact      `json:"contacts,omitempty"`
	Draft          *EmailDraft    `json:"draft,omitempty"`
	Status         LeadStatus     `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// LeadFilter narrows lead listings.
type LeadFilter struct {
	ClientID string
	MinScore int
	Limit    int
}

// ScanTask is one company queued for scanning within a run.
type ScanTask struct {
	RunID      string
	ClientID   string
	Company    Company
	Attempt    int
	EnqueuedAt time.Time
}

// RunStatus represents the lifecycle state of a scan run.
type RunStatus string

// Run status values.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// ScanCounters aggregates per-run statistics.
type ScanCounters struct {
	CompaniesQueued   int `json:"companies_queued"`
	CompaniesScanned  int `json:"companies_scanned"`
	CompaniesFailed   int `json:"companies_failed"`
	SignalsFound      int `json:"signals_found"`
	SignalsClassified int `json:"signals_classified"`
	LeadsCreated      int `json:"leads_created"`
	BudgetSkips       int `json:"budget_skips"`
}

// Add folds another counter set into c.
func (c *ScanCounters) Add(o ScanCounters) {
	c.CompaniesQueued += o.CompaniesQueued
	c.CompaniesScanned += o.CompaniesScanned
	c.CompaniesFailed += o.CompaniesFailed
	c.SignalsFound += o.SignalsFound
	c.SignalsClassified += o.SignalsClassified
	c.LeadsCreated += o.LeadsCreated
	c.BudgetSkips += o.BudgetSkips
}

// ScanRun is the record of one scan cycle.
type ScanRun struct {
	ID         string       `json:"id"`
	Trigger    string       `json:"trigger"`
	ClientID   string       `json:"client_id,omitempty"`
	Status     RunStatus    `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Counters   ScanCounters `json:"counters"`
	ErrorText  string       `json:"error_text,omitempty"`
}
