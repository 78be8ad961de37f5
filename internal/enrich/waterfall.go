package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/resilience"
)

// PeopleSearcher finds people at a company.
type PeopleSearcher interface {
	SearchPeople(ctx context.Context, domain string, titles []string, limit int) ([]lead.Contact, error)
}

// EmailFinder finds one person's email.
type EmailFinder interface {
	FindEmail(ctx context.Context, domain, fullName string) (email, status string, err error)
}

// Budget reserves paid calls for a client.
type Budget interface {
	Reserve(ctx context.Context, strategy lead.ClientStrategy, service string, n int) error
}

// Config holds waterfall defaults.
type Config struct {
	MaxContacts  int
	TargetTitles []string
}

// Waterfall runs people search first and falls back to email lookup for
// contacts without a verified address.
type Waterfall struct {
	people PeopleSearcher
	emails EmailFinder
	caller *resilience.Caller
	budget Budget
	cfg    Config
	logger *zap.Logger
}

// NewWaterfall creates a Waterfall. emails and budget may be nil.
func NewWaterfall(people PeopleSearcher, emails EmailFinder, caller *resilience.Caller, budget Budget, cfg Config, logger *zap.Logger) *Waterfall {
	if cfg.MaxContacts <= 0 {
		cfg.MaxContacts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Waterfall{people: people, emails: emails, caller: caller, budget: budget, cfg: cfg, logger: logger.Named("enrich")}
}

// FindContacts implements lead.ContactFinder. Contacts found before a budget
// error are returned along with it.
func (w *Waterfall) FindContacts(ctx context.Context, company lead.Company, strategy lead.ClientStrategy) ([]lead.Contact, error) {
	domain := Domain(company.Domain)
	if domain == "" {
		return nil, nil
	}
	limit := strategy.MaxContacts
	if limit <= 0 {
		limit = w.cfg.MaxContacts
	}
	titles := strategy.TargetTitles
	if len(titles) == 0 {
		titles = w.cfg.TargetTitles
	}

	if err := w.reserve(ctx, strategy); err != nil {
		return nil, err
	}
	var people []lead.Contact
	err := w.caller.Call(ctx, resilience.ServiceEnrichment, func(ctx context.Context) error {
		var err error
		people, err = w.people.SearchPeople(ctx, domain, titles, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("people search for %s: %w", company.Name, err)
	}
	if len(people) > limit {
		people = people[:limit]
	}

	for i := range people {
		if w.emails == nil || Verified(people[i].EmailStatus) && people[i].Email != "" {
			continue
		}
		if err := w.reserve(ctx, strategy); err != nil {
			return people, err
		}
		var email, status string
		err := w.caller.Call(ctx, resilience.ServiceEnrichment, func(ctx context.Context) error {
			var err error
			email, status, err = w.emails.FindEmail(ctx, domain, people[i].FullName)
			return err
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, resilience.ErrCircuitOpen) {
				return people, fmt.Errorf("email lookup for %s: %w", company.Name, err)
			}
			w.logger.Debug("email lookup failed",
				zap.String("company_id", company.ID),
				zap.String("contact", people[i].FullName),
				zap.Error(err))
			continue
		}
		if email == "" {
			continue
		}
		people[i].Email = email
		people[i].EmailStatus = status
		people[i].Source = people[i].Source + "+" + SourceAnymailfinder
	}
	return people, nil
}

func (w *Waterfall) reserve(ctx context.Context, strategy lead.ClientStrategy) error {
	if w.budget == nil {
		return nil
	}
	return w.budget.Reserve(ctx, strategy, resilience.ServiceEnrichment, 1)
}

// Verified reports whether an email status is trustworthy enough to send to.
func Verified(status string) bool {
	switch strings.ToLower(status) {
	case "verified", "valid":
		return true
	default:
		return false
	}
}

// Domain reduces a URL or hostname to a bare registrable host.
func Domain(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
