// Package seed loads client strategies and monitored companies from a YAML
// document and writes them to the repositories.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

// Document is the seed file layout.
type Document struct {
	Strategies []Strategy `yaml:"strategies"`
	Companies  []Company  `yaml:"companies"`
}

// Strategy is a strategy row. Active defaults to true when omitted.
type Strategy lead.ClientStrategy

// UnmarshalYAML applies the Active default.
func (s *Strategy) UnmarshalYAML(node *yaml.Node) error {
	type plain lead.ClientStrategy
	out := plain{Active: true}
	if err := node.Decode(&out); err != nil {
		return err
	}
	*s = Strategy(out)
	return nil
}

// Company is a monitored company. Active defaults to true when omitted.
type Company lead.Company

// UnmarshalYAML applies the Active default.
func (c *Company) UnmarshalYAML(node *yaml.Node) error {
	type plain lead.Company
	out := plain{Active: true}
	if err := node.Decode(&out); err != nil {
		return err
	}
	*c = Company(out)
	return nil
}

// Targets are the repositories a document is written to.
type Targets struct {
	Strategies lead.StrategyRepository
	Companies  lead.CompanyStore
}

// Result counts what Apply wrote.
type Result struct {
	Strategies int
	Companies  int
}

// LoadFile parses the document at path.
func LoadFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a document, rejecting unknown keys.
func Parse(r io.Reader) (Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, errors.New("seed document is empty")
		}
		return Document{}, fmt.Errorf("decode seed document: %w", err)
	}
	return doc, nil
}

// Validate checks the document on its own. known lists client IDs that already
// have a strategy outside the document.
func (d Document) Validate(known ...string) error {
	var errs []error
	clients := make(map[string]struct{}, len(d.Strategies)+len(known))
	for _, id := range known {
		clients[id] = struct{}{}
	}

	seenStrategies := make(map[string]struct{}, len(d.Strategies))
	for i, s := range d.Strategies {
		id := strings.TrimSpace(s.ClientID)
		if id == "" {
			errs = append(errs, fmt.Errorf("strategies[%d]: client_id is required", i))
			continue
		}
		if _, dup := seenStrategies[id]; dup {
			errs = append(errs, fmt.Errorf("strategies[%d]: duplicate client_id %q", i, id))
		}
		seenStrategies[id] = struct{}{}
		clients[id] = struct{}{}
		errs = append(errs, validateStrategy(i, lead.ClientStrategy(s))...)
	}

	seenCompanies := make(map[string]struct{}, len(d.Companies))
	for i, c := range d.Companies {
		if strings.TrimSpace(c.ID) == "" {
			errs = append(errs, fmt.Errorf("companies[%d]: id is required", i))
		} else if _, dup := seenCompanies[c.ID]; dup {
			errs = append(errs, fmt.Errorf("companies[%d]: duplicate id %q", i, c.ID))
		}
		seenCompanies[c.ID] = struct{}{}
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, fmt.Errorf("companies[%d]: name is required", i))
		}
		if _, ok := clients[c.ClientID]; !ok {
			errs = append(errs, fmt.Errorf("companies[%d]: unknown client_id %q", i, c.ClientID))
		}
		if c.Employees < 0 {
			errs = append(errs, fmt.Errorf("companies[%d]: employees must be >= 0", i))
		}
	}
	return errors.Join(errs...)
}

func validateStrategy(i int, s lead.ClientStrategy) []error {
	var errs []error
	switch s.Frequency {
	case "", lead.FrequencyDaily, lead.FrequencyWeekly, lead.FrequencyBiweekly, lead.FrequencyMonthly:
	default:
		errs = append(errs, fmt.Errorf("strategies[%d]: unknown frequency %q", i, s.Frequency))
	}
	if s.DailyQuota < 0 {
		errs = append(errs, fmt.Errorf("strategies[%d]: daily_quota must be >= 0", i))
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("strategies[%d]: min_confidence must be within [0,1]", i))
	}
	if s.MinDealScore < 0 || s.MinDealScore > 100 {
		errs = append(errs, fmt.Errorf("strategies[%d]: min_deal_score must be within [0,100]", i))
	}
	known := lead.AllTriggerTypes()
	for _, t := range s.TriggerTypes {
		if !slices.Contains(known, t) {
			errs = append(errs, fmt.Errorf("strategies[%d]: unknown trigger type %q", i, t))
		}
	}
	for t, w := range s.TypeWeights {
		if !slices.Contains(known, t) {
			errs = append(errs, fmt.Errorf("strategies[%d]: unknown type_weights key %q", i, t))
		}
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Errorf("strategies[%d]: type_weights[%s] must be within [0,1]", i, t))
		}
	}
	return errs
}

// Apply validates doc against the stored strategies and upserts every row,
// strategies first.
func Apply(ctx context.Context, doc Document, targets Targets, logger *zap.Logger) (Result, error) {
	if targets.Strategies == nil || targets.Companies == nil {
		return Result{}, errors.New("strategy and company repositories are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("seed")

	existing, err := targets.Strategies.ListStrategies(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list strategies: %w", err)
	}
	known := make([]string, 0, len(existing))
	for _, s := range existing {
		known = append(known, s.ClientID)
	}
	if err := doc.Validate(known...); err != nil {
		return Result{}, fmt.Errorf("validate seed document: %w", err)
	}

	var res Result
	for _, s := range doc.Strategies {
		if err := targets.Strategies.UpsertStrategy(ctx, lead.ClientStrategy(s)); err != nil {
			return res, fmt.Errorf("upsert strategy %s: %w", s.ClientID, err)
		}
		res.Strategies++
	}
	for _, c := range doc.Companies {
		if err := targets.Companies.UpsertCompany(ctx, lead.Company(c)); err != nil {
			return res, fmt.Errorf("upsert company %s: %w", c.ID, err)
		}
		res.Companies++
	}
	logger.Info("seed applied",
		zap.Int("strategies", res.Strategies),
		zap.Int("companies", res.Companies),
	)
	return res, nil
}
