package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JakeFAU/leadwatch/internal/extract"
	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/llm"
	"github.com/JakeFAU/leadwatch/internal/resilience"
)

// ErrMalformedResponse is returned when the model output cannot be parsed.
var ErrMalformedResponse = errors.New("malformed classifier response")

const defaultSystemPrompt = `You review news, blog and social posts about a company and decide whether ` +
	`they describe a sales trigger event for the client. Answer "triggered" only for concrete, recent ` +
	`events. Answer "rejected" for irrelevant or negative content and "pass" when unsure.`

// Budget reserves paid calls for a client.
type Budget interface {
	Reserve(ctx context.Context, strategy lead.ClientStrategy, service string, n int) error
}

// Config tunes the LLM classifier.
type Config struct {
	Temperature float32
	MaxRunes    int
}

// LLMClassifier asks a generative model for a structured verdict.
type LLMClassifier struct {
	gen    llm.Generator
	caller *resilience.Caller
	budget Budget
	cfg    Config
	logger *zap.Logger
}

// NewLLMClassifier creates a classifier. budget may be nil.
func NewLLMClassifier(gen llm.Generator, caller *resilience.Caller, budget Budget, cfg Config, logger *zap.Logger) *LLMClassifier {
	if cfg.MaxRunes <= 0 {
		cfg.MaxRunes = 6000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMClassifier{gen: gen, caller: caller, budget: budget, cfg: cfg, logger: logger.Named("classifier")}
}

type response struct {
	Decision    string  `json:"decision"`
	TriggerType string  `json:"trigger_type"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
	Summary     string  `json:"summary"`
}

// Classify reserves an LLM call, sends the prompt and normalizes the verdict.
func (c *LLMClassifier) Classify(ctx context.Context, req lead.ClassifyRequest) (lead.Classification, error) {
	if c.budget != nil {
		if err := c.budget.Reserve(ctx, req.Strategy, resilience.ServiceLLM, 1); err != nil {
			return lead.Classification{}, err
		}
	}
	genReq := llm.Request{
		System:      systemPrompt(req.Strategy),
		Prompt:      c.prompt(req),
		Schema:      responseSchema(),
		Temperature: c.cfg.Temperature,
	}
	var out lead.Classification
	err := c.caller.Call(ctx, resilience.ServiceLLM, func(ctx context.Context) error {
		text, err := c.gen.Generate(ctx, genReq)
		if err != nil {
			return err
		}
		parsed, err := Parse(text)
		if err != nil {
			return resilience.Permanent(err)
		}
		out = parsed
		return nil
	})
	if err != nil {
		return lead.Classification{}, fmt.Errorf("classify signal %s: %w", req.Signal.ID, err)
	}
	out = Apply(out, req.Strategy)
	c.logger.Debug("signal classified",
		zap.String("signal_id", req.Signal.ID),
		zap.String("decision", string(out.Decision)),
		zap.String("trigger_type", string(out.TriggerType)),
		zap.Float64("confidence", out.Confidence),
	)
	return out, nil
}

// Parse decodes model output into a Classification. Trigger types are
// normalized and confidence may be given as 0-1 or 0-100.
func Parse(text string) (lead.Classification, error) {
	var r response
	if err := json.Unmarshal([]byte(llm.StripFences(text)), &r); err != nil {
		return lead.Classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	decision, ok := lead.ParseDecision(r.Decision)
	if !ok {
		return lead.Classification{}, fmt.Errorf("%w: unknown decision %q", ErrMalformedResponse, r.Decision)
	}
	return lead.Classification{
		Decision:    decision,
		TriggerType: lead.ParseTriggerType(r.TriggerType),
		Confidence:  normalizeConfidence(r.Confidence),
		Reasoning:   strings.TrimSpace(r.Reasoning),
		Summary:     strings.TrimSpace(r.Summary),
	}, nil
}

// Apply downgrades a triggered verdict to pass when the trigger type is not
// enabled for the client or the confidence is below the client minimum.
func Apply(c lead.Classification, strategy lead.ClientStrategy) lead.Classification {
	if c.Decision != lead.DecisionTriggered {
		return c
	}
	if !strategy.AllowsTrigger(c.TriggerType) {
		c.Decision = lead.DecisionPass
		c.Reasoning = strings.TrimSpace(c.Reasoning + " (trigger type not enabled for client)")
		return c
	}
	if c.Confidence < strategy.MinConfidence {
		c.Decision = lead.DecisionPass
		c.Reasoning = strings.TrimSpace(c.Reasoning + " (below minimum confidence)")
	}
	return c
}

func normalizeConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	return math.Min(v, 1)
}

func systemPrompt(s lead.ClientStrategy) string {
	if p := strings.TrimSpace(s.ClassifierPrompt); p != "" {
		return defaultSystemPrompt + "\n\nClient instructions:\n" + p
	}
	return defaultSystemPrompt
}

func (c *LLMClassifier) prompt(req lead.ClassifyRequest) string {
	var b strings.Builder
	co := req.Company
	fmt.Fprintf(&b, "Company: %s\n", co.Name)
	if co.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", co.Domain)
	}
	if co.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", co.Industry)
	}
	if co.Country != "" {
		fmt.Fprintf(&b, "Country: %s\n", co.Country)
	}
	if co.Employees > 0 {
		fmt.Fprintf(&b, "Employees: %d\n", co.Employees)
	}

	types := req.Strategy.TriggerTypes
	if len(types) == 0 {
		types = lead.AllTriggerTypes()
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	fmt.Fprintf(&b, "Trigger types of interest: %s\n", strings.Join(names, ", "))
	if len(req.Strategy.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(req.Strategy.Keywords, ", "))
	}

	sig := req.Signal
	fmt.Fprintf(&b, "\nSource (%s): %s\n", sig.Scout, sig.URL)
	if sig.PublishedAt != nil {
		fmt.Fprintf(&b, "Published: %s\n", sig.PublishedAt.UTC().Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Text:\n%s\n", extract.Truncate(sig.Text(), c.cfg.MaxRunes))
	b.WriteString("\nReturn decision, trigger_type, confidence (0-1), reasoning and a one-sentence summary.")
	return b.String()
}

func responseSchema() *genai.Schema {
	types := lead.AllTriggerTypes()
	enum := make([]string, 0, len(types))
	for _, t := range types {
		enum = append(enum, string(t))
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"decision": {
				Type: genai.TypeString,
				Enum: []string{string(lead.DecisionTriggered), string(lead.DecisionPass), string(lead.DecisionRejected)},
			},
			"trigger_type": {Type: genai.TypeString, Enum: enum},
			"confidence":   {Type: genai.TypeNumber},
			"reasoning":    {Type: genai.TypeString},
			"summary":      {Type: genai.TypeString},
		},
		Required: []string{"decision", "trigger_type", "confidence", "reasoning"},
	}
}
