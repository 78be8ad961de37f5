// Package draft writes personalized outreach emails for qualified leads.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/llm"
	"github.com/JakeFAU/leadwatch/internal/resilience"
)

// ErrMalformedDraft is returned when the model output is not a usable email.
var ErrMalformedDraft = errors.New("malformed email draft")

const (
	defaultMaxWords = 120
	systemPrompt    = `You write short, specific B2B outreach emails. Reference the trigger event ` +
		`naturally in the first sentence, avoid hype and never invent facts. Respond with JSON ` +
		`containing "subject" and "body".`
)

// Budget reserves paid calls for a client.
type Budget interface {
	Reserve(ctx context.Context, strategy lead.ClientStrategy, service string, n int) error
}

// Config tunes drafting.
type Config struct {
	Temperature float32
	MaxWords    int
}

// Drafter implements lead.EmailDrafter on an llm.Generator.
type Drafter struct {
	gen    llm.Generator
	caller *resilience.Caller
	budget Budget
	cfg    Config
	logger *zap.Logger
}

// New creates a Drafter. budget may be nil.
func New(gen llm.Generator, caller *resilience.Caller, budget Budget, cfg Config, logger *zap.Logger) *Drafter {
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = defaultMaxWords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafter{gen: gen, caller: caller, budget: budget, cfg: cfg, logger: logger.Named("drafter")}
}

// Draft generates a subject and body, then enforces the word limit.
func (d *Drafter) Draft(ctx context.Context, req lead.DraftRequest) (lead.EmailDraft, error) {
	if d.budget != nil {
		if err := d.budget.Reserve(ctx, req.Strategy, resilience.ServiceLLM, 1); err != nil {
			return lead.EmailDraft{}, err
		}
	}
	limit := req.Strategy.Voice.MaxWords
	if limit <= 0 {
		limit = d.cfg.MaxWords
	}
	genReq := llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(req, limit),
		Schema:      schema(),
		Temperature: d.cfg.Temperature,
	}

	var out lead.EmailDraft
	err := d.caller.Call(ctx, resilience.ServiceLLM, func(ctx context.Context) error {
		text, err := d.gen.Generate(ctx, genReq)
		if err != nil {
			return err
		}
		parsed, err := parse(text)
		if err != nil {
			return resilience.Permanent(err)
		}
		out = parsed
		return nil
	})
	if err != nil {
		return lead.EmailDraft{}, fmt.Errorf("draft email for %s: %w", req.Company.Name, err)
	}
	out.Body = LimitWords(out.Body, limit)
	return out, nil
}

func parse(text string) (lead.EmailDraft, error) {
	var out lead.EmailDraft
	if err := json.Unmarshal([]byte(llm.StripFences(text)), &out); err != nil {
		return lead.EmailDraft{}, fmt.Errorf("%w: %v", ErrMalformedDraft, err)
	}
	out.Subject = strings.TrimSpace(out.Subject)
	out.Body = strings.TrimSpace(out.Body)
	if out.Subject == "" || out.Body == "" {
		return lead.EmailDraft{}, fmt.Errorf("%w: empty subject or body", ErrMalformedDraft)
	}
	return out, nil
}

// LimitWords truncates body to at most limit words, cutting back to the last
// word that ends a sentence when one falls inside the limit. Whitespace between
// the kept words, paragraph breaks included, is preserved.
func LimitWords(body string, limit int) string {
	if limit <= 0 {
		return body
	}
	spans := wordSpans(body, limit+1)
	if len(spans) <= limit {
		return body
	}
	for i := limit - 1; i >= 0; i-- {
		if endsSentence(body[spans[i][0]:spans[i][1]]) {
			return body[:spans[i][1]]
		}
	}
	return body[:spans[limit-1][1]] + "…"
}

// wordSpans returns the byte offsets of up to n whitespace-separated words.
func wordSpans(s string, n int) [][2]int {
	var spans [][2]int
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, [2]int{start, i})
				if len(spans) == n {
					return spans
				}
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, [2]int{start, len(s)})
	}
	return spans
}

func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"')”’`)
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

func buildPrompt(req lead.DraftRequest, maxWords int) string {
	v := req.Strategy.Voice
	var b strings.Builder
	fmt.Fprintf(&b, "Write to %s", firstNonEmpty(req.Contact.FirstName, req.Contact.FullName, "the team"))
	if req.Contact.Title != "" {
		fmt.Fprintf(&b, " (%s)", req.Contact.Title)
	}
	fmt.Fprintf(&b, " at %s.\n", req.Company.Name)
	fmt.Fprintf(&b, "Trigger (%s): %s\n", req.Classification.TriggerType,
		firstNonEmpty(req.Classification.Summary, req.Signal.Title))
	if req.Signal.URL != "" {
		fmt.Fprintf(&b, "Source: %s\n", req.Signal.URL)
	}
	if v.SenderName != "" || v.SenderCompany != "" {
		fmt.Fprintf(&b, "Sender: %s %s\n", v.SenderName, strings.TrimSpace(wrap(v.SenderCompany)))
	}
	if v.ValueProp != "" {
		fmt.Fprintf(&b, "What we offer: %s\n", v.ValueProp)
	}
	if v.CallToAction != "" {
		fmt.Fprintf(&b, "Call to action: %s\n", v.CallToAction)
	}
	fmt.Fprintf(&b, "Tone: %s\n", firstNonEmpty(v.Tone, "friendly and professional"))
	fmt.Fprintf(&b, "Keep the body under %d words.", maxWords)
	return b.String()
}

func wrap(s string) string {
	if s == "" {
		return ""
	}
	return "(" + s + ")"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func schema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"subject": {Type: genai.TypeString},
			"body":    {Type: genai.TypeString},
		},
		Required: []string{"subject", "body"},
	}
}
