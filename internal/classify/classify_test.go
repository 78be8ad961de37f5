package classify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/clock/system"
	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/llm"
	"github.com/JakeFAU/leadwatch/internal/resilience"
)

var now = time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return f.replies[len(f.replies)-1], nil
}

type fakeBudget struct {
	err   error
	calls int
}

func (f *fakeBudget) Reserve(context.Context, lead.ClientStrategy, string, int) error {
	f.calls++
	return f.err
}

func newCaller(retries int) *resilience.Caller {
	cfg := resilience.Config{Retry: resilience.RetryConfig{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}}
	return resilience.NewCaller(resilience.NewRegistry(cfg, nil, zap.NewNop()), nil)
}

func request() lead.ClassifyRequest {
	published := now.AddDate(0, 0, -2)
	return lead.ClassifyRequest{
		Company: lead.Company{ID: "c1", Name: "Acme", Domain: "acme.com", Industry: "software"},
		Strategy: lead.ClientStrategy{
			ClientID:         "client-a",
			ClassifierPrompt: "We sell office furniture.",
			TriggerTypes:     []lead.TriggerType{lead.TriggerFunding, lead.TriggerExpansion},
			MinConfidence:    0.6,
		},
		Signal: lead.Signal{ID: "s1", Scout: "news", URL: "https://news.example/acme", Title: "Acme raises $40M", PublishedAt: &published},
	}
}

func TestPrefilter(t *testing.T) {
	t.Parallel()

	p := NewPrefilter(system.Fixed{At: now})
	strategy := lead.ClientStrategy{
		Keywords:         []string{"new office"},
		NegativeKeywords: []string{"Layoffs"},
		MaxSignalAgeDays: 30,
	}
	old := now.AddDate(0, 0, -45)

	tests := []struct {
		name     string
		signal   lead.Signal
		skip     bool
		decision lead.Decision
	}{
		{name: "empty", signal: lead.Signal{}, skip: true, decision: lead.DecisionRejected},
		{name: "negative keyword", signal: lead.Signal{Title: "Acme announces layoffs"}, skip: true, decision: lead.DecisionRejected},
		{name: "too old", signal: lead.Signal{Title: "Acme opens new office", PublishedAt: &old}, skip: true, decision: lead.DecisionRejected},
		{name: "keyword hit", signal: lead.Signal{Snippet: "Acme moves into a NEW OFFICE downtown"}},
		{name: "trigger hint", signal: lead.Signal{Title: "Acme raises Series B"}},
		{name: "nothing relevant", signal: lead.Signal{Title: "Acme CEO on podcast"}, skip: true, decision: lead.DecisionPass},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := p.Check(tc.signal, strategy)
			require.Equal(t, tc.skip, v.Skip)
			if tc.skip {
				require.Equal(t, tc.decision, v.Classification.Decision)
			}
		})
	}

	v := p.Check(lead.Signal{Title: "Acme CEO on podcast"}, lead.ClientStrategy{})
	require.False(t, v.Skip, "strategies without keywords send everything to the model")
}

func TestParse(t *testing.T) {
	t.Parallel()

	c, err := Parse("```json\n{\"decision\":\"Triggered\",\"trigger_type\":\"new office\",\"confidence\":85,\"reasoning\":\" opened \",\"summary\":\"s\"}\n```")
	require.NoError(t, err)
	require.Equal(t, lead.DecisionTriggered, c.Decision)
	require.Equal(t, lead.TriggerExpansion, c.TriggerType)
	require.InDelta(t, 0.85, c.Confidence, 1e-9)
	require.Equal(t, "opened", c.Reasoning)

	c, err = Parse(`{"decision":"pass","trigger_type":"weather","confidence":-3}`)
	require.NoError(t, err)
	require.Equal(t, lead.TriggerOther, c.TriggerType)
	require.Zero(t, c.Confidence)

	c, err = Parse(`{"decision":"triggered","trigger_type":"funding","confidence":250}`)
	require.NoError(t, err)
	require.Equal(t, 1.0, c.Confidence)

	_, err = Parse("I think this is a funding event")
	require.ErrorIs(t, err, ErrMalformedResponse)

	_, err = Parse(`{"decision":"maybe"}`)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestApplyDowngrades(t *testing.T) {
	t.Parallel()

	strategy := lead.ClientStrategy{TriggerTypes: []lead.TriggerType{lead.TriggerFunding}, MinConfidence: 0.7}

	got := Apply(lead.Classification{Decision: lead.DecisionTriggered, TriggerType: lead.TriggerHiring, Confidence: 0.9}, strategy)
	require.Equal(t, lead.DecisionPass, got.Decision)

	got = Apply(lead.Classification{Decision: lead.DecisionTriggered, TriggerType: lead.TriggerFunding, Confidence: 0.5}, strategy)
	require.Equal(t, lead.DecisionPass, got.Decision)

	got = Apply(lead.Classification{Decision: lead.DecisionTriggered, TriggerType: lead.TriggerFunding, Confidence: 0.7}, strategy)
	require.Equal(t, lead.DecisionTriggered, got.Decision)

	got = Apply(lead.Classification{Decision: lead.DecisionRejected, TriggerType: lead.TriggerHiring}, strategy)
	require.Equal(t, lead.DecisionRejected, got.Decision)
}

func TestLLMClassifierClassify(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{`{"decision":"triggered","trigger_type":"funding","confidence":0.92,"reasoning":"Series B","summary":"Acme raised $40M"}`}}
	budget := &fakeBudget{}
	c := NewLLMClassifier(gen, newCaller(0), budget, Config{Temperature: 0.2}, zap.NewNop())

	got, err := c.Classify(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, lead.DecisionTriggered, got.Decision)
	require.Equal(t, lead.TriggerFunding, got.TriggerType)
	require.Equal(t, "Acme raised $40M", got.Summary)
	require.Equal(t, 1, budget.calls)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	require.Contains(t, req.System, "We sell office furniture.")
	require.Contains(t, req.Prompt, "Company: Acme")
	require.Contains(t, req.Prompt, "funding, expansion")
	require.Contains(t, req.Prompt, "Acme raises $40M")
	require.NotNil(t, req.Schema)
	require.Equal(t, float32(0.2), req.Temperature)
}

func TestLLMClassifierMalformedIsNotRetried(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{"not json"}}
	c := NewLLMClassifier(gen, newCaller(3), nil, Config{}, zap.NewNop())

	_, err := c.Classify(context.Background(), request())
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.Len(t, gen.requests, 1)
}

func TestLLMClassifierRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		errs:    []error{errors.New("503 unavailable")},
		replies: []string{"", `{"decision":"rejected","trigger_type":"other","confidence":0.9,"reasoning":"unrelated"}`},
	}
	c := NewLLMClassifier(gen, newCaller(2), nil, Config{}, zap.NewNop())

	got, err := c.Classify(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, lead.DecisionRejected, got.Decision)
	require.Len(t, gen.requests, 2)
}

func TestLLMClassifierBudgetExhausted(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{"{}"}}
	c := NewLLMClassifier(gen, newCaller(0), &fakeBudget{err: lead.ErrBudgetExhausted}, Config{}, zap.NewNop())

	_, err := c.Classify(context.Background(), request())
	require.ErrorIs(t, err, lead.ErrBudgetExhausted)
	require.Empty(t, gen.requests)
}
