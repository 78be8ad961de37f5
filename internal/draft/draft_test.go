package draft

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/llm"
	"github.com/JakeFAU/leadwatch/internal/resilience"
)

type fakeGenerator struct {
	reply string
	calls int
	last  llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	return f.reply, nil
}

func caller() *resilience.Caller {
	return resilience.NewCaller(resilience.NewRegistry(resilience.Config{}, nil, zap.NewNop()), nil)
}

func draftRequest(maxWords int) lead.DraftRequest {
	return lead.DraftRequest{
		Company: lead.Company{Name: "Acme"},
		Strategy: lead.ClientStrategy{Voice: lead.Voice{
			Tone:          "warm",
			SenderName:    "Dana",
			SenderCompany: "Deskly",
			ValueProp:     "ergonomic office fit-outs",
			CallToAction:  "a 15 minute call",
			MaxWords:      maxWords,
		}},
		Contact:        lead.Contact{FullName: "Sam Lee", FirstName: "Sam", Title: "COO"},
		Signal:         lead.Signal{URL: "https://acme.com/news/office", Title: "Acme opens Austin office"},
		Classification: lead.Classification{TriggerType: lead.TriggerExpansion, Summary: "Acme opened a new office in Austin."},
	}
}

func TestDrafterDraft(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: `{"subject":" Congrats on Austin ","body":"Hi Sam. Saw the Austin news. Happy to help fit it out. Free Tuesday?"}`}
	d := New(gen, caller(), nil, Config{}, zap.NewNop())

	got, err := d.Draft(context.Background(), draftRequest(12))
	require.NoError(t, err)
	require.Equal(t, "Congrats on Austin", got.Subject)
	require.Equal(t, "Hi Sam. Saw the Austin news. Happy to help fit it out.", got.Body)

	require.Contains(t, gen.last.Prompt, "Write to Sam (COO) at Acme.")
	require.Contains(t, gen.last.Prompt, "Acme opened a new office in Austin.")
	require.Contains(t, gen.last.Prompt, "Dana (Deskly)")
	require.Contains(t, gen.last.Prompt, "under 12 words")
}

func TestDrafterMalformed(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: `{"subject":"","body":"x"}`}
	d := New(gen, caller(), nil, Config{}, zap.NewNop())

	_, err := d.Draft(context.Background(), draftRequest(0))
	require.ErrorIs(t, err, ErrMalformedDraft)
	require.Equal(t, 1, gen.calls)
	require.Contains(t, gen.last.Prompt, "under 120 words")
}

func TestLimitWords(t *testing.T) {
	t.Parallel()

	require.Equal(t, "one two three", LimitWords("one two three", 5))
	require.Equal(t, "One. Two.", LimitWords("One. Two. Three four five", 3))
	require.Equal(t, "one two…", LimitWords("one two three four", 2))
	require.Equal(t, "Hi Sam,\n\nCongrats on the raise.", LimitWords("Hi Sam,\n\nCongrats on the raise. Want to chat next week?", 6))
	require.Equal(t, "Saw the news on acme.com today…", LimitWords("Saw the news on acme.com today and more", 6))
	require.Equal(t, `He said "great."`, LimitWords(`He said "great." Then left`, 4))
}
