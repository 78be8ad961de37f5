package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

type fakeRepo struct {
	mu    sync.Mutex
	rows  []lead.ClientStrategy
	err   error
	calls int
}

func (f *fakeRepo) ListStrategies(context.Context) ([]lead.ClientStrategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rows, f.err
}

func (f *fakeRepo) UpsertStrategy(_ context.Context, s lead.ClientStrategy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, s)
	return nil
}

func (f *fakeRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var defaults = lead.ClientStrategy{
	Frequency:     lead.FrequencyWeekly,
	DailyQuota:    25,
	Scouts:        []string{"blog", "news"},
	Keywords:      []string{"hiring"},
	MinConfidence: 0.6,
	MinDealScore:  50,
	ScoreWeights:  lead.ScoreWeights{Confidence: 1, TriggerType: 1, Recency: 1, ICP: 1},
	TypeWeights:   map[lead.TriggerType]float64{lead.TriggerAward: 0.4, lead.TriggerHiring: 0.8},
	Voice:         lead.Voice{Tone: "friendly", SenderName: "Sam", MaxWords: 120},
	MaxContacts:   3,
	Budgets:       lead.Budgets{LLMCalls: 100, SearchCalls: 200},
}

func TestMergeInheritsDefaults(t *testing.T) {
	t.Parallel()

	row := lead.ClientStrategy{
		ClientID:    "acme",
		Active:      true,
		Frequency:   lead.FrequencyDaily,
		Keywords:    []string{"funding"},
		TypeWeights: map[lead.TriggerType]float64{lead.TriggerAward: 0.9},
		Voice:       lead.Voice{Tone: "formal"},
		Budgets:     lead.Budgets{LLMCalls: 10},
	}
	got := Merge(defaults, row)

	require.Equal(t, "acme", got.Name)
	require.Equal(t, lead.FrequencyDaily, got.Frequency)
	require.Equal(t, 25, got.DailyQuota)
	require.Equal(t, []string{"blog", "news"}, got.Scouts)
	require.Equal(t, []string{"funding"}, got.Keywords)
	require.Equal(t, defaults.ScoreWeights, got.ScoreWeights)
	require.Equal(t, map[lead.TriggerType]float64{lead.TriggerAward: 0.9, lead.TriggerHiring: 0.8}, got.TypeWeights)
	require.Equal(t, lead.Voice{Tone: "formal", SenderName: "Sam", MaxWords: 120}, got.Voice)
	require.Equal(t, lead.Budgets{LLMCalls: 10, SearchCalls: 200}, got.Budgets)
	require.True(t, got.Active)

	// defaults are not mutated by the map merge
	require.InDelta(t, 0.4, defaults.TypeWeights[lead.TriggerAward], 1e-9)
}

func TestStoreRefreshAndGet(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{rows: []lead.ClientStrategy{
		{ClientID: "b", Active: true},
		{ClientID: "a", Active: true, MinDealScore: 70},
		{Name: "orphan"},
	}}
	s := NewStore(repo, defaults, zap.NewNop())
	require.NoError(t, s.Refresh(context.Background()))

	a, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, 70, a.MinDealScore)
	_, ok = s.Get("missing")
	require.False(t, ok)

	all := s.All()
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ClientID)
	require.Equal(t, "b", all[1].ClientID)
	require.Len(t, s.Snapshot(), 2)
	require.False(t, s.LoadedAt().IsZero())
}

func TestStoreRefreshErrorKeepsPrevious(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{rows: []lead.ClientStrategy{{ClientID: "a"}}}
	s := NewStore(repo, defaults, zap.NewNop())
	require.NoError(t, s.Refresh(context.Background()))

	repo.err = errors.New("db down")
	require.ErrorContains(t, s.Refresh(context.Background()), "db down")
	_, ok := s.Get("a")
	require.True(t, ok)
}

func TestStartAutoRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &fakeRepo{}
	s := NewStore(repo, defaults, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	s.StartAutoRefresh(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return repo.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return goleak.Find() == nil }, time.Second, 10*time.Millisecond)
}
