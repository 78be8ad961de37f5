package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) *time.Time {
	t := now.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

func TestComputeDealScoreFullMarks(t *testing.T) {
	t.Parallel()

	res := ComputeDealScore(Input{
		Classification: lead.Classification{
			Decision:    lead.DecisionTriggered,
			TriggerType: lead.TriggerFunding,
			Confidence:  1,
		},
		PublishedAt: &now,
		Now:         now,
	})

	require.Equal(t, 100, res.Score)
	require.Equal(t, lead.PriorityHot, res.Priority)
	require.InDelta(t, 1.0, res.Components.ICP, 1e-9)
}

func TestComputeDealScoreNonTriggeredIsZero(t *testing.T) {
	t.Parallel()

	for _, d := range []lead.Decision{lead.DecisionPass, lead.DecisionRejected, ""} {
		res := ComputeDealScore(Input{
			Classification: lead.Classification{Decision: d, TriggerType: lead.TriggerFunding, Confidence: 0.99},
			PublishedAt:    &now,
			Now:            now,
		})
		require.Zero(t, res.Score, "decision %q", d)
		require.Equal(t, lead.PriorityCold, res.Priority)
	}
}

func TestComputeDealScoreWeightedSum(t *testing.T) {
	t.Parallel()

	// confidence 0.8, hiring 0.8, 30 days old (0.5), no ICP criteria (1.0)
	// 0.40*0.8 + 0.25*0.8 + 0.20*0.5 + 0.15*1.0 = 0.77
	res := ComputeDealScore(Input{
		Classification: lead.Classification{
			Decision:    lead.DecisionTriggered,
			TriggerType: lead.TriggerHiring,
			Confidence:  80,
		},
		PublishedAt: daysAgo(30),
		Now:         now,
	})
	require.Equal(t, 77, res.Score)
	require.Equal(t, lead.PriorityHot, res.Priority)
	require.InDelta(t, 0.8, res.Components.Confidence, 1e-9)
	require.InDelta(t, 0.5, res.Components.Recency, 1e-9)
}

func TestComputeDealScoreDeterministic(t *testing.T) {
	t.Parallel()

	in := Input{
		Classification: lead.Classification{Decision: lead.DecisionTriggered, TriggerType: lead.TriggerAward, Confidence: 0.63},
		PublishedAt:    daysAgo(12),
		Company:        lead.Company{Industry: "SaaS", Country: "US", Employees: 120},
		Strategy: lead.ClientStrategy{
			ICP: lead.ICP{Industries: []string{"saas"}, Countries: []string{"DE"}, MinEmployees: 50, MaxEmployees: 500},
		},
		Now: now,
	}
	first := ComputeDealScore(in)
	for range 10 {
		require.Equal(t, first, ComputeDealScore(in))
	}
}

func TestRecency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pub  *time.Time
		want float64
	}{
		{name: "unknown", pub: nil, want: 0.5},
		{name: "now", pub: &now, want: 1},
		{name: "future", pub: func() *time.Time { f := now.Add(48 * time.Hour); return &f }(), want: 1},
		{name: "one half-life", pub: daysAgo(30), want: 0.5},
		{name: "two half-lives", pub: daysAgo(60), want: 0.25},
		{name: "beyond max age", pub: daysAgo(91), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tt.want, Recency(tt.pub, now, 0, 0), 1e-9)
		})
	}
}

func TestMaxAgeFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, 14*24*time.Hour, MaxAgeFor(lead.ClientStrategy{MaxSignalAgeDays: 14}, DefaultMaxAge))
	require.Equal(t, DefaultMaxAge, MaxAgeFor(lead.ClientStrategy{}, DefaultMaxAge))
	require.Zero(t, MaxAgeFor(lead.ClientStrategy{}, 0))
}

func TestICPMatch(t *testing.T) {
	t.Parallel()

	icp := lead.ICP{Industries: []string{"Fintech"}, Countries: []string{"US", "CA"}, MinEmployees: 10, MaxEmployees: 200}

	require.InDelta(t, 1.0, ICPMatch(lead.Company{Industry: "fintech", Country: "CA", Employees: 50}, icp), 1e-9)
	require.InDelta(t, 2.0/3.0, ICPMatch(lead.Company{Industry: "fintech", Country: "CA", Employees: 5000}, icp), 1e-9)
	require.InDelta(t, 0.5, ICPMatch(lead.Company{}, icp), 1e-9)
	require.InDelta(t, 1.0, ICPMatch(lead.Company{Industry: "retail"}, lead.ICP{}), 1e-9)
}

func TestNormalizeWeights(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultWeights, NormalizeWeights(lead.ScoreWeights{}))
	require.Equal(t, DefaultWeights, NormalizeWeights(lead.ScoreWeights{Confidence: -1}))

	w := NormalizeWeights(lead.ScoreWeights{Confidence: 2, TriggerType: 2, Recency: -5, ICP: 0})
	require.InDelta(t, 0.5, w.Confidence, 1e-9)
	require.InDelta(t, 0.5, w.TriggerType, 1e-9)
	require.Zero(t, w.Recency)
}

func TestTypeWeightOverrides(t *testing.T) {
	t.Parallel()

	overrides := map[lead.TriggerType]float64{lead.TriggerAward: 0.95, lead.TriggerHiring: 7}
	require.InDelta(t, 0.95, TypeWeight(lead.TriggerAward, overrides), 1e-9)
	require.InDelta(t, 1.0, TypeWeight(lead.TriggerHiring, overrides), 1e-9)
	require.InDelta(t, 1.0, TypeWeight(lead.TriggerFunding, overrides), 1e-9)
	require.InDelta(t, 0.3, TypeWeight("unheard_of", nil), 1e-9)
}

func TestNormalizeConfidence(t *testing.T) {
	t.Parallel()

	require.Zero(t, NormalizeConfidence(-0.2))
	require.InDelta(t, 0.42, NormalizeConfidence(0.42), 1e-9)
	require.InDelta(t, 0.42, NormalizeConfidence(42), 1e-9)
	require.InDelta(t, 1.0, NormalizeConfidence(250), 1e-9)
}
