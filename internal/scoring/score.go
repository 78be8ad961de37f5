// Package scoring computes the deterministic 0-100 deal score for a classified signal.
//
// The score is a weighted sum of four components, each normalised to [0,1]:
// classifier confidence, trigger-type weight, recency of the event and ICP fit
// of the company. Only triggered classifications score above zero.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

// Defaults used when a strategy leaves a knob unset.
const (
	DefaultHalfLife = 30 * 24 * time.Hour
	DefaultMaxAge   = 90 * 24 * time.Hour
	unknownRecency  = 0.5
	unknownICP      = 0.5
)

// DefaultWeights are applied when a strategy configures no weights at all.
var DefaultWeights = lead.ScoreWeights{
	Confidence:  0.40,
	TriggerType: 0.25,
	Recency:     0.20,
	ICP:         0.15,
}

var defaultTypeWeights = map[lead.TriggerType]float64{
	lead.TriggerFunding:          1.0,
	lead.TriggerLeadershipChange: 0.9,
	lead.TriggerHiring:           0.8,
	lead.TriggerExpansion:        0.75,
	lead.TriggerProductLaunch:    0.6,
	lead.TriggerPartnership:      0.6,
	lead.TriggerAward:            0.5,
	lead.TriggerOther:            0.3,
}

// DefaultTypeWeight returns the built-in weight for a trigger type.
func DefaultTypeWeight(t lead.TriggerType) float64 {
	if w, ok := defaultTypeWeights[t]; ok {
		return w
	}
	return defaultTypeWeights[lead.TriggerOther]
}

// Input is everything the calculator needs. Now anchors the recency decay.
type Input struct {
	Classification lead.Classification
	PublishedAt    *time.Time
	Company        lead.Company
	Strategy       lead.ClientStrategy
	Now            time.Time
	HalfLife       time.Duration
	MaxAge         time.Duration
}

// Components exposes the normalised inputs and the weights applied to them.
type Components struct {
	Confidence float64          `json:"confidence"`
	TypeWeight float64          `json:"type_weight"`
	Recency    float64          `json:"recency"`
	ICP        float64          `json:"icp"`
	Weights    lead.ScoreWeights `json:"weights"`
}

// Result is the calculated score with its breakdown.
type Result struct {
	Score      int           `json:"score"`
	Priority   lead.Priority `json:"priority"`
	Components Components    `json:"components"`
}

// ComputeDealScore returns the deal score for in. It never fails and has no side effects.
func ComputeDealScore(in Input) Result {
	weights := NormalizeWeights(in.Strategy.ScoreWeights)
	comp := Components{
		Confidence: NormalizeConfidence(in.Classification.Confidence),
		TypeWeight: TypeWeight(in.Classification.TriggerType, in.Strategy.TypeWeights),
		Recency:    Recency(in.PublishedAt, in.Now, in.HalfLife, in.MaxAge),
		ICP:        ICPMatch(in.Company, in.Strategy.ICP),
		Weights:    weights,
	}
	if in.Classification.Decision != lead.DecisionTriggered {
		return Result{Score: 0, Priority: lead.PriorityCold, Components: comp}
	}

	raw := weights.Confidence*comp.Confidence +
		weights.TriggerType*comp.TypeWeight +
		weights.Recency*comp.Recency +
		weights.ICP*comp.ICP
	score := int(math.Round(100 * raw))
	score = max(0, min(100, score))
	return Result{Score: score, Priority: lead.PriorityFor(score), Components: comp}
}

// NormalizeConfidence maps a model confidence onto [0,1].
// Values above 1 are read as percentages.
func NormalizeConfidence(c float64) float64 {
	if math.IsNaN(c) || c <= 0 {
		return 0
	}
	if c > 1 {
		c /= 100
	}
	return math.Min(c, 1)
}

// TypeWeight resolves the weight for t, preferring overrides.
func TypeWeight(t lead.TriggerType, overrides map[lead.TriggerType]float64) float64 {
	if w, ok := overrides[t]; ok {
		return clamp01(w)
	}
	return DefaultTypeWeight(t)
}

// MaxAgeFor returns the recency cut-off for a strategy: MaxSignalAgeDays when
// set, otherwise fallback.
func MaxAgeFor(s lead.ClientStrategy, fallback time.Duration) time.Duration {
	if s.MaxSignalAgeDays > 0 {
		return time.Duration(s.MaxSignalAgeDays) * 24 * time.Hour
	}
	return fallback
}

// Recency decays exponentially with the event age.
func Recency(published *time.Time, now time.Time, halfLife, maxAge time.Duration) float64 {
	if published == nil || published.IsZero() {
		return unknownRecency
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	age := now.Sub(*published)
	if age <= 0 {
		return 1
	}
	if age > maxAge {
		return 0
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// ICPMatch returns the fraction of defined ICP criteria the company satisfies.
func ICPMatch(company lead.Company, icp lead.ICP) float64 {
	var defined, matched float64

	if len(icp.Industries) > 0 {
		defined++
		matched += matchList(company.Industry, icp.Industries)
	}
	if len(icp.Countries) > 0 {
		defined++
		matched += matchList(company.Country, icp.Countries)
	}
	if icp.MinEmployees > 0 || icp.MaxEmployees > 0 {
		defined++
		switch {
		case company.Employees <= 0:
			matched += unknownICP
		case icp.MinEmployees > 0 && company.Employees < icp.MinEmployees:
		case icp.MaxEmployees > 0 && company.Employees > icp.MaxEmployees:
		default:
			matched++
		}
	}
	if defined == 0 {
		return 1
	}
	return matched / defined
}

func matchList(value string, allowed []string) float64 {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return unknownICP
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), value) {
			return 1
		}
	}
	return 0
}

// NormalizeWeights clamps negatives to zero and rescales to sum to 1.
// An all-zero set falls back to DefaultWeights.
func NormalizeWeights(w lead.ScoreWeights) lead.ScoreWeights {
	w.Confidence = math.Max(w.Confidence, 0)
	w.TriggerType = math.Max(w.TriggerType, 0)
	w.Recency = math.Max(w.Recency, 0)
	w.ICP = math.Max(w.ICP, 0)
	sum := w.Confidence + w.TriggerType + w.Recency + w.ICP
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return DefaultWeights
	}
	return lead.ScoreWeights{
		Confidence:  w.Confidence / sum,
		TriggerType: w.TriggerType / sum,
		Recency:     w.Recency / sum,
		ICP:         w.ICP / sum,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
