// Package classify decides whether a signal is a trigger event for a client.
package classify

import (
	"strings"
	"time"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

// Verdict is the outcome of the keyword prefilter.
type Verdict struct {
	// Skip is true when the signal should not reach the LLM.
	Skip           bool
	Classification lead.Classification
}

// hintTerms are cheap lexical cues per trigger type.
var hintTerms = map[lead.TriggerType][]string{
	lead.TriggerHiring:           {"hiring", "join our team", "careers", "job opening", "we're growing", "now hiring"},
	lead.TriggerFunding:          {"raises", "raised", "funding", "series a", "series b", "series c", "seed round", "investment", "investors"},
	lead.TriggerLeadershipChange: {"appoints", "appointed", "new ceo", "joins as", "promoted", "named chief", "hires"},
	lead.TriggerAward:            {"award", "wins", "winner", "recognized", "honored"},
	lead.TriggerExpansion:        {"expands", "expansion", "new office", "opens", "new location", "enters"},
	lead.TriggerPartnership:      {"partnership", "partners with", "teams up", "alliance"},
	lead.TriggerProductLaunch:    {"launches", "launched", "introduces", "unveils", "now available"},
}

// Prefilter screens signals without calling the LLM.
type Prefilter struct {
	clock lead.Clock
}

// NewPrefilter creates a Prefilter.
func NewPrefilter(clock lead.Clock) *Prefilter {
	return &Prefilter{clock: clock}
}

// Check rejects signals that contain a negative keyword, are older than the
// strategy's max age or carry no text. Signals that mention none of the
// strategy keywords or trigger hints pass when the strategy lists keywords.
func (p *Prefilter) Check(signal lead.Signal, strategy lead.ClientStrategy) Verdict {
	text := strings.ToLower(signal.Text())
	if strings.TrimSpace(text) == "" {
		return reject("no text")
	}
	for _, neg := range strategy.NegativeKeywords {
		if n := strings.ToLower(strings.TrimSpace(neg)); n != "" && strings.Contains(text, n) {
			return reject("negative keyword: " + n)
		}
	}
	if strategy.MaxSignalAgeDays > 0 && signal.PublishedAt != nil {
		maxAge := time.Duration(strategy.MaxSignalAgeDays) * 24 * time.Hour
		if p.clock.Now().Sub(*signal.PublishedAt) > maxAge {
			return reject("older than max signal age")
		}
	}
	if len(strategy.Keywords) == 0 {
		return Verdict{}
	}
	for _, kw := range strategy.Keywords {
		if k := strings.ToLower(strings.TrimSpace(kw)); k != "" && strings.Contains(text, k) {
			return Verdict{}
		}
	}
	if hasHint(text, strategy) {
		return Verdict{}
	}
	return Verdict{
		Skip: true,
		Classification: lead.Classification{
			Decision:    lead.DecisionPass,
			TriggerType: lead.TriggerOther,
			Reasoning:   "no keyword or trigger hint in text",
		},
	}
}

// hasHint reports whether text mentions a hint for any allowed trigger type.
func hasHint(text string, strategy lead.ClientStrategy) bool {
	for _, t := range lead.AllTriggerTypes() {
		if !strategy.AllowsTrigger(t) {
			continue
		}
		for _, term := range hintTerms[t] {
			if strings.Contains(text, term) {
				return true
			}
		}
	}
	return false
}

func reject(reason string) Verdict {
	return Verdict{
		Skip: true,
		Classification: lead.Classification{
			Decision:    lead.DecisionRejected,
			TriggerType: lead.TriggerOther,
			Reasoning:   reason,
		},
	}
}
