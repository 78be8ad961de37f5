package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCycleStart   Stage = "CYCLE_START"
	StageCycleDone    Stage = "CYCLE_DONE"
	StageCycleError   Stage = "CYCLE_ERROR"
	StageCompanyStart Stage = "COMPANY_START"
	StageCompanyDone  Stage = "COMPANY_DONE"
	StageCompanyError Stage = "COMPANY_ERROR"
	StageSignal       Stage = "SIGNAL"
	StageLead         Stage = "LEAD"
	StageBudgetSkip   Stage = "BUDGET_SKIP"
)

// Event captures a single step of scan progress.
type Event struct {
	// RunID identifies the scan run.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// ClientID and CompanyID scope company, signal and lead events.
	ClientID  string
	CompanyID string
	// Scout names the scout for signal events.
	Scout string
	// URL is the signal source, when relevant.
	URL string
	// Signals and Leads carry counts for company completions.
	Signals int
	Leads   int
	// Score is the deal score for lead events.
	Score int
	// Dur captures company and cycle latency.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCycleStart, StageCycleDone, StageCycleError:
	case StageCompanyStart, StageCompanyDone, StageCompanyError, StageSignal, StageLead, StageBudgetSkip:
		if e.ClientID == "" {
			return fmt.Errorf("%s requires client id", e.Stage)
		}
		if e.CompanyID == "" {
			return fmt.Errorf("%s requires company id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// IsCycle reports whether the event belongs to the run lifecycle.
func (e Event) IsCycle() bool {
	switch e.Stage {
	case StageCycleStart, StageCycleDone, StageCycleError:
		return true
	default:
		return false
	}
}
