package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/progress"
	"github.com/JakeFAU/leadwatch/internal/telemetry"
)

// Tracker follows in-flight runs, folds company results into run counters and
// completes each run once all of its tasks have reported.
type Tracker struct {
	runs    lead.RunStore
	emitter progress.Emitter
	clock   lead.Clock
	logger  *zap.Logger

	mu     sync.Mutex
	active map[string]*runState
}

type runState struct {
	mu        sync.Mutex
	run       lead.ScanRun
	remaining int
	reporter  progress.Reporter
	done      chan struct{}
}

// NewTracker creates a Tracker persisting through runs.
func NewTracker(runs lead.RunStore, emitter progress.Emitter, clock lead.Clock, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		runs:    runs,
		emitter: emitter,
		clock:   clock,
		logger:  logger.Named("tracker"),
		active:  make(map[string]*runState),
	}
}

// Begin records a new run expecting total tasks. A run with no tasks completes immediately.
func (t *Tracker) Begin(ctx context.Context, run lead.ScanRun, total int) (lead.ScanRun, error) {
	run.Status = lead.RunStatusRunning
	run.Counters.CompaniesQueued = total
	if run.StartedAt.IsZero() {
		run.StartedAt = t.clock.Now().UTC()
	}
	if err := t.runs.CreateRun(ctx, run); err != nil {
		return lead.ScanRun{}, fmt.Errorf("create run: %w", err)
	}

	st := &runState{
		run:       run,
		remaining: total,
		reporter:  progress.NewReporter(t.emitter, run.ID, t.clock.Now),
		done:      make(chan struct{}),
	}
	st.reporter.Emit(progress.Event{Stage: progress.StageCycleStart, ClientID: run.ClientID, Note: run.Trigger})

	if total == 0 {
		st.mu.Lock()
		defer st.mu.Unlock()
		t.finish(ctx, st)
		return st.run, nil
	}

	t.mu.Lock()
	t.active[run.ID] = st
	t.mu.Unlock()
	t.logger.Info("run started", zap.String("run_id", run.ID), zap.String("trigger", run.Trigger), zap.Int("tasks", total))
	return run, nil
}

// Complete records the outcome of one task.
func (t *Tracker) Complete(ctx context.Context, task lead.ScanTask, res CompanyResult, taskErr error) {
	status := "success"
	stage := progress.StageCompanyDone
	note := ""
	if taskErr != nil {
		status = "error"
		stage = progress.StageCompanyError
		note = taskErr.Error()
	}
	telemetry.ObserveCompanyScan(task.ClientID, status, res.Duration)

	st := t.lookup(task.RunID)
	if st == nil {
		t.logger.Warn("task reported for unknown run", zap.String("run_id", task.RunID), zap.String("company_id", task.Company.ID))
		return
	}
	st.reporter.Emit(progress.Event{
		Stage:     stage,
		ClientID:  task.ClientID,
		CompanyID: task.Company.ID,
		Signals:   res.Signals,
		Leads:     len(res.Leads),
		Dur:       res.Duration,
		Note:      note,
	})

	st.mu.Lock()
	defer st.mu.Unlock()
	if taskErr != nil {
		st.run.Counters.CompaniesFailed++
	} else {
		st.run.Counters.CompaniesScanned++
	}
	st.run.Counters.Add(res.Counters())
	st.remaining--

	ctx = context.WithoutCancel(ctx)
	if st.remaining > 0 {
		if err := t.runs.UpdateRun(ctx, st.run.ID, st.run.Status, "", st.run.Counters); err != nil {
			t.logger.Warn("update run counters", zap.String("run_id", st.run.ID), zap.Error(err))
		}
		return
	}
	t.finish(ctx, st)
}

// Abandon fails n tasks of a run that will never be processed, such as tasks
// that could not be enqueued.
func (t *Tracker) Abandon(ctx context.Context, runID string, n int, reason error) {
	st := t.lookup(runID)
	if st == nil || n <= 0 {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	n = min(n, st.remaining)
	st.run.Counters.CompaniesFailed += n
	st.remaining -= n
	if reason != nil && st.run.ErrorText == "" {
		st.run.ErrorText = reason.Error()
	}
	if errors.Is(reason, context.Canceled) {
		st.run.Status = lead.RunStatusCanceled
	}
	if st.remaining == 0 {
		t.finish(context.WithoutCancel(ctx), st)
	}
}

// Running reports whether runID is still in flight.
func (t *Tracker) Running(runID string) bool {
	return t.lookup(runID) != nil
}

// ActiveRuns returns the IDs of in-flight runs.
func (t *Tracker) ActiveRuns() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until runID completes and returns the stored run.
func (t *Tracker) Wait(ctx context.Context, runID string) (lead.ScanRun, error) {
	if st := t.lookup(runID); st != nil {
		select {
		case <-st.done:
		case <-ctx.Done():
			return lead.ScanRun{}, fmt.Errorf("wait for run %s: %w", runID, ctx.Err())
		}
	}
	run, err := t.runs.GetRun(ctx, runID)
	if err != nil {
		return lead.ScanRun{}, fmt.Errorf("load run: %w", err)
	}
	return run, nil
}

func (t *Tracker) lookup(runID string) *runState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[runID]
}

// finish persists the terminal status. st.mu must be held.
func (t *Tracker) finish(ctx context.Context, st *runState) {
	c := st.run.Counters
	switch {
	case st.run.Status == lead.RunStatusCanceled:
	case c.CompaniesQueued > 0 && c.CompaniesScanned == 0:
		st.run.Status = lead.RunStatusFailed
		if st.run.ErrorText == "" {
			st.run.ErrorText = fmt.Sprintf("all %d companies failed", c.CompaniesFailed)
		}
	default:
		st.run.Status = lead.RunStatusSucceeded
	}
	now := t.clock.Now().UTC()
	st.run.FinishedAt = &now

	if err := t.runs.UpdateRun(ctx, st.run.ID, st.run.Status, st.run.ErrorText, c); err != nil {
		t.logger.Error("complete run", zap.String("run_id", st.run.ID), zap.Error(err))
	}
	telemetry.ObserveRun(string(st.run.Status))

	stage := progress.StageCycleDone
	if st.run.Status != lead.RunStatusSucceeded {
		stage = progress.StageCycleError
	}
	st.reporter.Emit(progress.Event{
		Stage:    stage,
		ClientID: st.run.ClientID,
		Signals:  c.SignalsFound,
		Leads:    c.LeadsCreated,
		Dur:      max(now.Sub(st.run.StartedAt), time.Duration(0)),
		Note:     st.run.ErrorText,
	})
	t.logger.Info("run finished",
		zap.String("run_id", st.run.ID),
		zap.String("status", string(st.run.Status)),
		zap.Int("scanned", c.CompaniesScanned),
		zap.Int("failed", c.CompaniesFailed),
		zap.Int("leads", c.LeadsCreated),
	)

	t.mu.Lock()
	delete(t.active, st.run.ID)
	t.mu.Unlock()
	close(st.done)
}
