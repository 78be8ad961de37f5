package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/schedule"
)

// Triggers recorded on runs.
const (
	TriggerCron    = "cron"
	TriggerAPI     = "api"
	TriggerCLI     = "cli"
	TriggerCompany = "company"
)

// StrategyCatalog refreshes and snapshots merged strategies.
type StrategyCatalog interface {
	Refresh(ctx context.Context) error
	Snapshot() map[string]lead.ClientStrategy
}

// Enqueuer accepts scan tasks for the workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, task lead.ScanTask) error
}

// CycleDeps are the collaborators of a Cycle.
type CycleDeps struct {
	Strategies StrategyCatalog
	Companies  lead.CompanyStore
	Queue      Enqueuer
	Tracker    *Tracker
	IDs        lead.IDGenerator
	Clock      lead.Clock
	Logger     *zap.Logger
}

// StartOptions select what a cycle scans.
type StartOptions struct {
	Trigger string
	schedule.Options
}

// Cycle turns the due queue into a tracked run of scan tasks.
type Cycle struct {
	deps   CycleDeps
	logger *zap.Logger
}

// NewCycle wires a Cycle.
func NewCycle(deps CycleDeps) (*Cycle, error) {
	if deps.Strategies == nil || deps.Companies == nil || deps.Queue == nil || deps.Tracker == nil {
		return nil, errors.New("strategies, companies, queue and tracker are required")
	}
	if deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("id generator and clock are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Cycle{deps: deps, logger: deps.Logger.Named("cycle")}, nil
}

// Preview computes the due queue without starting a run.
func (c *Cycle) Preview(ctx context.Context, opts schedule.Options) ([]lead.ScanTask, error) {
	return Due(ctx, c.deps.Strategies, c.deps.Companies, c.deps.Clock.Now(), opts, c.logger)
}

// Start refreshes strategies, computes the due queue, records a run and
// enqueues its tasks. It returns once every task is queued.
func (c *Cycle) Start(ctx context.Context, opts StartOptions) (lead.ScanRun, error) {
	tasks, err := c.Preview(ctx, opts.Options)
	if err != nil {
		return lead.ScanRun{}, err
	}

	runID, err := c.deps.IDs.NewID()
	if err != nil {
		return lead.ScanRun{}, fmt.Errorf("generate run id: %w", err)
	}
	trigger := opts.Trigger
	if trigger == "" {
		trigger = TriggerAPI
	}
	now := c.deps.Clock.Now().UTC()
	run, err := c.deps.Tracker.Begin(ctx, lead.ScanRun{
		ID:        runID,
		Trigger:   trigger,
		ClientID:  opts.ClientID,
		StartedAt: now,
	}, len(tasks))
	if err != nil {
		return lead.ScanRun{}, err
	}

	for i, task := range tasks {
		task.RunID = runID
		task.EnqueuedAt = now
		if err := c.deps.Queue.Enqueue(ctx, task); err != nil {
			c.deps.Tracker.Abandon(ctx, runID, len(tasks)-i, err)
			return run, fmt.Errorf("enqueue task %d/%d: %w", i+1, len(tasks), err)
		}
	}
	c.logger.Info("cycle queued",
		zap.String("run_id", runID),
		zap.String("trigger", trigger),
		zap.Int("tasks", len(tasks)),
	)
	return run, nil
}

// RunSync starts a cycle and waits for it to finish.
func (c *Cycle) RunSync(ctx context.Context, opts StartOptions) (lead.ScanRun, error) {
	run, err := c.Start(ctx, opts)
	if err != nil {
		return run, err
	}
	return c.deps.Tracker.Wait(ctx, run.ID)
}

// Due refreshes strategies and computes the scan queue as of at. A failed
// refresh falls back to the cached strategies when any are loaded. An unknown
// opts.ClientID is reported as lead.ErrNotFound.
func Due(
	ctx context.Context,
	catalog StrategyCatalog,
	companies lead.CompanyStore,
	at time.Time,
	opts schedule.Options,
	logger *zap.Logger,
) ([]lead.ScanTask, error) {
	if err := catalog.Refresh(ctx); err != nil {
		if len(catalog.Snapshot()) == 0 {
			return nil, fmt.Errorf("refresh strategies: %w", err)
		}
		logger.Warn("strategy refresh failed; using cached strategies", zap.Error(err))
	}
	strategies := catalog.Snapshot()
	if opts.ClientID != "" {
		if _, ok := strategies[opts.ClientID]; !ok {
			return nil, fmt.Errorf("client %s: %w", opts.ClientID, lead.ErrNotFound)
		}
	}
	list, err := companies.ListActiveCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return schedule.DueCompanies(list, strategies, at, opts), nil
}
