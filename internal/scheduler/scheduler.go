// Package scheduler starts scan cycles on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/monitor"
	"github.com/JakeFAU/leadwatch/internal/schedule"
)

// DefaultSpec runs a cycle at the top of every hour.
const DefaultSpec = "0 * * * *"

// Starter begins a scan cycle.
type Starter interface {
	Start(ctx context.Context, opts monitor.StartOptions) (lead.ScanRun, error)
}

// RunTracker reports whether a run is still in flight.
type RunTracker interface {
	Running(runID string) bool
}

// Config controls the schedule.
type Config struct {
	// Spec is a standard five-field cron expression evaluated in UTC.
	Spec string
	// MaxTasks caps the tasks enqueued per tick. Zero means no cap.
	MaxTasks int
}

// Scheduler triggers cycles and skips ticks while the previous run is active.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	runs    RunTracker
	cfg     Config
	logger  *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	lastRun string
	started bool
}

// New validates cfg and creates a Scheduler.
func New(starter Starter, runs RunTracker, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if starter == nil || runs == nil {
		return nil, errors.New("starter and run tracker are required")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", cfg.Spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		starter: starter,
		runs:    runs,
		cfg:     cfg,
		logger:  logger,
		ctx:     context.Background(),
	}, nil
}

// Start registers the cycle job and starts the cron loop. ctx is handed to
// every cycle the scheduler starts.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already running")
	}
	if _, err := s.cron.AddFunc(s.cfg.Spec, func() { s.Tick() }); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	s.ctx = ctx
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.cfg.Spec))
	return nil
}

// Stop halts the cron loop and waits for a running tick, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Next returns the next scheduled tick after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(s.cfg.Spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.UTC())
}

// Tick starts one cycle unless the previous scheduled run is still active.
// It reports whether a cycle was started.
func (s *Scheduler) Tick() bool {
	s.mu.Lock()
	ctx, last := s.ctx, s.lastRun
	s.mu.Unlock()

	if last != "" && s.runs.Running(last) {
		s.logger.Info("previous run still in flight; skipping tick", zap.String("run_id", last))
		return false
	}
	run, err := s.starter.Start(ctx, monitor.StartOptions{
		Trigger: monitor.TriggerCron,
		Options: schedule.Options{MaxTasks: s.cfg.MaxTasks},
	})
	if err != nil {
		s.logger.Error("scheduled cycle failed", zap.Error(err))
	}
	if run.ID == "" {
		return false
	}
	s.mu.Lock()
	s.lastRun = run.ID
	s.mu.Unlock()
	return true
}

type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
