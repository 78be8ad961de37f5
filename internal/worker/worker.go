// Package worker implements the scan task execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/monitor"
	"github.com/JakeFAU/leadwatch/internal/telemetry"
)

const requeueTimeout = 5 * time.Second

// Processor scans one company.
type Processor interface {
	ScanCompany(ctx context.Context, task lead.ScanTask) (monitor.CompanyResult, error)
}

// Reporter receives the final outcome of every task.
type Reporter interface {
	Complete(ctx context.Context, task lead.ScanTask, res monitor.CompanyResult, err error)
}

// Config controls Worker behavior.
type Config struct {
	// TaskTimeout bounds a single company scan (default 5m).
	TaskTimeout time.Duration
	// MaxAttempts is the number of tries per task before it is reported as failed (default 1).
	MaxAttempts int
}

// Worker consumes scan tasks and runs them through the processor.
type Worker struct {
	id        int
	queue     lead.Queue
	processor Processor
	reporter  Reporter
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	id int,
	queue lead.Queue,
	processor Processor,
	reporter Reporter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		id:        id,
		queue:     queue,
		processor: processor,
		reporter:  reporter,
		cfg:       cfg,
		logger:    logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming tasks until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, lead.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task",
			zap.String("run_id", task.RunID),
			zap.String("company_id", task.Company.ID),
			zap.Int("attempt", task.Attempt),
		)
		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task lead.ScanTask) {
	telemetry.IncActiveWorkers()
	defer telemetry.DecActiveWorkers()

	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	res, err := w.processor.ScanCompany(taskCtx, task)
	cancel()

	if err != nil && w.retryable(ctx, task, err) {
		if w.requeue(ctx, task, err) {
			return
		}
	}
	if err != nil {
		w.logger.Warn("scan task failed",
			zap.String("run_id", task.RunID),
			zap.String("company_id", task.Company.ID),
			zap.Int("attempt", task.Attempt),
			zap.Error(err),
		)
	}
	if w.reporter != nil {
		w.reporter.Complete(ctx, task, res, err)
	}
}

func (w *Worker) retryable(ctx context.Context, task lead.ScanTask, err error) bool {
	if task.Attempt+1 >= w.cfg.MaxAttempts || ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, lead.ErrNotFound) && !errors.Is(err, context.Canceled)
}

// requeue puts the task back with its attempt bumped and reports whether it succeeded.
func (w *Worker) requeue(ctx context.Context, task lead.ScanTask, cause error) bool {
	next := task
	next.Attempt++
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()
	if err := w.queue.Enqueue(reqCtx, next); err != nil {
		w.logger.Error("requeue task failed",
			zap.String("run_id", task.RunID),
			zap.String("company_id", task.Company.ID),
			zap.Error(fmt.Errorf("requeue after %v: %w", cause, err)),
		)
		return false
	}
	w.logger.Info("scan task requeued",
		zap.String("run_id", task.RunID),
		zap.String("company_id", task.Company.ID),
		zap.Int("attempt", next.Attempt),
		zap.Error(cause),
	)
	return true
}
