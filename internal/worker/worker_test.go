package worker

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
	"github.com/JakeFAU/leadwatch/internal/monitor"
	"github.com/JakeFAU/leadwatch/internal/queue/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []lead.ScanTask
	errs  []error
	block bool
}

func (p *fakeProcessor) ScanCompany(ctx context.Context, task lead.ScanTask) (monitor.CompanyResult, error) {
	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, task)
	var err error
	if n < len(p.errs) {
		err = p.errs[n]
	}
	p.mu.Unlock()
	if p.block {
		<-ctx.Done()
		return monitor.CompanyResult{}, ctx.Err()
	}
	if err != nil {
		return monitor.CompanyResult{ScoutErrors: 1}, err
	}
	return monitor.CompanyResult{Signals: 2, Classified: 2}, nil
}

func (p *fakeProcessor) attempts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.calls))
	for _, c := range p.calls {
		out = append(out, c.Attempt)
	}
	return out
}

type outcome struct {
	task lead.ScanTask
	res  monitor.CompanyResult
	err  error
}

type fakeReporter struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (r *fakeReporter) Complete(_ context.Context, task lead.ScanTask, res monitor.CompanyResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome{task: task, res: res, err: err})
}

func (r *fakeReporter) snapshot() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outcome(nil), r.outcomes...)
}

func runWorker(t *testing.T, w *Worker) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	return cancel, done
}

func task(companyID string) lead.ScanTask {
	return lead.ScanTask{RunID: "run-1", ClientID: "k1", Company: lead.Company{ID: companyID}}
}

func TestWorkerReportsSuccess(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	proc := &fakeProcessor{}
	rep := &fakeReporter{}
	w := New(1, q, proc, rep, Config{}, zap.NewNop())
	cancel, done := runWorker(t, w)
	defer func() { cancel(); <-done }()

	require.NoError(t, q.Enqueue(context.Background(), task("c1")))
	require.Eventually(t, func() bool { return len(rep.snapshot()) == 1 }, time.Second, 10*time.Millisecond)

	got := rep.snapshot()[0]
	require.NoError(t, got.err)
	require.Equal(t, "c1", got.task.Company.ID)
	require.Equal(t, 2, got.res.Signals)
}

func TestWorkerRetriesBeforeReporting(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	proc := &fakeProcessor{errs: []error{errors.New("search down"), errors.New("search down")}}
	rep := &fakeReporter{}
	w := New(1, q, proc, rep, Config{MaxAttempts: 3}, zap.NewNop())
	cancel, done := runWorker(t, w)
	defer func() { cancel(); <-done }()

	require.NoError(t, q.Enqueue(context.Background(), task("c1")))
	require.Eventually(t, func() bool { return len(rep.snapshot()) == 1 }, time.Second, 10*time.Millisecond)

	require.Equal(t, []int{0, 1, 2}, proc.attempts())
	got := rep.snapshot()[0]
	require.NoError(t, got.err)
	require.Equal(t, 2, got.task.Attempt)
}

func TestWorkerReportsFailureAfterLastAttempt(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	boom := errors.New("search down")
	proc := &fakeProcessor{errs: []error{boom, boom}}
	rep := &fakeReporter{}
	w := New(1, q, proc, rep, Config{MaxAttempts: 2}, zap.NewNop())
	cancel, done := runWorker(t, w)
	defer func() { cancel(); <-done }()

	require.NoError(t, q.Enqueue(context.Background(), task("c1")))
	require.Eventually(t, func() bool { return len(rep.snapshot()) == 1 }, time.Second, 10*time.Millisecond)

	got := rep.snapshot()[0]
	require.ErrorIs(t, got.err, boom)
	require.Equal(t, 1, got.res.ScoutErrors)
	require.Len(t, proc.attempts(), 2)
}

func TestWorkerDoesNotRetryNotFound(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	proc := &fakeProcessor{errs: []error{lead.ErrNotFound}}
	rep := &fakeReporter{}
	w := New(1, q, proc, rep, Config{MaxAttempts: 3}, zap.NewNop())
	cancel, done := runWorker(t, w)
	defer func() { cancel(); <-done }()

	require.NoError(t, q.Enqueue(context.Background(), task("c1")))
	require.Eventually(t, func() bool { return len(rep.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	require.Len(t, proc.attempts(), 1)
}

func TestWorkerTaskTimeout(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	proc := &fakeProcessor{block: true}
	rep := &fakeReporter{}
	w := New(1, q, proc, rep, Config{TaskTimeout: 20 * time.Millisecond}, zap.NewNop())
	cancel, done := runWorker(t, w)
	defer func() { cancel(); <-done }()

	require.NoError(t, q.Enqueue(context.Background(), task("c1")))
	require.Eventually(t, func() bool { return len(rep.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	require.ErrorIs(t, rep.snapshot()[0].err, context.DeadlineExceeded)
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	w := New(1, q, &fakeProcessor{}, nil, Config{}, zap.NewNop())
	cancel, done := runWorker(t, w)
	defer cancel()

	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}
