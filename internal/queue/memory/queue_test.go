package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan lead.ScanTask, 1)
	errCh := make(chan error, 1)

	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- task
	}()

	task := lead.ScanTask{RunID: "run-1", ClientID: "k1", Company: lead.Company{ID: "c1"}}
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.Company.ID != "c1" || got.RunID != "run-1" {
			t.Fatalf("unexpected task %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), lead.ScanTask{RunID: "primed"}); err != nil {
		t.Fatalf("failed to prime queue: %v", err)
	}
	if qEnqueue.Len() != 1 {
		t.Fatalf("expected 1 buffered task, got %d", qEnqueue.Len())
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, lead.ScanTask{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsBufferedTasks(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.Enqueue(context.Background(), lead.ScanTask{RunID: "run-1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()
	if err := q.Enqueue(context.Background(), lead.ScanTask{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on enqueue, got %v", err)
	}
	task, err := q.Dequeue(context.Background())
	if err != nil || task.RunID != "run-1" {
		t.Fatalf("expected buffered task, got %+v err=%v", task, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
