package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/registry/internal/queue"
)

func TestWorker_RunOnceSuccess(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore(3)
	ctx := context.Background()

	created, err := store.Create(ctx, queue.NewJob{StepName: queue.StepEntityResolution, TargetType: "corpus"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	var handled int64
	w := New(store, zerolog.Nop(), Options{WorkerID: "test-worker"})
	w.Register(queue.StepEntityResolution, func(_ context.Context, job queue.Job) error {
		handled = job.JobID
		return nil
	})

	worked, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !worked {
		t.Fatal("expected a job to be claimed")
	}
	if handled != created.JobID {
		t.Fatalf("expected handler to see job %d, got %d", created.JobID, handled)
	}

	job, err := store.Get(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != queue.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", job.Status)
	}
}

func TestWorker_RunOnceFailureIsRetryable(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore(3)
	ctx := context.Background()

	created, err := store.Create(ctx, queue.NewJob{StepName: queue.StepMentionBackfill, TargetType: "corpus"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	w := New(store, zerolog.Nop(), Options{WorkerID: "test-worker"})
	w.Register(queue.StepMentionBackfill, func(context.Context, queue.Job) error {
		return errors.New("scan blew up")
	})

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	job, err := store.Get(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != queue.StatusFailedRetryable {
		t.Fatalf("expected retryable failure, got %s", job.Status)
	}
	if job.LastError == nil || *job.LastError != "scan blew up" {
		t.Fatalf("expected error message to be recorded, got %v", job.LastError)
	}
}

func TestWorker_UnknownStepIsSkipped(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore(3)
	ctx := context.Background()

	created, err := store.Create(ctx, queue.NewJob{StepName: "mystery_step", TargetType: "corpus"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	w := New(store, zerolog.Nop(), Options{WorkerID: "test-worker"})
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	job, err := store.Get(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != queue.StatusSkipped {
		t.Fatalf("expected skipped, got %s", job.Status)
	}
}

func TestWorker_CancelledMidRunIsBenign(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore(3)
	ctx := context.Background()

	created, err := store.Create(ctx, queue.NewJob{StepName: queue.StepEntityResolution, TargetType: "corpus"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	w := New(store, zerolog.Nop(), Options{WorkerID: "test-worker"})
	w.Register(queue.StepEntityResolution, func(context.Context, queue.Job) error {
		// An operator cancels the job while the handler holds the lease.
		if err := store.Cancel(ctx, created.JobID); err != nil {
			t.Errorf("cancel mid-run: %v", err)
		}
		return nil
	})

	worked, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("expected mid-run cancel to be benign, got %v", err)
	}
	if !worked {
		t.Fatal("expected the job to have been claimed")
	}

	job, err := store.Get(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != queue.StatusCancelled {
		t.Fatalf("expected the cancel to win, got %s", job.Status)
	}
}

func TestWorker_RunOnceIdle(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore(3)
	w := New(store, zerolog.Nop(), Options{WorkerID: "test-worker"})

	worked, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if worked {
		t.Fatal("expected no work on an empty queue")
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := queue.NewMemoryStore(3)
	w := New(store, zerolog.Nop(), Options{WorkerID: "test-worker", PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestWorker_GeneratedIdentity(t *testing.T) {
	t.Parallel()

	w := New(queue.NewMemoryStore(3), zerolog.Nop(), Options{})
	if w.WorkerID() == "" {
		t.Fatal("expected a generated worker id")
	}
}
