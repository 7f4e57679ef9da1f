package queue

import (
	"context"
	"testing"
	"time"

	"horse.fit/registry/internal/globaltime"
)

func mustCreate(t *testing.T, store *MemoryStore, job NewJob) Job {
	t.Helper()
	created, err := store.Create(context.Background(), job)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return created
}

func TestMemoryStore_LeaseIsExclusive(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	mustCreate(t, store, NewJob{StepName: StepEntityResolution, TargetType: "corpus"})

	first, err := store.Lease(ctx, "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("first lease: %v", err)
	}
	if first == nil {
		t.Fatal("expected first lease to claim the job")
	}
	if first.Status != StatusRunning || first.Attempts != 1 {
		t.Fatalf("unexpected leased job state: status=%s attempts=%d", first.Status, first.Attempts)
	}

	second, err := store.Lease(ctx, "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if second != nil {
		t.Fatalf("expected no job for the second worker, got job_id=%d", second.JobID)
	}
}

func TestMemoryStore_LeaseOrdering(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	globaltime.SetMockTime(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	older := mustCreate(t, store, NewJob{StepName: StepMentionBackfill, TargetType: "corpus"})

	globaltime.SetMockTime(time.Date(2026, 2, 1, 9, 1, 0, 0, time.UTC))
	mustCreate(t, store, NewJob{StepName: StepMentionBackfill, TargetType: "corpus"})
	urgent := mustCreate(t, store, NewJob{StepName: StepEntityResolution, TargetType: "corpus", Priority: 10})

	leased, err := store.Lease(ctx, "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if leased == nil || leased.JobID != urgent.JobID {
		t.Fatalf("expected highest priority job %d first, got %+v", urgent.JobID, leased)
	}

	leased, err = store.Lease(ctx, "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if leased == nil || leased.JobID != older.JobID {
		t.Fatalf("expected oldest job %d next, got %+v", older.JobID, leased)
	}
}

func TestMemoryStore_ExpiredLeaseIsReclaimable(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(start)
	defer globaltime.ResetTime()

	created := mustCreate(t, store, NewJob{StepName: StepEntityResolution, TargetType: "corpus"})

	if leased, err := store.Lease(ctx, "worker-a", 15*time.Minute); err != nil || leased == nil {
		t.Fatalf("initial lease failed: job=%v err=%v", leased, err)
	}

	// Inside the lease window the job is invisible.
	globaltime.SetMockTime(start.Add(10 * time.Minute))
	if leased, err := store.Lease(ctx, "worker-b", 15*time.Minute); err != nil || leased != nil {
		t.Fatalf("expected live lease to block reclaim: job=%v err=%v", leased, err)
	}

	globaltime.SetMockTime(start.Add(16 * time.Minute))
	reclaimed, err := store.Lease(ctx, "worker-b", 15*time.Minute)
	if err != nil {
		t.Fatalf("reclaim lease: %v", err)
	}
	if reclaimed == nil || reclaimed.JobID != created.JobID {
		t.Fatalf("expected job %d to be reclaimed, got %+v", created.JobID, reclaimed)
	}
	if reclaimed.Attempts != 2 {
		t.Fatalf("expected reclaim to count as attempt 2, got %d", reclaimed.Attempts)
	}
	if reclaimed.LockedBy == nil || *reclaimed.LockedBy != "worker-b" {
		t.Fatalf("expected worker-b to hold the lease, got %v", reclaimed.LockedBy)
	}
}

func TestMemoryStore_RetryUntilPermanent(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	created := mustCreate(t, store, NewJob{StepName: StepMentionBackfill, TargetType: "corpus"})

	// Attempt 1 fails with attempts remaining.
	if leased, err := store.Lease(ctx, "worker-a", time.Minute); err != nil || leased == nil {
		t.Fatalf("lease attempt 1: job=%v err=%v", leased, err)
	}
	if err := store.Complete(ctx, created.JobID, StatusFailedRetryable, "boom"); err != nil {
		t.Fatalf("complete attempt 1: %v", err)
	}
	job, err := store.Get(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusFailedRetryable {
		t.Fatalf("expected retryable after attempt 1, got %s", job.Status)
	}

	// Attempt 2 exhausts the budget.
	if leased, err := store.Lease(ctx, "worker-a", time.Minute); err != nil || leased == nil {
		t.Fatalf("lease attempt 2: job=%v err=%v", leased, err)
	}
	if err := store.Complete(ctx, created.JobID, StatusFailedRetryable, "boom again"); err != nil {
		t.Fatalf("complete attempt 2: %v", err)
	}
	job, err = store.Get(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusFailedPermanent {
		t.Fatalf("expected permanent failure after exhausting attempts, got %s", job.Status)
	}

	if leased, err := store.Lease(ctx, "worker-a", time.Minute); err != nil || leased != nil {
		t.Fatalf("expected permanently failed job to be unleasable: job=%v err=%v", leased, err)
	}

	attempts, err := store.Attempts(ctx, created.JobID)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempt records, got %d", len(attempts))
	}
	if attempts[0].Status != StatusFailedRetryable || attempts[1].Status != StatusFailedPermanent {
		t.Fatalf("unexpected attempt outcomes: %s, %s", attempts[0].Status, attempts[1].Status)
	}
}

func TestMemoryStore_CompleteSuccess(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	created := mustCreate(t, store, NewJob{StepName: StepEntityResolution, TargetType: "corpus"})
	if leased, err := store.Lease(ctx, "worker-a", time.Minute); err != nil || leased == nil {
		t.Fatalf("lease: job=%v err=%v", leased, err)
	}
	if err := store.Complete(ctx, created.JobID, StatusSucceeded, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	job, err := store.Get(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", job.Status)
	}
	if job.LockedBy != nil || job.LockedAt != nil {
		t.Fatal("expected lease fields to be cleared on completion")
	}
}

func TestMemoryStore_CompleteRequiresLegalTransition(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	created := mustCreate(t, store, NewJob{StepName: StepEntityResolution, TargetType: "corpus"})

	// Succeeding a job that was never leased is illegal.
	if err := store.Complete(ctx, created.JobID, StatusSucceeded, ""); err == nil {
		t.Fatal("expected error completing a queued job")
	}
}

func TestMemoryStore_Cancel(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	created := mustCreate(t, store, NewJob{StepName: StepMentionBackfill, TargetType: "corpus"})
	if err := store.Cancel(ctx, created.JobID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	job, err := store.Get(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", job.Status)
	}

	if err := store.Cancel(ctx, created.JobID); err == nil {
		t.Fatal("expected cancelling a cancelled job to fail")
	}
}
