package queue

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to Status }{
		{StatusQueued, StatusRunning},
		{StatusQueued, StatusCancelled},
		{StatusQueued, StatusSkipped},
		{StatusRunning, StatusSucceeded},
		{StatusRunning, StatusFailedRetryable},
		{StatusRunning, StatusFailedPermanent},
		{StatusRunning, StatusSkipped},
		{StatusRunning, StatusCancelled},
		{StatusFailedRetryable, StatusRunning},
		{StatusFailedRetryable, StatusCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusQueued, StatusSucceeded},
		{StatusSucceeded, StatusRunning},
		{StatusFailedPermanent, StatusRunning},
		{StatusCancelled, StatusQueued},
		{StatusSkipped, StatusRunning},
		{StatusRunning, StatusQueued},
		{StatusFailedRetryable, StatusSucceeded},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusSucceeded, StatusFailedPermanent, StatusSkipped, StatusCancelled} {
		if !IsTerminal(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusRunning, StatusFailedRetryable} {
		if IsTerminal(s) {
			t.Fatalf("expected %s not to be terminal", s)
		}
	}
}

func TestFailureOutcome(t *testing.T) {
	t.Parallel()

	if got := FailureOutcome(1, 3); got != StatusFailedRetryable {
		t.Fatalf("expected retryable with attempts remaining, got %s", got)
	}
	if got := FailureOutcome(3, 3); got != StatusFailedPermanent {
		t.Fatalf("expected permanent at the attempt cap, got %s", got)
	}
}

func TestEligible(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	lease := 15 * time.Minute

	if !Eligible(StatusQueued, nil, now, lease) {
		t.Fatal("expected queued jobs to be eligible")
	}
	if !Eligible(StatusFailedRetryable, nil, now, lease) {
		t.Fatal("expected retryable jobs to be eligible")
	}

	fresh := now.Add(-5 * time.Minute)
	if Eligible(StatusRunning, &fresh, now, lease) {
		t.Fatal("expected a live lease to block eligibility")
	}

	stale := now.Add(-16 * time.Minute)
	if !Eligible(StatusRunning, &stale, now, lease) {
		t.Fatal("expected an expired lease to restore eligibility")
	}

	for _, s := range []Status{StatusSucceeded, StatusFailedPermanent, StatusSkipped, StatusCancelled} {
		if Eligible(s, nil, now, lease) {
			t.Fatalf("expected terminal status %s to be ineligible", s)
		}
	}
}
