// Package queue implements the processing job queue: a lease protocol over
// registry.processing_jobs with an explicit status machine.
package queue

import "time"

// Status is the lifecycle state of a processing job.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusRunning         Status = "running"
	StatusSucceeded       Status = "succeeded"
	StatusFailedRetryable Status = "failed_retryable"
	StatusFailedPermanent Status = "failed_permanent"
	StatusSkipped         Status = "skipped"
	StatusCancelled       Status = "cancelled"
)

// DefaultLeaseDuration is how long a worker may hold a job before its lease
// is considered expired and another worker may reclaim it.
const DefaultLeaseDuration = 15 * time.Minute

// transitions is the single source of truth for legal status changes. Every
// store, Postgres or in-memory, consults it before writing.
var transitions = map[Status]map[Status]struct{}{
	StatusQueued: {
		StatusRunning:   {},
		StatusSkipped:   {},
		StatusCancelled: {},
	},
	StatusRunning: {
		StatusSucceeded:       {},
		StatusFailedRetryable: {},
		StatusFailedPermanent: {},
		StatusSkipped:         {},
		StatusCancelled:       {},
	},
	StatusFailedRetryable: {
		StatusRunning:   {},
		StatusCancelled: {},
	},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// FailureOutcome maps a retryable failure to its stored status: retryable
// while attempts remain, permanent once they are exhausted.
func FailureOutcome(attempts, maxAttempts int) Status {
	if attempts >= maxAttempts {
		return StatusFailedPermanent
	}
	return StatusFailedRetryable
}

// Eligible reports whether a job in the given state may be leased at now.
// Queued and retryable jobs are always eligible; running jobs only once
// their lease has expired.
func Eligible(s Status, lockedAt *time.Time, now time.Time, lease time.Duration) bool {
	switch s {
	case StatusQueued, StatusFailedRetryable:
		return true
	case StatusRunning:
		return lockedAt == nil || lockedAt.Add(lease).Before(now)
	default:
		return false
	}
}
