package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors shared by the Postgres and in-memory stores so callers can
// map them without matching message text.
var (
	ErrJobNotFound  = errors.New("job not found")
	ErrCannotCancel = errors.New("job cannot be cancelled")
	// ErrIllegalTransition reports a completion that the status FSM forbids,
	// for example recording an outcome for a job cancelled mid-run.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// Step names understood by the worker loop.
const (
	StepEntityResolution = "entity_resolution"
	StepMentionBackfill  = "mention_backfill"
)

// KnownStep reports whether a step name has a registered handler.
func KnownStep(name string) bool {
	switch name {
	case StepEntityResolution, StepMentionBackfill:
		return true
	}
	return false
}

// Job is one row of the processing queue.
type Job struct {
	JobID       int64
	RunID       string
	StepName    string
	TargetType  string
	TargetID    *int64
	Priority    int
	Status      Status
	Attempts    int
	MaxAttempts int
	LockedBy    *string
	LockedAt    *time.Time
	LastError   *string
	Params      json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewJob is the caller-supplied part of a job. RunID is generated when empty;
// MaxAttempts falls back to the store default when zero.
type NewJob struct {
	RunID       string
	StepName    string
	TargetType  string
	TargetID    *int64
	Priority    int
	MaxAttempts int
	Params      json.RawMessage
}

// Attempt is one immutable outcome record for a job attempt.
type Attempt struct {
	JobID         int64
	AttemptNumber int
	Status        Status
	ErrorMessage  *string
	CreatedAt     time.Time
}

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	Status     Status
	StepName   string
	TargetType string
	Limit      int
}

// Store is the queue persistence contract. The Postgres store backs
// production; the in-memory store backs tests and local runs without a
// database.
type Store interface {
	Create(ctx context.Context, job NewJob) (Job, error)
	// Lease atomically claims the most eligible job for workerID, or returns
	// nil when nothing is claimable. Claiming increments attempts.
	Lease(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error)
	// Complete records the outcome of a leased job. A retryable failure is
	// downgraded to permanent once attempts are exhausted.
	Complete(ctx context.Context, jobID int64, outcome Status, errMessage string) error
	Cancel(ctx context.Context, jobID int64) error
	Get(ctx context.Context, jobID int64) (Job, error)
	List(ctx context.Context, filter ListFilter) ([]Job, error)
	Attempts(ctx context.Context, jobID int64) ([]Attempt, error)
}
