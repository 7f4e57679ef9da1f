package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"horse.fit/registry/internal/globaltime"
)

// MemoryStore is an in-memory Store with the same lease and transition
// semantics as the Postgres store. It backs tests and database-free local
// runs; nothing survives a restart.
type MemoryStore struct {
	mu                 sync.Mutex
	nextID             int64
	jobs               map[int64]*Job
	attempts           map[int64][]Attempt
	defaultMaxAttempts int
}

func NewMemoryStore(defaultMaxAttempts int) *MemoryStore {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3
	}
	return &MemoryStore{
		nextID:             1,
		jobs:               make(map[int64]*Job),
		attempts:           make(map[int64][]Attempt),
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

func (s *MemoryStore) Create(_ context.Context, job NewJob) (Job, error) {
	if strings.TrimSpace(job.StepName) == "" {
		return Job{}, fmt.Errorf("step name is required")
	}
	if strings.TrimSpace(job.TargetType) == "" {
		return Job{}, fmt.Errorf("target type is required")
	}

	runID := strings.TrimSpace(job.RunID)
	if runID == "" {
		runID = uuid.NewString()
	} else if _, err := uuid.Parse(runID); err != nil {
		return Job{}, fmt.Errorf("run id must be a uuid: %w", err)
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaultMaxAttempts
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := globaltime.UTC()
	created := Job{
		JobID:       s.nextID,
		RunID:       runID,
		StepName:    job.StepName,
		TargetType:  job.TargetType,
		TargetID:    job.TargetID,
		Priority:    job.Priority,
		Status:      StatusQueued,
		MaxAttempts: maxAttempts,
		Params:      job.Params,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.nextID++
	s.jobs[created.JobID] = &created

	out := created
	return out, nil
}

func (s *MemoryStore) Lease(_ context.Context, workerID string, leaseDuration time.Duration) (*Job, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, fmt.Errorf("worker id is required")
	}
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := globaltime.UTC()

	var candidates []*Job
	for _, job := range s.jobs {
		if job.Status == StatusFailedRetryable && job.Attempts >= job.MaxAttempts {
			continue
		}
		if Eligible(job.Status, job.LockedAt, now, leaseDuration) {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].JobID < candidates[j].JobID
	})

	job := candidates[0]
	job.Status = StatusRunning
	job.Attempts++
	job.LockedBy = &workerID
	lockedAt := now
	job.LockedAt = &lockedAt
	job.UpdatedAt = now

	out := *job
	return &out, nil
}

func (s *MemoryStore) Complete(_ context.Context, jobID int64, outcome Status, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job_id=%d: %w", jobID, ErrJobNotFound)
	}

	if outcome == StatusFailedRetryable {
		outcome = FailureOutcome(job.Attempts, job.MaxAttempts)
	}
	if !CanTransition(job.Status, outcome) {
		return fmt.Errorf("job_id=%d: %s -> %s: %w", jobID, job.Status, outcome, ErrIllegalTransition)
	}

	now := globaltime.UTC()
	job.Status = outcome
	job.LockedBy = nil
	job.LockedAt = nil
	job.UpdatedAt = now
	if msg := strings.TrimSpace(errMessage); msg != "" {
		job.LastError = &msg
	} else {
		job.LastError = nil
	}

	s.attempts[jobID] = append(s.attempts[jobID], Attempt{
		JobID:         jobID,
		AttemptNumber: job.Attempts,
		Status:        outcome,
		ErrorMessage:  job.LastError,
		CreatedAt:     now,
	})
	return nil
}

func (s *MemoryStore) Cancel(_ context.Context, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job_id=%d: %w", jobID, ErrJobNotFound)
	}
	if !CanTransition(job.Status, StatusCancelled) {
		return fmt.Errorf("job_id=%d in status %s: %w", jobID, job.Status, ErrCannotCancel)
	}

	now := globaltime.UTC()
	job.Status = StatusCancelled
	job.LockedBy = nil
	job.LockedAt = nil
	job.UpdatedAt = now

	s.attempts[jobID] = append(s.attempts[jobID], Attempt{
		JobID:         jobID,
		AttemptNumber: job.Attempts,
		Status:        StatusCancelled,
		CreatedAt:     now,
	})
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID int64) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job_id=%d: %w", jobID, ErrJobNotFound)
	}
	return *job, nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]Job, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.StepName != "" && job.StepName != filter.StepName {
			continue
		}
		if filter.TargetType != "" && job.TargetType != filter.TargetType {
			continue
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].JobID > jobs[j].JobID
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *MemoryStore) Attempts(_ context.Context, jobID int64) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts := s.attempts[jobID]
	out := make([]Attempt, len(attempts))
	copy(out, attempts)
	return out, nil
}
