package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"horse.fit/registry/internal/db"
	"horse.fit/registry/internal/globaltime"
)

const jobColumns = `job_id, run_id, step_name, target_type, target_id, priority, status,
attempts, max_attempts, locked_by, locked_at, last_error, params, created_at, updated_at`

// PostgresStore persists the queue in registry.processing_jobs and the
// per-attempt outcomes in registry.job_attempts.
type PostgresStore struct {
	pool               *db.Pool
	defaultMaxAttempts int
}

func NewPostgresStore(pool *db.Pool, defaultMaxAttempts int) *PostgresStore {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3
	}
	return &PostgresStore{pool: pool, defaultMaxAttempts: defaultMaxAttempts}
}

func (s *PostgresStore) Create(ctx context.Context, job NewJob) (Job, error) {
	if s == nil || s.pool == nil {
		return Job{}, fmt.Errorf("queue store is not initialized")
	}
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

	params := job.Params
	if len(params) == 0 {
		params = []byte(`{}`)
	}

	now := globaltime.UTC()
	const q = `
INSERT INTO registry.processing_jobs
	(run_id, step_name, target_type, target_id, priority, status, attempts, max_attempts, params, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8::jsonb, $9, $9)
RETURNING ` + jobColumns

	row := s.pool.QueryRow(ctx, q,
		runID,
		job.StepName,
		job.TargetType,
		job.TargetID,
		job.Priority,
		string(StatusQueued),
		maxAttempts,
		string(params),
		now,
	)
	created, err := scanJob(row)
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return created, nil
}

// Lease claims one job with a single UPDATE over a SKIP LOCKED subselect, so
// concurrent workers never receive the same row. Eligible rows are queued,
// retryable, or running past their lease, ordered by priority then age.
func (s *PostgresStore) Lease(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("queue store is not initialized")
	}
	if strings.TrimSpace(workerID) == "" {
		return nil, fmt.Errorf("worker id is required")
	}
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}

	now := globaltime.UTC()
	expiredBefore := now.Add(-leaseDuration)

	const q = `
UPDATE registry.processing_jobs
SET status = $4, attempts = attempts + 1, locked_by = $1, locked_at = $2, updated_at = $2
WHERE job_id = (
	SELECT job_id FROM registry.processing_jobs
	WHERE status = $5
	   OR (status = $6 AND attempts < max_attempts)
	   OR (status = $4 AND locked_at < $3)
	ORDER BY priority DESC, created_at ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING ` + jobColumns

	row := s.pool.QueryRow(ctx, q,
		workerID,
		now,
		expiredBefore,
		string(StatusRunning),
		string(StatusQueued),
		string(StatusFailedRetryable),
	)
	job, err := scanJob(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lease job: %w", err)
	}
	return &job, nil
}

func (s *PostgresStore) Complete(ctx context.Context, jobID int64, outcome Status, errMessage string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("queue store is not initialized")
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin complete tx job_id=%d: %w", jobID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	job, err := lockJobTx(ctx, tx, jobID)
	if err != nil {
		return err
	}

	if outcome == StatusFailedRetryable {
		outcome = FailureOutcome(job.Attempts, job.MaxAttempts)
	}
	if !CanTransition(job.Status, outcome) {
		return fmt.Errorf("job_id=%d: %s -> %s: %w", jobID, job.Status, outcome, ErrIllegalTransition)
	}

	now := globaltime.UTC()
	var lastError *string
	if msg := strings.TrimSpace(errMessage); msg != "" {
		lastError = &msg
	}

	const update = `
UPDATE registry.processing_jobs
SET status = $2, locked_by = NULL, locked_at = NULL, last_error = $3, updated_at = $4
WHERE job_id = $1
`
	if _, err := tx.Exec(ctx, update, jobID, string(outcome), lastError, now); err != nil {
		return fmt.Errorf("update job_id=%d: %w", jobID, err)
	}

	if err := appendAttemptTx(ctx, tx, jobID, job.Attempts, outcome, lastError, now); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete tx job_id=%d: %w", jobID, err)
	}
	return nil
}

func (s *PostgresStore) Cancel(ctx context.Context, jobID int64) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("queue store is not initialized")
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin cancel tx job_id=%d: %w", jobID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	job, err := lockJobTx(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if !CanTransition(job.Status, StatusCancelled) {
		return fmt.Errorf("job_id=%d in status %s: %w", jobID, job.Status, ErrCannotCancel)
	}

	now := globaltime.UTC()
	const update = `
UPDATE registry.processing_jobs
SET status = $2, locked_by = NULL, locked_at = NULL, updated_at = $3
WHERE job_id = $1
`
	if _, err := tx.Exec(ctx, update, jobID, string(StatusCancelled), now); err != nil {
		return fmt.Errorf("cancel job_id=%d: %w", jobID, err)
	}
	if err := appendAttemptTx(ctx, tx, jobID, job.Attempts, StatusCancelled, nil, now); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cancel tx job_id=%d: %w", jobID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID int64) (Job, error) {
	if s == nil || s.pool == nil {
		return Job{}, fmt.Errorf("queue store is not initialized")
	}
	const q = `SELECT ` + jobColumns + ` FROM registry.processing_jobs WHERE job_id = $1`
	job, err := scanJob(s.pool.QueryRow(ctx, q, jobID))
	if err != nil {
		if db.IsNoRows(err) {
			return Job{}, fmt.Errorf("job_id=%d: %w", jobID, ErrJobNotFound)
		}
		return Job{}, fmt.Errorf("get job_id=%d: %w", jobID, err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("queue store is not initialized")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const q = `
SELECT ` + jobColumns + `
FROM registry.processing_jobs
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR step_name = $2)
  AND ($3 = '' OR target_type = $3)
ORDER BY created_at DESC, job_id DESC
LIMIT $4
`
	rows, err := s.pool.Query(ctx, q, string(filter.Status), filter.StepName, filter.TargetType, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) Attempts(ctx context.Context, jobID int64) ([]Attempt, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("queue store is not initialized")
	}
	const q = `
SELECT job_id, attempt_number, status, error_message, created_at
FROM registry.job_attempts
WHERE job_id = $1
ORDER BY attempt_number ASC
`
	rows, err := s.pool.Query(ctx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("list attempts job_id=%d: %w", jobID, err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var status string
		if err := rows.Scan(&a.JobID, &a.AttemptNumber, &status, &a.ErrorMessage, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt job_id=%d: %w", jobID, err)
		}
		a.Status = Status(status)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts job_id=%d: %w", jobID, err)
	}
	return attempts, nil
}

func lockJobTx(ctx context.Context, tx db.Tx, jobID int64) (Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM registry.processing_jobs WHERE job_id = $1 FOR UPDATE`
	job, err := scanJob(tx.QueryRow(ctx, q, jobID))
	if err != nil {
		if db.IsNoRows(err) {
			return Job{}, fmt.Errorf("job_id=%d: %w", jobID, ErrJobNotFound)
		}
		return Job{}, fmt.Errorf("lock job_id=%d: %w", jobID, err)
	}
	return job, nil
}

// appendAttemptTx records the outcome of the current attempt. A cancel before
// any lease reuses attempt number 0; duplicate outcome rows are impossible in
// practice, so conflicts are ignored rather than fatal.
func appendAttemptTx(ctx context.Context, tx db.Tx, jobID int64, attemptNumber int, status Status, errMessage *string, at time.Time) error {
	const q = `
INSERT INTO registry.job_attempts (job_id, attempt_number, status, error_message, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (job_id, attempt_number) DO NOTHING
`
	if _, err := tx.Exec(ctx, q, jobID, attemptNumber, string(status), errMessage, at); err != nil {
		return fmt.Errorf("record attempt job_id=%d attempt=%d: %w", jobID, attemptNumber, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row *db.Row) (Job, error) {
	return scanJobFrom(row)
}

func scanJobRows(rows *db.Rows) (Job, error) {
	return scanJobFrom(rows)
}

func scanJobFrom(scanner rowScanner) (Job, error) {
	var job Job
	var status string
	var params []byte
	err := scanner.Scan(
		&job.JobID,
		&job.RunID,
		&job.StepName,
		&job.TargetType,
		&job.TargetID,
		&job.Priority,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.LockedBy,
		&job.LockedAt,
		&job.LastError,
		&params,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	job.Params = params
	return job, nil
}
