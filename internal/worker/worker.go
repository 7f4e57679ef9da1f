// Package worker runs the lease-poll-dispatch loop over the processing
// queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/registry/internal/queue"
)

// Handler executes one leased job. A nil return records success; an error
// records a retryable failure.
type Handler func(ctx context.Context, job queue.Job) error

type Worker struct {
	store         queue.Store
	logger        zerolog.Logger
	handlers      map[string]Handler
	workerID      string
	pollInterval  time.Duration
	leaseDuration time.Duration
}

// Options tunes the worker loop. Zero values fall back to sane defaults.
type Options struct {
	WorkerID      string
	PollInterval  time.Duration
	LeaseDuration time.Duration
}

func New(store queue.Store, logger zerolog.Logger, opts Options) *Worker {
	workerID := strings.TrimSpace(opts.WorkerID)
	if workerID == "" {
		host, err := os.Hostname()
		if err != nil || strings.TrimSpace(host) == "" {
			host = "worker"
		}
		workerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	leaseDuration := opts.LeaseDuration
	if leaseDuration <= 0 {
		leaseDuration = queue.DefaultLeaseDuration
	}

	return &Worker{
		store:         store,
		logger:        logger.With().Str("worker_id", workerID).Logger(),
		handlers:      make(map[string]Handler),
		workerID:      workerID,
		pollInterval:  pollInterval,
		leaseDuration: leaseDuration,
	}
}

// Register installs the handler for a step name. Jobs with an unregistered
// step are completed as skipped, not failed, so one mis-deployed worker does
// not burn through attempt budgets.
func (w *Worker) Register(stepName string, handler Handler) {
	w.handlers[stepName] = handler
}

// WorkerID returns the identity used in lease locked_by fields.
func (w *Worker) WorkerID() string {
	return w.workerID
}

// Run polls for work until ctx is cancelled. The loop drains consecutive
// leases before sleeping, so a backlog is processed at full speed and the
// poll interval only governs the idle case.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("worker is not initialized")
	}

	w.logger.Info().
		Dur("poll_interval", w.pollInterval).
		Dur("lease_duration", w.leaseDuration).
		Msg("worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		worked, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("lease cycle failed")
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce leases at most one job and executes it. It reports whether a job
// was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	job, err := w.store.Lease(ctx, w.workerID, w.leaseDuration)
	if err != nil {
		return false, fmt.Errorf("lease job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	logger := w.logger.With().
		Int64("job_id", job.JobID).
		Str("step", job.StepName).
		Str("run_id", job.RunID).
		Int("attempt", job.Attempts).
		Logger()

	handler, ok := w.handlers[job.StepName]
	if !ok {
		logger.Warn().Msg("no handler for step, skipping job")
		if err := w.store.Complete(ctx, job.JobID, queue.StatusSkipped, "no handler registered for step "+job.StepName); err != nil {
			return true, fmt.Errorf("skip job_id=%d: %w", job.JobID, err)
		}
		return true, nil
	}

	logger.Info().Msg("job started")
	start := time.Now()

	if err := handler(ctx, *job); err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		if completeErr := w.store.Complete(ctx, job.JobID, queue.StatusFailedRetryable, err.Error()); completeErr != nil {
			if errors.Is(completeErr, queue.ErrIllegalTransition) {
				logger.Warn().Msg("job status changed while running, outcome discarded")
				return true, nil
			}
			return true, fmt.Errorf("record failure job_id=%d: %w", job.JobID, completeErr)
		}
		return true, nil
	}

	logger.Info().Dur("elapsed", time.Since(start)).Msg("job succeeded")
	if err := w.store.Complete(ctx, job.JobID, queue.StatusSucceeded, ""); err != nil {
		// A cancel can land between the lease and this point; the job is
		// already terminal and the outcome has nowhere to go.
		if errors.Is(err, queue.ErrIllegalTransition) {
			logger.Warn().Msg("job status changed while running, outcome discarded")
			return true, nil
		}
		return true, fmt.Errorf("record success job_id=%d: %w", job.JobID, err)
	}
	return true, nil
}
