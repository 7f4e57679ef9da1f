package app

import (
	"context"
	"flag"
	"fmt"
	"os"

	"horse.fit/registry/internal/aggregate"
	"horse.fit/registry/internal/audit"
	"horse.fit/registry/internal/cli"
	"horse.fit/registry/internal/queue"
	"horse.fit/registry/internal/resolve"
	"horse.fit/registry/internal/searchindex"
	"horse.fit/registry/internal/worker"
	jobschema "horse.fit/registry/schema"
)

func runWork(args []string) int {
	fs := flag.NewFlagSet("work", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	workerID := fs.String("worker-id", "", "Stable worker identity (default hostname-derived)")
	pollInterval := fs.Duration("poll-interval", 0, "Queue poll interval (default from WORKER_POLL_INTERVAL)")

	if code, done := parseHelp(fs, args); done {
		return code
	}

	ctx, cancel := signalContext()
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	interval := *pollInterval
	if interval <= 0 {
		interval = rt.cfg.WorkerPollInterval
	}

	store := queue.NewPostgresStore(rt.pool, rt.cfg.JobMaxAttempts)
	w := worker.New(store, rt.logger, worker.Options{
		WorkerID:      *workerID,
		PollInterval:  interval,
		LeaseDuration: rt.cfg.LeaseDuration,
	})

	w.Register(queue.StepEntityResolution, resolutionHandler(rt, w.WorkerID()))
	w.Register(queue.StepMentionBackfill, backfillHandler(rt, w.WorkerID()))

	if err := w.Run(ctx); err != nil {
		rt.logger.Error().Err(err).Msg("worker stopped with error")
		return 1
	}
	rt.logger.Info().Msg("worker stopped")
	return 0
}

// resolutionHandler runs one entity resolution pass per leased job. Params
// are re-validated here because jobs may be inserted outside the API.
func resolutionHandler(rt *runtime, actorID string) worker.Handler {
	return func(ctx context.Context, job queue.Job) error {
		params, err := jobschema.ValidateResolutionParams(job.Params)
		if err != nil {
			return fmt.Errorf("invalid resolution params: %w", err)
		}

		threshold := rt.cfg.SimilarityThreshold
		if params.SimilarityThreshold != nil {
			threshold = *params.SimilarityThreshold
		}

		service := resolve.NewService(rt.pool, audit.NewDBRecorder(rt.pool), rt.logger, resolve.LowestIDAbsorbed, actorID)
		result, err := service.Run(ctx, resolve.RunOptions{
			Threshold: threshold,
			DryRun:    params.DryRun,
			Apply:     params.Apply,
		})
		if err != nil {
			return err
		}

		rt.logger.Info().
			Int64("job_id", job.JobID).
			Int("candidates", result.Candidates).
			Int("applied", result.Applied).
			Msg("resolution job finished")
		return nil
	}
}

func backfillHandler(rt *runtime, actorID string) worker.Handler {
	return func(ctx context.Context, job queue.Job) error {
		params, err := jobschema.ValidateAggregationParams(job.Params)
		if err != nil {
			return fmt.Errorf("invalid aggregation params: %w", err)
		}

		scope := aggregate.Scope{DocumentIDs: params.DocumentIDs}
		if since := params.Since(); since != nil {
			scope.Since = since
		}

		service := aggregate.NewService(
			rt.pool,
			searchindex.NewMaintainer(rt.pool, rt.logger),
			audit.NewDBRecorder(rt.pool),
			rt.logger,
			actorID,
		)
		result, err := service.Run(ctx, scope)
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d documents failed to aggregate", result.Failed, result.Documents)
		}

		rt.logger.Info().
			Int64("job_id", job.JobID).
			Int("documents", result.Documents).
			Int("upserted", result.Upserted).
			Int("removed", result.Removed).
			Msg("backfill job finished")
		return nil
	}
}
