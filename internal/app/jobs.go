package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/registry/internal/cli"
	"horse.fit/registry/internal/queue"
	jobschema "horse.fit/registry/schema"
)

func runJobs(args []string) int {
	if len(args) == 0 {
		printJobsUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printJobsUsage()
		return 0
	case "list":
		return runJobsList(args[1:])
	case "show":
		return runJobsShow(args[1:])
	case "create", "add":
		return runJobsCreate(args[1:])
	case "cancel":
		return runJobsCancel(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs action: %s\n\n", args[0])
		printJobsUsage()
		return 2
	}
}

func printJobsUsage() {
	fmt.Fprintln(os.Stderr, "registry jobs")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  registry jobs <action> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Actions:")
	fmt.Fprintln(os.Stderr, "  list     List jobs, optionally filtered by status or step")
	fmt.Fprintln(os.Stderr, "  show     Show one job and its attempt history")
	fmt.Fprintln(os.Stderr, "  create   Enqueue a new processing job")
	fmt.Fprintln(os.Stderr, "  cancel   Cancel a queued or retryable job")
}

func runJobsList(args []string) int {
	fs := flag.NewFlagSet("jobs list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	status := fs.String("status", "", "Filter by status")
	step := fs.String("step", "", "Filter by step name")
	limit := fs.Int("limit", 50, "Maximum rows to print")

	if code, done := parseHelp(fs, args); done {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	store := queue.NewPostgresStore(rt.pool, rt.cfg.JobMaxAttempts)
	jobs, err := store.List(ctx, queue.ListFilter{
		Status:   queue.Status(strings.TrimSpace(strings.ToLower(*status))),
		StepName: strings.TrimSpace(*step),
		Limit:    *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list jobs: %v\n", err)
		return 1
	}

	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return 0
	}
	for _, job := range jobs {
		fmt.Printf("%-8d %-20s %-18s attempts=%d/%d priority=%d created=%s\n",
			job.JobID, job.StepName, job.Status, job.Attempts, job.MaxAttempts,
			job.Priority, job.CreatedAt.Format(time.RFC3339))
	}
	return 0
}

func runJobsShow(args []string) int {
	fs := flag.NewFlagSet("jobs show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	jobID := fs.Int64("id", 0, "Job id")

	if code, done := parseHelp(fs, args); done {
		return code
	}
	if *jobID <= 0 {
		fmt.Fprintln(os.Stderr, "--id must be a positive integer")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	store := queue.NewPostgresStore(rt.pool, rt.cfg.JobMaxAttempts)
	job, err := store.Get(ctx, *jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load job: %v\n", err)
		return 1
	}

	fmt.Printf("job_id:       %d\n", job.JobID)
	fmt.Printf("run_id:       %s\n", job.RunID)
	fmt.Printf("step:         %s\n", job.StepName)
	fmt.Printf("target:       %s", job.TargetType)
	if job.TargetID != nil {
		fmt.Printf("/%d", *job.TargetID)
	}
	fmt.Println()
	fmt.Printf("status:       %s\n", job.Status)
	fmt.Printf("attempts:     %d/%d\n", job.Attempts, job.MaxAttempts)
	fmt.Printf("priority:     %d\n", job.Priority)
	if job.LockedBy != nil {
		fmt.Printf("locked_by:    %s\n", *job.LockedBy)
	}
	if job.LastError != nil {
		fmt.Printf("last_error:   %s\n", *job.LastError)
	}
	if len(job.Params) > 0 && string(job.Params) != "{}" {
		fmt.Printf("params:       %s\n", string(job.Params))
	}
	fmt.Printf("created_at:   %s\n", job.CreatedAt.Format(time.RFC3339))

	attempts, err := store.Attempts(ctx, *jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load attempts: %v\n", err)
		return 1
	}
	if len(attempts) > 0 {
		fmt.Println("attempts:")
		for _, attempt := range attempts {
			line := fmt.Sprintf("  #%d %s at %s", attempt.AttemptNumber, attempt.Status, attempt.CreatedAt.Format(time.RFC3339))
			if attempt.ErrorMessage != nil {
				line += " error=" + *attempt.ErrorMessage
			}
			fmt.Println(line)
		}
	}
	return 0
}

func runJobsCreate(args []string) int {
	fs := flag.NewFlagSet("jobs create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	step := fs.String("step", "", "Step name: entity_resolution or mention_backfill")
	targetType := fs.String("target-type", "corpus", "Target type label")
	targetID := fs.Int64("target-id", 0, "Target id (0 for none)")
	priority := fs.Int("priority", 0, "Scheduling priority, higher first")
	params := fs.String("params", "", "Step parameters as JSON")

	if code, done := parseHelp(fs, args); done {
		return code
	}

	stepName := strings.TrimSpace(*step)
	if !queue.KnownStep(stepName) {
		fmt.Fprintf(os.Stderr, "--step must be one of: %s, %s\n", queue.StepEntityResolution, queue.StepMentionBackfill)
		return 2
	}

	rawParams := json.RawMessage(strings.TrimSpace(*params))
	switch stepName {
	case queue.StepEntityResolution:
		if _, err := jobschema.ValidateResolutionParams(rawParams); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --params: %v\n", err)
			return 2
		}
	case queue.StepMentionBackfill:
		if _, err := jobschema.ValidateAggregationParams(rawParams); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --params: %v\n", err)
			return 2
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	var target *int64
	if *targetID > 0 {
		target = targetID
	}

	store := queue.NewPostgresStore(rt.pool, rt.cfg.JobMaxAttempts)
	created, err := store.Create(ctx, queue.NewJob{
		StepName:   stepName,
		TargetType: strings.TrimSpace(*targetType),
		TargetID:   target,
		Priority:   *priority,
		Params:     rawParams,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create job: %v\n", err)
		return 1
	}

	fmt.Printf("created job_id=%d run_id=%s step=%s\n", created.JobID, created.RunID, created.StepName)
	return 0
}

func runJobsCancel(args []string) int {
	fs := flag.NewFlagSet("jobs cancel", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	jobID := fs.Int64("id", 0, "Job id")

	if code, done := parseHelp(fs, args); done {
		return code
	}
	if *jobID <= 0 {
		fmt.Fprintln(os.Stderr, "--id must be a positive integer")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	store := queue.NewPostgresStore(rt.pool, rt.cfg.JobMaxAttempts)
	if err := store.Cancel(ctx, *jobID); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to cancel job: %v\n", err)
		return 1
	}

	fmt.Printf("cancelled job_id=%d\n", *jobID)
	return 0
}
