package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/registry/internal/audit"
	"horse.fit/registry/internal/cli"
	"horse.fit/registry/internal/resolve"
)

func runResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	threshold := fs.Float64("threshold", 0, "Similarity threshold in (0, 1] (default from SIMILARITY_THRESHOLD)")
	dryRun := fs.Bool("dry-run", false, "Log candidates without writing anything")
	apply := fs.Bool("apply", false, "Apply merges after logging candidates")
	survivorPolicy := fs.String("survivor", "lowest-id-absorbed", "Survivor policy: lowest-id-absorbed or most-complete")
	timeout := fs.Duration("timeout", 30*time.Minute, "Overall run timeout")

	if code, done := parseHelp(fs, args); done {
		return code
	}
	if *dryRun && *apply {
		fmt.Fprintln(os.Stderr, "--dry-run and --apply are mutually exclusive")
		return 2
	}

	var policy resolve.SurvivorPolicy
	switch *survivorPolicy {
	case "lowest-id-absorbed":
		policy = resolve.LowestIDAbsorbed
	case "most-complete":
		policy = resolve.MostCompleteSurvives
	default:
		fmt.Fprintf(os.Stderr, "unknown --survivor policy: %s\n", *survivorPolicy)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	runThreshold := *threshold
	if runThreshold <= 0 {
		runThreshold = rt.cfg.SimilarityThreshold
	}

	service := resolve.NewService(rt.pool, audit.NewDBRecorder(rt.pool), rt.logger, policy, "cli")
	result, err := service.Run(ctx, resolve.RunOptions{
		Threshold: runThreshold,
		DryRun:    *dryRun,
		Apply:     *apply,
	})
	if err != nil {
		rt.logger.Error().Err(err).Msg("resolution pass failed")
		fmt.Fprintf(os.Stderr, "Resolution failed: %v\n", err)
		return 1
	}

	fmt.Printf("scanned=%d buckets=%d candidates=%d logged=%d applied=%d skipped=%d\n",
		result.Scanned, result.Buckets, result.Candidates, result.Logged, result.Applied, result.Skipped)
	return 0
}
