package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/registry/internal/aggregate"
	"horse.fit/registry/internal/audit"
	"horse.fit/registry/internal/cli"
	"horse.fit/registry/internal/searchindex"
)

func runAggregate(args []string) int {
	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	since := fs.String("since", "", "Only rescan documents created at or after this RFC3339 timestamp")
	docIDs := fs.String("documents", "", "Comma-separated document ids to rescan")
	timeout := fs.Duration("timeout", 2*time.Hour, "Overall run timeout")

	if code, done := parseHelp(fs, args); done {
		return code
	}

	scope, err := buildScope(*since, *docIDs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
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

	service := newAggregateService(rt)
	result, err := service.Run(ctx, scope)
	if err != nil {
		rt.logger.Error().Err(err).Msg("aggregation run failed")
		fmt.Fprintf(os.Stderr, "Aggregation failed: %v\n", err)
		return 1
	}

	fmt.Printf("entities=%d documents=%d upserted=%d removed=%d failed=%d\n",
		result.Entities, result.Documents, result.Upserted, result.Removed, result.Failed)
	if result.Failed > 0 {
		return 1
	}
	return 0
}

func newAggregateService(rt *runtime) *aggregate.Service {
	return aggregate.NewService(
		rt.pool,
		searchindex.NewMaintainer(rt.pool, rt.logger),
		audit.NewDBRecorder(rt.pool),
		rt.logger,
		"cli",
	)
}

func buildScope(since, docIDs string) (aggregate.Scope, error) {
	var scope aggregate.Scope

	if trimmed := strings.TrimSpace(since); trimmed != "" {
		parsed, err := time.Parse(time.RFC3339, trimmed)
		if err != nil {
			return aggregate.Scope{}, fmt.Errorf("--since must be RFC3339: %v", err)
		}
		utc := parsed.UTC()
		scope.Since = &utc
	}

	if trimmed := strings.TrimSpace(docIDs); trimmed != "" {
		for _, part := range strings.Split(trimmed, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || id <= 0 {
				return aggregate.Scope{}, fmt.Errorf("--documents must be positive integers, got %q", part)
			}
			scope.DocumentIDs = append(scope.DocumentIDs, id)
		}
	}

	if scope.Since != nil && len(scope.DocumentIDs) > 0 {
		return aggregate.Scope{}, fmt.Errorf("--since and --documents are mutually exclusive")
	}
	return scope, nil
}
