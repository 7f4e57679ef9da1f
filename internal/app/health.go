package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/registry/internal/cli"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Database ping timeout")

	if code, done := parseHelp(fs, args); done {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer rt.close()

	rt.logger.Info().Dur("timeout", *timeout).Msg("database health check passed")
	fmt.Println("ok: database ping successful")
	return 0
}
