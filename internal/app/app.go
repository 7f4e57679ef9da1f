// Package app wires the registry CLI commands.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"horse.fit/registry/internal/cli"
	"horse.fit/registry/internal/config"
	"horse.fit/registry/internal/db"
	"horse.fit/registry/internal/logging"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "resolve":
		return runResolve(args[1:])
	case "aggregate":
		return runAggregate(args[1:])
	case "jobs":
		return runJobs(args[1:])
	case "work":
		return runWork(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "registry CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  registry <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  resolve    Run one entity resolution pass")
	fmt.Fprintln(os.Stderr, "  aggregate  Recount entity mentions across documents")
	fmt.Fprintln(os.Stderr, "  jobs       Inspect and manage processing jobs")
	fmt.Fprintln(os.Stderr, "  work       Run the job worker loop")
	fmt.Fprintln(os.Stderr, "  serve      Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"registry <command> -h\" for command-specific flags.")
}

// runtime bundles the per-command bootstrap: env file, config, logger, pool.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

func (r *runtime) close() {
	if r != nil && r.pool != nil {
		_ = r.pool.Close()
	}
}

func bootstrap(ctx context.Context, envLoader *cli.EnvLoader) (*runtime, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, pool: pool}, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		signal.Stop(sigCh)
		cancel()
	}()

	return ctx, cancel
}

func parseHelp(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, true
		}
		return 2, true
	}
	return 0, false
}
