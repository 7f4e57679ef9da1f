package app

import (
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/registry/internal/cli"
	"horse.fit/registry/internal/httpapi"
	"horse.fit/registry/internal/queue"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Listen host")
	port := fs.Int("port", 8080, "Listen port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

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

	store := queue.NewPostgresStore(rt.pool, rt.cfg.JobMaxAttempts)
	server := httpapi.NewServer(rt.pool, store, rt.logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
	})

	if err := server.Start(ctx); err != nil {
		rt.logger.Error().Err(err).Msg("api server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}
	return 0
}
