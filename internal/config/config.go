package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"REGISTRY_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"REGISTRY_DB_MAX_CONNS" default:"8"`

	SimilarityThreshold float64       `envconfig:"SIMILARITY_THRESHOLD" default:"0.9"`
	LeaseDuration       time.Duration `envconfig:"JOB_LEASE_DURATION" default:"15m"`
	JobMaxAttempts      int           `envconfig:"JOB_MAX_ATTEMPTS" default:"3"`
	WorkerPollInterval  time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("REGISTRY_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("REGISTRY_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("REGISTRY_DB_MIN_CONNS (%d) cannot exceed REGISTRY_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.LeaseDuration < time.Second {
		return fmt.Errorf("JOB_LEASE_DURATION must be at least 1s")
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be >= 1")
	}
	if c.WorkerPollInterval < 100*time.Millisecond {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be at least 100ms")
	}
	return nil
}
