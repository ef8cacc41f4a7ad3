package config

import (
	"time"

	"github.com/ledgerly/dispatch/internal/dispatch"
	"github.com/ledgerly/dispatch/internal/infra/ocr"
	redisclient "github.com/ledgerly/dispatch/internal/infra/redis"
	"github.com/ledgerly/dispatch/internal/infra/storage/postgres"
	"github.com/ledgerly/dispatch/internal/optimize"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Provider  ocr.Config         `yaml:"provider"`
	Logging   LoggingConfig      `yaml:"logging"`
	Queue     dispatch.Config    `yaml:"queue"`
	Retry     RetryConfig        `yaml:"retry"`
	Cache     CacheConfig        `yaml:"cache"`
	Optimizer optimize.Config    `yaml:"optimizer"`
	Budget    BudgetConfig       `yaml:"budget"`
	Retention RetentionConfig    `yaml:"retention"`
}

// ServerConfig holds the operational server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RetryConfig holds retry executor and circuit breaker settings.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	JitterPercent     float64       `yaml:"jitter_percent"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	Cooldown          time.Duration `yaml:"cooldown"`
	HalfOpenSuccesses int           `yaml:"half_open_successes"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// BudgetConfig holds the per-user spend policy.
type BudgetConfig struct {
	DailyLimit float64 `yaml:"daily_limit"`
}

// RetentionConfig holds garbage-collection settings.
type RetentionConfig struct {
	JobRetention  time.Duration `yaml:"job_retention"`
	LedgerRetention time.Duration `yaml:"ledger_retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}
