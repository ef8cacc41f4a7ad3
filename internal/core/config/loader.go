package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Queue.TickInterval == 0 {
		cfg.Queue.TickInterval = 1 * time.Second
	}
	if cfg.Queue.MaxJobRetries == 0 {
		cfg.Queue.MaxJobRetries = 3
	}
	if cfg.Queue.CallTimeout == 0 {
		cfg.Queue.CallTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 1 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Retry.JitterPercent == 0 {
		cfg.Retry.JitterPercent = 20
	}
	if cfg.Retry.FailureThreshold == 0 {
		cfg.Retry.FailureThreshold = 5
	}
	if cfg.Retry.Cooldown == 0 {
		cfg.Retry.Cooldown = 60 * time.Second
	}
	if cfg.Retry.HalfOpenSuccesses == 0 {
		cfg.Retry.HalfOpenSuccesses = 3
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 7 * 24 * time.Hour
	}
	if cfg.Budget.DailyLimit == 0 {
		cfg.Budget.DailyLimit = 50
	}
	if cfg.Retention.JobRetention == 0 {
		cfg.Retention.JobRetention = 24 * time.Hour
	}
	if cfg.Retention.LedgerRetention == 0 {
		cfg.Retention.LedgerRetention = 90 * 24 * time.Hour
	}
	if cfg.Retention.SweepInterval == 0 {
		cfg.Retention.SweepInterval = 1 * time.Hour
	}
}
