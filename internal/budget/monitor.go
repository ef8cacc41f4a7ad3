// Package budget tracks per-user provider spend over a trailing window.
//
// This package contains:
//   - Monitor: trailing-24h spend queries and daily-limit checks
//   - Usage: spend statistics for one user
//
// The ledger behind the monitor is pluggable (memory or postgres).
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerly/dispatch/internal/core/domain"
	"github.com/ledgerly/dispatch/internal/infra/storage"
)

// DefaultWindow is the trailing window used for daily-limit checks.
const DefaultWindow = 24 * time.Hour

// Usage holds spend statistics for one user.
type Usage struct {
	TotalCost       float64   `json:"total_cost"`
	TotalCalls      int       `json:"total_calls"`
	DailyLimit      float64   `json:"daily_limit"`
	Remaining       float64   `json:"remaining"`
	UsagePercentage float64   `json:"usage_percentage"`
	WindowStart     time.Time `json:"window_start"`
}

// Monitor answers spend queries for admission control and records
// billable calls after successful provider work.
type Monitor struct {
	repo       storage.SpendRepository
	dailyLimit float64
	window     time.Duration
}

// NewMonitor creates a monitor over repo with the given per-user daily
// spend limit.
func NewMonitor(repo storage.SpendRepository, dailyLimit float64) *Monitor {
	return &Monitor{
		repo:       repo,
		dailyLimit: dailyLimit,
		window:     DefaultWindow,
	}
}

// GetUserSpend returns a user's spend over the given trailing window.
// A zero window uses the default 24h.
func (m *Monitor) GetUserSpend(ctx context.Context, userID string, window time.Duration) (Usage, error) {
	if window <= 0 {
		window = m.window
	}
	since := time.Now().Add(-window)

	total, calls, err := m.repo.SumSince(ctx, userID, since)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to query user spend: %w", err)
	}

	remaining := m.dailyLimit - total
	if remaining < 0 {
		remaining = 0
	}
	pct := 0.0
	if m.dailyLimit > 0 {
		pct = total / m.dailyLimit * 100
	}

	return Usage{
		TotalCost:       total,
		TotalCalls:      calls,
		DailyLimit:      m.dailyLimit,
		Remaining:       remaining,
		UsagePercentage: pct,
		WindowStart:     since,
	}, nil
}

// Remaining returns the budget left for a user in the trailing window.
func (m *Monitor) Remaining(ctx context.Context, userID string) (float64, error) {
	usage, err := m.GetUserSpend(ctx, userID, m.window)
	if err != nil {
		return 0, err
	}
	return usage.Remaining, nil
}

// Record attributes one billable call to a user.
func (m *Monitor) Record(ctx context.Context, userID, jobID string, cost float64, tier domain.QualityTier) error {
	return m.repo.Add(ctx, &domain.SpendRecord{
		UserID:    userID,
		JobID:     jobID,
		Cost:      cost,
		Tier:      tier,
		CreatedAt: time.Now(),
	})
}

// DailyLimit returns the configured per-user daily limit.
func (m *Monitor) DailyLimit() float64 {
	return m.dailyLimit
}
