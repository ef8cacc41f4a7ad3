package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerly/dispatch/internal/dispatch"
	"github.com/ledgerly/dispatch/internal/infra/storage"
)

// Janitor deletes terminal jobs and old spend records based on the
// retention policy.
type Janitor struct {
	queue           *dispatch.Queue
	spendRepo       storage.SpendRepository
	jobRetention    time.Duration
	ledgerRetention time.Duration
	interval        time.Duration
}

// NewJanitor creates a new Janitor worker.
func NewJanitor(
	queue *dispatch.Queue,
	spendRepo storage.SpendRepository,
	jobRetention, ledgerRetention, interval time.Duration,
) *Janitor {
	return &Janitor{
		queue:           queue,
		spendRepo:       spendRepo,
		jobRetention:    jobRetention,
		ledgerRetention: ledgerRetention,
		interval:        interval,
	}
}

// Start runs the janitor loop.
func (j *Janitor) Start(ctx context.Context) {
	if j.jobRetention <= 0 {
		return // Retention disabled
	}
	if j.interval <= 0 {
		j.interval = min(j.jobRetention/10, time.Hour)
		j.interval = max(j.interval, time.Minute)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Initial sweep
	j.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	removed := j.queue.CleanupOldJobs(j.jobRetention)
	if removed > 0 {
		slog.Info("[Janitor] removed old jobs", "count", removed)
	}

	if j.ledgerRetention > 0 && j.spendRepo != nil {
		cutoff := time.Now().Add(-j.ledgerRetention)
		n, err := j.spendRepo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			slog.Error("[Janitor] failed to prune spend ledger", "error", err)
			return
		}
		if n > 0 {
			slog.Info("[Janitor] pruned spend ledger", "count", n)
		}
	}
}
