package health

import (
	"context"
	"time"

	"github.com/ledgerly/dispatch/internal/cache"
	"github.com/ledgerly/dispatch/internal/dispatch"
	"github.com/ledgerly/dispatch/internal/retry"
)

// Monitor aggregates component health into a single report.
type Monitor struct {
	resCache *cache.ResultCache
	queue    *dispatch.Queue
	executor *retry.Executor
}

// NewMonitor creates a health monitor over the core components.
func NewMonitor(resCache *cache.ResultCache, queue *dispatch.Queue, executor *retry.Executor) *Monitor {
	return &Monitor{resCache: resCache, queue: queue, executor: executor}
}

// CheckHealth probes each component. The cache fails open on store
// outages, so an unreachable store is degraded rather than critical; an
// open provider circuit marks the system degraded because new work is
// being rejected without attempts.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	report := Report{Status: StatusHealthy, UpdatedAt: time.Now()}

	cacheHealth := ComponentHealth{Name: "result_cache", Status: StatusHealthy}
	if err := m.resCache.Healthy(ctx); err != nil {
		cacheHealth.Status = StatusDegraded
		cacheHealth.Detail = err.Error()
	}
	report.Components = append(report.Components, cacheHealth)

	circuitHealth := ComponentHealth{Name: "circuit_breakers", Status: StatusHealthy}
	for _, st := range m.executor.StatusAll() {
		if st.State == "OPEN" {
			circuitHealth.Status = StatusDegraded
			circuitHealth.Detail = "circuit open: " + st.Key
			break
		}
	}
	report.Components = append(report.Components, circuitHealth)

	stats := m.queue.Stats()
	queueHealth := ComponentHealth{Name: "job_queue", Status: StatusHealthy}
	terminal := stats.CompletedJobs + stats.FailedJobs
	if terminal >= 10 && float64(stats.FailedJobs)/float64(terminal) > 0.5 {
		queueHealth.Status = StatusCritical
		queueHealth.Detail = "failure rate above 50%"
	}
	report.Components = append(report.Components, queueHealth)

	for _, c := range report.Components {
		if c.Status == StatusCritical {
			report.Status = StatusCritical
			break
		}
		if c.Status == StatusDegraded {
			report.Status = StatusDegraded
		}
	}
	return report
}
