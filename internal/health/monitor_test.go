package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerly/dispatch/internal/budget"
	"github.com/ledgerly/dispatch/internal/cache"
	"github.com/ledgerly/dispatch/internal/classify"
	"github.com/ledgerly/dispatch/internal/dispatch"
	"github.com/ledgerly/dispatch/internal/infra/storage/memory"
	"github.com/ledgerly/dispatch/internal/retry"
)

type deadStore struct{}

func (deadStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (deadStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (deadStore) Ping(context.Context) error { return errors.New("connection refused") }

func newMonitor(store cache.Store, executor *retry.Executor) *Monitor {
	resCache := cache.NewResultCache(store, time.Hour, 1.5)
	usage := budget.NewMonitor(memory.NewSpendRepo(), 50)
	queue := dispatch.NewQueue(nil, executor, resCache, usage, nil, dispatch.Config{})
	return NewMonitor(resCache, queue, executor)
}

func TestCheckHealthAllHealthy(t *testing.T) {
	executor := retry.NewExecutor(classify.NewClassifier(), retry.DefaultConfig)
	m := newMonitor(cache.NewMemoryStore(), executor)

	report := m.CheckHealth(context.Background())
	if report.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", report.Status)
	}
	if len(report.Components) != 3 {
		t.Errorf("Expected 3 components, got %d", len(report.Components))
	}
}

func TestUnreachableCacheDegrades(t *testing.T) {
	executor := retry.NewExecutor(classify.NewClassifier(), retry.DefaultConfig)
	m := newMonitor(deadStore{}, executor)

	report := m.CheckHealth(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("Expected degraded on cache outage, got %s", report.Status)
	}
}

func TestOpenCircuitDegrades(t *testing.T) {
	cfg := retry.DefaultConfig
	cfg.MaxRetries = 0
	cfg.BaseDelay = time.Millisecond
	executor := retry.NewExecutor(classify.NewClassifier(), cfg)

	for i := 0; i < cfg.FailureThreshold; i++ {
		_, _ = executor.ExecuteWithRetry(context.Background(), "vendor", func(ctx context.Context) (any, error) {
			return nil, errors.New("request timed out")
		})
	}

	m := newMonitor(cache.NewMemoryStore(), executor)
	report := m.CheckHealth(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("Expected degraded with an open circuit, got %s", report.Status)
	}

	var found bool
	for _, c := range report.Components {
		if c.Name == "circuit_breakers" && c.Status == StatusDegraded {
			found = true
		}
	}
	if !found {
		t.Error("Expected circuit component to report degraded")
	}
}
