package classify

import (
	"sync"
	"time"

	"github.com/ledgerly/dispatch/internal/metrics"
)

// ErrorMetric is the aggregated counter for one error type.
// Counters only grow; reset is an explicit administrative action.
type ErrorMetric struct {
	Count          int64     `json:"count"`
	LastOccurrence time.Time `json:"last_occurrence"`
	Severity       Severity  `json:"severity"`
}

// MetricSet guards the per-type counters. Classification can run from
// any goroutine, so access is mutex-serialized.
type MetricSet struct {
	mu      sync.Mutex
	byType  map[ErrorType]*ErrorMetric
}

func newMetricSet() *MetricSet {
	return &MetricSet{byType: make(map[ErrorType]*ErrorMetric)}
}

func (m *MetricSet) record(t ErrorType, sev Severity) {
	m.mu.Lock()
	em, ok := m.byType[t]
	if !ok {
		em = &ErrorMetric{Severity: sev}
		m.byType[t] = em
	}
	em.Count++
	em.LastOccurrence = time.Now()
	m.mu.Unlock()

	metrics.ErrorsTotal.WithLabelValues(string(t), string(sev)).Inc()
}

func (m *MetricSet) snapshot() map[ErrorType]ErrorMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[ErrorType]ErrorMetric, len(m.byType))
	for t, em := range m.byType {
		out[t] = *em
	}
	return out
}

func (m *MetricSet) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byType = make(map[ErrorType]*ErrorMetric)
}
