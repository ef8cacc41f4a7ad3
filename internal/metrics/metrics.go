package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal tracks jobs reaching a terminal state
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_total",
			Help: "Total number of jobs by terminal status",
		},
		[]string{"status"},
	)

	// QueueDepth tracks the number of pending jobs
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Number of jobs waiting in the queue",
		},
	)

	// JobProcessingSeconds tracks end-to-end job processing time
	JobProcessingSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_job_processing_seconds",
			Help:    "Job processing time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ProviderCallsTotal tracks OCR provider calls
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_provider_calls_total",
			Help: "Total number of OCR provider calls",
		},
		[]string{"outcome"},
	)

	// ProviderLatency tracks OCR provider call latency
	ProviderLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_provider_latency_seconds",
			Help:    "OCR provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CacheEvents tracks result cache hits and misses
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_cache_events_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// CircuitState tracks breaker state per operation key
	// (0 = closed, 1 = half-open, 2 = open)
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_circuit_state",
			Help: "Circuit breaker state per operation key",
		},
		[]string{"key"},
	)

	// ErrorsTotal tracks classified errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_errors_total",
			Help: "Total number of classified errors",
		},
		[]string{"type", "severity"},
	)

	// AdmissionDecisions tracks optimizer verdicts
	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_admission_decisions_total",
			Help: "Admission-control decisions by outcome",
		},
		[]string{"outcome"},
	)
)
