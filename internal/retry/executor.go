// Package retry executes fallible operations with classified-error-driven
// retry and a per-operation-key circuit breaker.
package retry

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerly/dispatch/internal/classify"
	"github.com/ledgerly/dispatch/internal/metrics"
)

// Config defines retry and circuit breaker behavior.
type Config struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Strategy          classify.RetryStrategy
	JitterPercent     float64
	FailureThreshold  int
	Cooldown          time.Duration
	HalfOpenSuccesses int
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxRetries:        3,
	BaseDelay:         1 * time.Second,
	MaxDelay:          30 * time.Second,
	Strategy:          classify.ExponentialBackoff,
	JitterPercent:     20,
	FailureThreshold:  5,
	Cooldown:          60 * time.Second,
	HalfOpenSuccesses: 3,
}

// Operation is any fallible unit of work the executor can run.
type Operation func(ctx context.Context) (any, error)

// Attempt carries per-attempt metadata to custom retry predicates.
type Attempt struct {
	Number    int // 1-indexed
	Remaining int
	Delay     time.Duration
}

// RetryPredicate decides whether a classified failure should be retried.
type RetryPredicate func(err *classify.ClassifiedError, attempt Attempt) bool

// Executor runs operations with retry and per-key circuit breaking.
// Breakers are created lazily and live for the process lifetime.
type Executor struct {
	mu         sync.Mutex
	breakers   map[string]*breaker
	classifier *classify.Classifier
	cfg        Config
}

// NewExecutor creates an executor sharing the given classifier.
func NewExecutor(classifier *classify.Classifier, cfg Config) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig.Cooldown
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = DefaultConfig.HalfOpenSuccesses
	}
	return &Executor{
		breakers:   make(map[string]*breaker),
		classifier: classifier,
		cfg:        cfg,
	}
}

// ExecuteWithRetry runs op under the circuit for key, retrying per the
// classification's retryable flag. On exhaustion or a non-retryable
// failure the single classified error is returned.
func (e *Executor) ExecuteWithRetry(ctx context.Context, key string, op Operation) (any, error) {
	return e.execute(ctx, key, op, func(ce *classify.ClassifiedError, _ Attempt) bool {
		return ce.Retryable
	})
}

// ExecuteWithCustomErrorHandling is ExecuteWithRetry with the per-attempt
// retry decision delegated to the caller's predicate.
func (e *Executor) ExecuteWithCustomErrorHandling(
	ctx context.Context,
	key string,
	op Operation,
	shouldRetry RetryPredicate,
) (any, error) {
	return e.execute(ctx, key, op, shouldRetry)
}

func (e *Executor) execute(
	ctx context.Context,
	key string,
	op Operation,
	shouldRetry RetryPredicate,
) (any, error) {
	if err := e.admit(key); err != nil {
		return nil, err
	}

	maxAttempts := e.cfg.MaxRetries + 1
	if e.cfg.Strategy == classify.NoRetry {
		maxAttempts = 1
	}

	var lastErr *classify.ClassifiedError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			e.recordSuccess(key)
			return result, nil
		}

		ce := e.classifier.Classify(err, key)
		lastErr = ce

		delay := Jitter(Backoff(e.cfg.Strategy, attempt, e.cfg.BaseDelay, e.cfg.MaxDelay), e.cfg.JitterPercent)
		meta := Attempt{Number: attempt, Remaining: maxAttempts - attempt, Delay: delay}

		if attempt == maxAttempts || !shouldRetry(ce, meta) {
			e.recordFailure(key)
			return nil, ce
		}

		select {
		case <-ctx.Done():
			e.recordFailure(key)
			return nil, e.classifier.Classify(ctx.Err(), key)
		case <-time.After(delay):
		}
	}

	// Unreachable: the loop always returns on the last attempt.
	return nil, lastErr
}

// admit checks the circuit for key. An open circuit whose cooldown has
// not elapsed rejects immediately; once the cooldown passes the circuit
// moves to HALF_OPEN and attempts are allowed through.
func (e *Executor) admit(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[key]
	if !ok {
		return nil
	}

	if b.state == StateOpen {
		if time.Now().Before(b.nextAttemptTime) {
			return e.classifier.NewCircuitOpen(key, b.nextAttemptTime)
		}
		b.state = StateHalfOpen
		b.successCount = 0
		e.publishState(key, b)
	}
	return nil
}

func (e *Executor) recordSuccess(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[key]
	if !ok {
		return
	}
	b.recordSuccess(e.cfg.HalfOpenSuccesses)
	e.publishState(key, b)
}

func (e *Executor) recordFailure(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[key]
	if !ok {
		b = &breaker{state: StateClosed}
		e.breakers[key] = b
	}
	b.recordFailure(e.cfg.FailureThreshold, e.cfg.Cooldown)
	e.publishState(key, b)
}

func (e *Executor) publishState(key string, b *breaker) {
	var v float64
	switch b.state {
	case StateHalfOpen:
		v = 1
	case StateOpen:
		v = 2
	}
	metrics.CircuitState.WithLabelValues(key).Set(v)
}

// Status returns the breaker state for key, or nil if none exists yet.
func (e *Executor) Status(key string) *BreakerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[key]
	if !ok {
		return nil
	}
	s := statusOf(key, b)
	return &s
}

// StatusAll returns the state of every breaker.
func (e *Executor) StatusAll() []BreakerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]BreakerStatus, 0, len(e.breakers))
	for key, b := range e.breakers {
		out = append(out, statusOf(key, b))
	}
	return out
}

// Reset forces the breaker for key back to CLOSED. Returns false if no
// breaker exists for the key.
func (e *Executor) Reset(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[key]
	if !ok {
		return false
	}
	b.reset()
	e.publishState(key, b)
	return true
}

// ErrorMetrics exposes the classifier's aggregated error counters.
func (e *Executor) ErrorMetrics() map[classify.ErrorType]classify.ErrorMetric {
	return e.classifier.Metrics()
}

func statusOf(key string, b *breaker) BreakerStatus {
	return BreakerStatus{
		Key:             key,
		State:           b.state.String(),
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
		NextAttemptTime: b.nextAttemptTime,
	}
}
