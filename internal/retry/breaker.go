package retry

import (
	"time"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// breaker tracks failures for one operation key. Created lazily on first
// use and kept for the process lifetime. All access is serialized by the
// owning Executor.
type breaker struct {
	state           BreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	nextAttemptTime time.Time
}

// recordSuccess applies a successful attempt. In HALF_OPEN the circuit
// closes after the configured number of consecutive successes; in CLOSED
// any success clears the failure count.
func (b *breaker) recordSuccess(halfOpenSuccesses int) {
	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= halfOpenSuccesses {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// recordFailure applies a terminal attempt failure. A failure in
// HALF_OPEN reopens the circuit immediately; in CLOSED the circuit opens
// once the failure count reaches the threshold.
func (b *breaker) recordFailure(threshold int, cooldown time.Duration) {
	now := time.Now()
	b.lastFailureTime = now
	b.failureCount++
	b.successCount = 0

	if b.state == StateHalfOpen || b.failureCount >= threshold {
		b.state = StateOpen
		b.nextAttemptTime = now.Add(cooldown)
	}
}

// reset forces the breaker back to CLOSED with counters zeroed.
func (b *breaker) reset() {
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.nextAttemptTime = time.Time{}
}

// BreakerStatus is the externally visible breaker state for one key.
type BreakerStatus struct {
	Key             string    `json:"key"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	NextAttemptTime time.Time `json:"next_attempt_time,omitempty"`
}
