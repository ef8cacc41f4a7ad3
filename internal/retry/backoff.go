package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/ledgerly/dispatch/internal/classify"
)

// Backoff computes the delay before retry attempt n (1-indexed) for the
// given strategy, before jitter. Exponential and linear delays are capped
// at maxDelay.
func Backoff(strategy classify.RetryStrategy, attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay float64
	switch strategy {
	case classify.ExponentialBackoff:
		delay = float64(base) * math.Pow(2, float64(attempt-1))
	case classify.LinearBackoff:
		delay = float64(base) * float64(attempt)
	case classify.FixedDelay:
		return base
	case classify.NoRetry:
		return 0
	default:
		delay = float64(base) * math.Pow(2, float64(attempt-1))
	}

	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}

// Jitter applies symmetric jitter of up to jitterPercent of the delay,
// clamped to zero and rounded to the nearest millisecond.
func Jitter(delay time.Duration, jitterPercent float64) time.Duration {
	if jitterPercent <= 0 || delay <= 0 {
		return delay.Round(time.Millisecond)
	}

	// U(-1, 1)
	u := rand.Float64()*2 - 1
	jittered := float64(delay) + float64(delay)*jitterPercent/100*u
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered).Round(time.Millisecond)
}
