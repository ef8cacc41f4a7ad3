package retry

import (
	"testing"
	"time"

	"github.com/ledgerly/dispatch/internal/classify"
)

func TestBackoffExponential(t *testing.T) {
	base := 1 * time.Second
	maxDelay := 30 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{6, 30 * time.Second}, // 32s capped
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		got := Backoff(classify.ExponentialBackoff, tc.attempt, base, maxDelay)
		if got != tc.want {
			t.Errorf("Backoff(exp, %d): expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestBackoffLinear(t *testing.T) {
	base := 2 * time.Second
	maxDelay := 7 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 6 * time.Second},
		{4, 7 * time.Second}, // 8s capped
	}
	for _, tc := range cases {
		got := Backoff(classify.LinearBackoff, tc.attempt, base, maxDelay)
		if got != tc.want {
			t.Errorf("Backoff(linear, %d): expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestBackoffFixedAndNone(t *testing.T) {
	base := 5 * time.Second

	for _, attempt := range []int{1, 3, 9} {
		if got := Backoff(classify.FixedDelay, attempt, base, 30*time.Second); got != base {
			t.Errorf("Backoff(fixed, %d): expected %s, got %s", attempt, base, got)
		}
		if got := Backoff(classify.NoRetry, attempt, base, 30*time.Second); got != 0 {
			t.Errorf("Backoff(no_retry, %d): expected 0, got %s", attempt, got)
		}
	}
}

func TestBackoffClampsAttempt(t *testing.T) {
	got := Backoff(classify.ExponentialBackoff, 0, time.Second, 30*time.Second)
	if got != time.Second {
		t.Errorf("Expected attempt 0 to behave like attempt 1, got %s", got)
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	delay := 10 * time.Second
	lo := 8 * time.Second
	hi := 12 * time.Second

	for i := 0; i < 1000; i++ {
		got := Jitter(delay, 20)
		if got < lo || got > hi {
			t.Fatalf("Jitter out of bounds: expected [%s, %s], got %s", lo, hi, got)
		}
		if got != got.Round(time.Millisecond) {
			t.Fatalf("Expected millisecond rounding, got %s", got)
		}
	}
}

func TestJitterDisabled(t *testing.T) {
	delay := 1500 * time.Millisecond
	if got := Jitter(delay, 0); got != delay {
		t.Errorf("Expected unchanged delay with zero jitter, got %s", got)
	}
	if got := Jitter(0, 20); got != 0 {
		t.Errorf("Expected zero delay to stay zero, got %s", got)
	}
}
