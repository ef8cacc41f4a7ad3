// Package classify turns raw provider and infrastructure failures into
// structured, policy-bearing errors.
//
// This package contains:
//   - Classifier: ordered substring-pattern matcher with a default fallback
//   - ClassifiedError: typed error carrying severity and retry policy
//   - error metrics aggregation per error type
package classify

import (
	"fmt"
	"strings"
	"time"
)

// ErrorType identifies a failure category.
type ErrorType string

const (
	// Transient failures, retryable.
	NetworkTimeout           ErrorType = "NETWORK_TIMEOUT"
	RateLimitExceeded        ErrorType = "RATE_LIMIT_EXCEEDED"
	ServiceUnavailable       ErrorType = "SERVICE_UNAVAILABLE"
	ConnectionReset          ErrorType = "CONNECTION_RESET"
	StorageUnavailable       ErrorType = "STORAGE_UNAVAILABLE"
	TemporaryProcessingError ErrorType = "TEMPORARY_PROCESSING_ERROR"

	// Permanent failures, never retried.
	InvalidCredentials ErrorType = "INVALID_CREDENTIALS"
	QuotaExceeded      ErrorType = "QUOTA_EXCEEDED"
	UnsupportedFormat  ErrorType = "UNSUPPORTED_FORMAT"
	FileTooLarge       ErrorType = "FILE_TOO_LARGE"
	InvalidImageData   ErrorType = "INVALID_IMAGE_DATA"
	PermissionDenied   ErrorType = "PERMISSION_DENIED"

	// Infrastructure failures, retryable with backoff.
	DatabaseConnection ErrorType = "DATABASE_CONNECTION"

	// Processing failures, retryable.
	OCRFailed           ErrorType = "OCR_FAILED"
	PreprocessingFailed ErrorType = "PREPROCESSING_FAILED"
	ParsingFailed       ErrorType = "PARSING_FAILED"

	// CircuitOpen is raised when a call is rejected without an attempt
	// because the operation's circuit breaker is open.
	CircuitOpen ErrorType = "CIRCUIT_OPEN"
)

// Severity tags the operational impact of an error.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RetryStrategy selects the backoff formula used between attempts.
type RetryStrategy string

const (
	ExponentialBackoff RetryStrategy = "exponential_backoff"
	LinearBackoff      RetryStrategy = "linear_backoff"
	FixedDelay         RetryStrategy = "fixed_delay"
	NoRetry            RetryStrategy = "no_retry"
)

// ClassifiedError is a failure annotated with retry policy and severity.
type ClassifiedError struct {
	Type            ErrorType
	Severity        Severity
	Retryable       bool
	Strategy        RetryStrategy
	MaxRetries      int
	SuggestedAction string
	Message         string
	Context         string
	Timestamp       time.Time
	cause           error
}

func (e *ClassifiedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Context, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// rule maps a lowercase substring pattern to a classification template.
type rule struct {
	pattern         string
	errType         ErrorType
	severity        Severity
	retryable       bool
	strategy        RetryStrategy
	maxRetries      int
	suggestedAction string
}

// defaultRules is scanned in order; first match wins. More specific
// patterns must come before broader ones.
var defaultRules = []rule{
	{"rate limit", RateLimitExceeded, SeverityMedium, true, ExponentialBackoff, 5, "slow down request rate"},
	{"too many requests", RateLimitExceeded, SeverityMedium, true, ExponentialBackoff, 5, "slow down request rate"},
	{"429", RateLimitExceeded, SeverityMedium, true, ExponentialBackoff, 5, "slow down request rate"},
	{"invalid credentials", InvalidCredentials, SeverityCritical, false, NoRetry, 0, "rotate the provider API key"},
	{"unauthenticated", InvalidCredentials, SeverityCritical, false, NoRetry, 0, "rotate the provider API key"},
	{"api key", InvalidCredentials, SeverityCritical, false, NoRetry, 0, "rotate the provider API key"},
	{"permission denied", PermissionDenied, SeverityCritical, false, NoRetry, 0, "check provider account permissions"},
	{"403", PermissionDenied, SeverityCritical, false, NoRetry, 0, "check provider account permissions"},
	{"quota exceeded", QuotaExceeded, SeverityHigh, false, NoRetry, 0, "wait for quota reset or raise the limit"},
	{"daily limit", QuotaExceeded, SeverityHigh, false, NoRetry, 0, "wait for quota reset or raise the limit"},
	{"unsupported format", UnsupportedFormat, SeverityMedium, false, NoRetry, 0, "convert the image to a supported format"},
	{"unsupported image", UnsupportedFormat, SeverityMedium, false, NoRetry, 0, "convert the image to a supported format"},
	{"file too large", FileTooLarge, SeverityMedium, false, NoRetry, 0, "downscale the image before upload"},
	{"payload too large", FileTooLarge, SeverityMedium, false, NoRetry, 0, "downscale the image before upload"},
	{"invalid image", InvalidImageData, SeverityMedium, false, NoRetry, 0, "re-capture the statement image"},
	{"corrupt", InvalidImageData, SeverityMedium, false, NoRetry, 0, "re-capture the statement image"},
	{"connection reset", ConnectionReset, SeverityMedium, true, ExponentialBackoff, 3, "retry after backoff"},
	{"connection refused", ServiceUnavailable, SeverityHigh, true, ExponentialBackoff, 3, "retry after backoff"},
	{"deadline exceeded", NetworkTimeout, SeverityMedium, true, ExponentialBackoff, 3, "retry after backoff"},
	{"timeout", NetworkTimeout, SeverityMedium, true, ExponentialBackoff, 3, "retry after backoff"},
	{"timed out", NetworkTimeout, SeverityMedium, true, ExponentialBackoff, 3, "retry after backoff"},
	{"service unavailable", ServiceUnavailable, SeverityHigh, true, ExponentialBackoff, 3, "retry after backoff"},
	{"503", ServiceUnavailable, SeverityHigh, true, ExponentialBackoff, 3, "retry after backoff"},
	{"database", DatabaseConnection, SeverityHigh, true, ExponentialBackoff, 3, "check database connectivity"},
	{"redis", StorageUnavailable, SeverityMedium, true, ExponentialBackoff, 3, "check cache connectivity"},
	{"ocr failed", OCRFailed, SeverityMedium, true, ExponentialBackoff, 2, "retry, then flag for manual review"},
	{"preprocessing", PreprocessingFailed, SeverityMedium, true, FixedDelay, 2, "retry, then skip preprocessing"},
	{"parse", ParsingFailed, SeverityLow, true, FixedDelay, 2, "retry with lenient parsing"},
}

// nonRetryable is the fixed set of error types that are never retried
// regardless of how the message matched.
var nonRetryable = map[ErrorType]bool{
	InvalidCredentials: true,
	QuotaExceeded:      true,
	UnsupportedFormat:  true,
	FileTooLarge:       true,
	InvalidImageData:   true,
	PermissionDenied:   true,
}

// Classifier maps raw failures to classified errors and aggregates
// per-type error metrics.
type Classifier struct {
	rules   []rule
	metrics *MetricSet
}

// NewClassifier creates a classifier with the default rule set.
func NewClassifier() *Classifier {
	return &Classifier{
		rules:   defaultRules,
		metrics: newMetricSet(),
	}
}

// Classify maps err to a classified error. The scan is first-match-wins
// over the ordered rule list; unmatched errors fall back to a retryable
// temporary processing error.
func (c *Classifier) Classify(err error, context string) *ClassifiedError {
	msg := err.Error()
	lower := strings.ToLower(msg)

	for _, r := range c.rules {
		if strings.Contains(lower, r.pattern) {
			ce := &ClassifiedError{
				Type:            r.errType,
				Severity:        r.severity,
				Retryable:       r.retryable && !nonRetryable[r.errType],
				Strategy:        r.strategy,
				MaxRetries:      r.maxRetries,
				SuggestedAction: r.suggestedAction,
				Message:         msg,
				Context:         context,
				Timestamp:       time.Now(),
				cause:           err,
			}
			c.metrics.record(ce.Type, ce.Severity)
			return ce
		}
	}

	ce := &ClassifiedError{
		Type:            TemporaryProcessingError,
		Severity:        SeverityMedium,
		Retryable:       true,
		Strategy:        ExponentialBackoff,
		MaxRetries:      3,
		SuggestedAction: "retry after backoff",
		Message:         msg,
		Context:         context,
		Timestamp:       time.Now(),
		cause:           err,
	}
	c.metrics.record(ce.Type, ce.Severity)
	return ce
}

// NewCircuitOpen builds the rejection returned when a breaker is open.
// It bypasses the pattern scan and is never retryable at the call site.
func (c *Classifier) NewCircuitOpen(key string, retryAt time.Time) *ClassifiedError {
	ce := &ClassifiedError{
		Type:            CircuitOpen,
		Severity:        SeverityHigh,
		Retryable:       false,
		Strategy:        NoRetry,
		SuggestedAction: "wait for the circuit cooldown to elapse",
		Message:         fmt.Sprintf("circuit open until %s", retryAt.Format(time.RFC3339)),
		Context:         key,
		Timestamp:       time.Now(),
	}
	c.metrics.record(ce.Type, ce.Severity)
	return ce
}

// IsRetryable reports whether an error type may ever be retried.
// The permanent set is fixed; everything else defaults to retryable.
func IsRetryable(t ErrorType) bool {
	return !nonRetryable[t]
}

// Metrics returns a snapshot of the per-type error counters.
func (c *Classifier) Metrics() map[ErrorType]ErrorMetric {
	return c.metrics.snapshot()
}

// ResetMetrics zeroes all error counters. Administrative action only.
func (c *Classifier) ResetMetrics() {
	c.metrics.reset()
}
