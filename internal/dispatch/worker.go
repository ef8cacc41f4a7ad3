package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerly/dispatch/internal/core/domain"
	"github.com/ledgerly/dispatch/internal/metrics"
)

// Start runs the worker loop until ctx is cancelled. A single goroutine
// owns all Job mutations, so job and circuit state are never touched
// concurrently. At most one job is processed per wakeup.
func (q *Queue) Start(ctx context.Context) {
	log := slog.Default().With("component", "job_queue")
	log.Info("worker loop started", "tick", q.cfg.TickInterval)

	ticker := time.NewTicker(q.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker loop stopped")
			return
		case <-q.wake:
		case <-ticker.C:
		}
		q.processNext(ctx)
	}
}

// processNext pops the highest-priority eligible pending job and runs it
// to a status transition. Returns false when nothing was eligible.
func (q *Queue) processNext(ctx context.Context) bool {
	job := q.popEligible()
	if job == nil {
		return false
	}
	q.processJob(ctx, job)
	return true
}

// popEligible removes the first pending entry whose retry delay has
// elapsed and marks it PROCESSING. Popping before processing guarantees
// a job is never attempted twice concurrently.
func (q *Queue) popEligible() *domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, e := range q.pending {
		if e.notBefore.After(now) {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		metrics.QueueDepth.Set(float64(len(q.pending)))

		job := e.job
		job.Status = domain.JobProcessing
		job.StartedAt = &now
		job.Progress = 10
		return job
	}
	return nil
}

func (q *Queue) processJob(ctx context.Context, job *domain.Job) {
	log := slog.Default().With("component", "job_queue", "job_id", job.ID, "user_id", job.UserID)

	result, err := q.runProvider(ctx, job)
	if err != nil {
		q.handleFailure(job, err, log)
		return
	}

	if err := q.resCache.Put(ctx, job.Request.Image, result, job.Request.Options); err != nil {
		log.Warn("failed to cache result", "error", err)
	}
	if job.Request.EstimatedCost > 0 {
		if err := q.usage.Record(ctx, job.UserID, job.ID, job.Request.EstimatedCost, job.Request.Options.Tier); err != nil {
			log.Warn("failed to record spend", "error", err)
		}
	}

	now := time.Now()
	q.mu.Lock()
	job.Result = result
	job.Status = domain.JobCompleted
	job.Progress = 100
	job.CompletedAt = &now
	q.processedCount++
	q.totalProcessingTime += now.Sub(*job.StartedAt)
	done := snapshot(job)
	q.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(string(domain.JobCompleted)).Inc()
	metrics.JobProcessingSeconds.Observe(now.Sub(*job.StartedAt).Seconds())
	log.Info("job completed", "pages", result.Pages, "confidence", result.Confidence)

	q.notify(done)
}

// runProvider performs the admission re-check and the circuit-gated
// provider call. Any panic from the provider is converted into an error
// so the worker loop never propagates it.
func (q *Queue) runProvider(ctx context.Context, job *domain.Job) (result *domain.OCRResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()

	// Quota re-check at processing time: budget may have drained while
	// the job sat in the queue.
	if remaining, uerr := q.usage.Remaining(ctx, job.UserID); uerr == nil && remaining <= 0 {
		return nil, fmt.Errorf("quota exceeded: daily limit reached for user %s", job.UserID)
	}
	q.setProgress(job, 30)

	start := time.Now()
	out, err := q.executor.ExecuteWithRetry(ctx, q.cfg.BreakerKey, func(ctx context.Context) (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, q.cfg.CallTimeout)
		defer cancel()

		res, err := q.provider.DetectText(callCtx, job.Request.Image, job.Request.Options)
		if callCtx.Err() != nil {
			// The deadline won the race: discard any late result.
			return nil, callCtx.Err()
		}
		return res, err
	})
	metrics.ProviderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderCallsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ProviderCallsTotal.WithLabelValues("success").Inc()
	q.setProgress(job, 90)

	res, ok := out.(*domain.OCRResult)
	if !ok || res == nil {
		return nil, fmt.Errorf("provider returned no result")
	}
	return res, nil
}

// handleFailure applies the job-level retry policy: re-enqueue with an
// uncapped 2^retryCount second delay while budget remains, terminal
// FAILED otherwise. This backoff layer governs queue re-submission and
// is deliberately independent of the executor's capped backoff.
func (q *Queue) handleFailure(job *domain.Job, cause error, log *slog.Logger) {
	q.mu.Lock()
	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = domain.JobPending
		job.StartedAt = nil
		job.Progress = 0
		job.Error = fmt.Sprintf("attempt %d failed: %s", job.RetryCount, cause)
		delay := q.requeueDelay(job.RetryCount)
		q.enqueueLocked(job, time.Now().Add(delay))
		q.mu.Unlock()

		log.Warn("job attempt failed, requeued",
			"retry_count", job.RetryCount, "delay", delay, "error", cause)
		return
	}

	now := time.Now()
	job.Status = domain.JobFailed
	job.Error = cause.Error()
	job.CompletedAt = &now
	done := snapshot(job)
	q.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(string(domain.JobFailed)).Inc()
	log.Error("job failed permanently", "retry_count", job.RetryCount, "error", cause)

	q.notify(done)
}

// notify fires the terminal-state callback without blocking the worker
// loop. Delivery failures are logged inside the notifier, never retried.
func (q *Queue) notify(job *domain.Job) {
	if q.notifier == nil || job.CallbackURL == "" {
		return
	}
	go q.notifier.NotifyJobComplete(context.Background(), job)
}

func (q *Queue) setProgress(job *domain.Job, progress int) {
	q.mu.Lock()
	job.Progress = progress
	q.mu.Unlock()
}
