// Package dispatch tracks submitted OCR jobs, runs them in priority
// order on a single worker, handles job-level retries, and notifies
// callers on completion.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerly/dispatch/internal/budget"
	"github.com/ledgerly/dispatch/internal/cache"
	"github.com/ledgerly/dispatch/internal/core/domain"
	"github.com/ledgerly/dispatch/internal/metrics"
	"github.com/ledgerly/dispatch/internal/retry"
)

// Provider is the external OCR vendor contract. Calls to it are always
// wrapped by the retry executor.
type Provider interface {
	DetectText(ctx context.Context, image []byte, opts domain.OCROptions) (*domain.OCRResult, error)
}

// Notifier delivers best-effort terminal-state callbacks.
type Notifier interface {
	NotifyJobComplete(ctx context.Context, job *domain.Job)
}

// Config holds queue tuning.
type Config struct {
	TickInterval  time.Duration `yaml:"tick_interval"`
	MaxJobRetries int           `yaml:"max_job_retries"`
	CallTimeout   time.Duration `yaml:"call_timeout"`

	// BreakerKey is the circuit key for provider calls. One logical
	// circuit guards the vendor.
	BreakerKey string `yaml:"breaker_key"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	TickInterval:  1 * time.Second,
	MaxJobRetries: 3,
	CallTimeout:   30 * time.Second,
	BreakerKey:    "dispatch:ocr:detect_text",
}

// defaultJobSeconds seeds wait estimates before any job has completed.
const defaultJobSeconds = 3

// queued is a pending-list entry. notBefore delays retry re-submission
// without a separate timer per job.
type queued struct {
	job       *domain.Job
	notBefore time.Time
}

// Queue is the priority job queue. Job state is mutated only by the
// worker loop; all read paths take snapshots under the lock.
type Queue struct {
	mu      sync.RWMutex
	jobs    map[string]*domain.Job
	pending []*queued

	provider Provider
	executor *retry.Executor
	resCache *cache.ResultCache
	usage    *budget.Monitor
	notifier Notifier
	cfg      Config

	// requeueDelay computes the re-submission delay after a failed
	// attempt. Uncapped 2^retryCount seconds; overridable in tests.
	requeueDelay func(retryCount int) time.Duration

	wake chan struct{}

	startedAt           time.Time
	processedCount      int64
	totalProcessingTime time.Duration
}

// NewQueue wires the queue against its collaborators.
func NewQueue(
	provider Provider,
	executor *retry.Executor,
	resCache *cache.ResultCache,
	usage *budget.Monitor,
	notifier Notifier,
	cfg Config,
) *Queue {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig.TickInterval
	}
	if cfg.MaxJobRetries <= 0 {
		cfg.MaxJobRetries = DefaultConfig.MaxJobRetries
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig.CallTimeout
	}
	if cfg.BreakerKey == "" {
		cfg.BreakerKey = DefaultConfig.BreakerKey
	}
	return &Queue{
		jobs:     make(map[string]*domain.Job),
		provider: provider,
		executor: executor,
		resCache: resCache,
		usage:    usage,
		notifier: notifier,
		cfg:      cfg,
		requeueDelay: func(retryCount int) time.Duration {
			return time.Duration(1<<uint(retryCount)) * time.Second
		},
		wake:      make(chan struct{}, 1),
		startedAt: time.Now(),
	}
}

// AddJob submits a new job. Always succeeds; the job starts PENDING.
func (q *Queue) AddJob(req domain.OCRRequest, priority int, callbackURL string, metadata map[string]string) *domain.Job {
	job := &domain.Job{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Status:      domain.JobPending,
		Priority:    priority,
		Request:     req,
		MaxRetries:  q.cfg.MaxJobRetries,
		CallbackURL: callbackURL,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.enqueueLocked(job, time.Time{})
	q.mu.Unlock()

	q.signal()
	return snapshot(job)
}

// AddBatch submits independent jobs sharing a batch id. There is no
// atomicity across the batch.
func (q *Queue) AddBatch(reqs []domain.OCRRequest, priority int, callbackURL string) domain.BatchSubmission {
	batchID := uuid.New().String()
	jobIDs := make([]string, 0, len(reqs))

	q.mu.Lock()
	for _, req := range reqs {
		job := &domain.Job{
			ID:          uuid.New().String(),
			UserID:      req.UserID,
			BatchID:     batchID,
			Status:      domain.JobPending,
			Priority:    priority,
			Request:     req,
			MaxRetries:  q.cfg.MaxJobRetries,
			CallbackURL: callbackURL,
			CreatedAt:   time.Now(),
		}
		q.jobs[job.ID] = job
		q.enqueueLocked(job, time.Time{})
		jobIDs = append(jobIDs, job.ID)
	}
	perJob := q.avgProcessingLocked()
	q.mu.Unlock()

	q.signal()
	return domain.BatchSubmission{
		BatchID:                 batchID,
		JobIDs:                  jobIDs,
		EstimatedProcessingTime: time.Duration(len(reqs)) * perJob,
	}
}

// enqueueLocked inserts the job immediately before the first queued job
// of strictly lower priority. Equal priorities preserve arrival order.
func (q *Queue) enqueueLocked(job *domain.Job, notBefore time.Time) {
	entry := &queued{job: job, notBefore: notBefore}

	pos := len(q.pending)
	for i, e := range q.pending {
		if e.job.Priority < job.Priority {
			pos = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[pos+1:], q.pending[pos:])
	q.pending[pos] = entry

	metrics.QueueDepth.Set(float64(len(q.pending)))
}

// GetJob returns a snapshot of the job, or nil if unknown.
func (q *Queue) GetJob(id string) *domain.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil
	}
	return snapshot(job)
}

// GetUserJobs returns snapshots of all jobs submitted by a user.
func (q *Queue) GetUserJobs(userID string) []*domain.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*domain.Job
	for _, job := range q.jobs {
		if job.UserID == userID {
			out = append(out, snapshot(job))
		}
	}
	return out
}

// GetQueuePosition reports where a PENDING job sits in the queue, or
// nil if the job is not currently pending.
func (q *Queue) GetQueuePosition(id string) *domain.QueuePosition {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for i, e := range q.pending {
		if e.job.ID == id {
			return &domain.QueuePosition{
				Position:          i + 1,
				JobsAhead:         i,
				EstimatedWaitTime: time.Duration(i+1) * q.avgProcessingLocked(),
			}
		}
	}
	return nil
}

// CancelJob cancels a PENDING job. Jobs already processing or terminal
// are left untouched and false is returned.
func (q *Queue) CancelJob(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status != domain.JobPending {
		return false
	}

	for i, e := range q.pending {
		if e.job.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	now := time.Now()
	job.Status = domain.JobCancelled
	job.CompletedAt = &now

	metrics.QueueDepth.Set(float64(len(q.pending)))
	metrics.JobsTotal.WithLabelValues(string(domain.JobCancelled)).Inc()
	return true
}

// Stats returns a snapshot of queue throughput and backlog.
func (q *Queue) Stats() domain.QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := domain.QueueStats{TotalJobs: len(q.jobs)}
	for _, job := range q.jobs {
		switch job.Status {
		case domain.JobPending:
			stats.PendingJobs++
		case domain.JobProcessing:
			stats.ProcessingJobs++
		case domain.JobCompleted:
			stats.CompletedJobs++
		case domain.JobFailed:
			stats.FailedJobs++
		}
	}

	stats.AverageProcessingTime = q.avgProcessingLocked()
	uptime := time.Since(q.startedAt).Minutes()
	if uptime > 0 {
		stats.ProcessingRate = float64(q.processedCount) / uptime
	}
	stats.EstimatedWaitTime = time.Duration(stats.PendingJobs) * stats.AverageProcessingTime
	return stats
}

// CleanupOldJobs deletes terminal jobs older than the retention window
// and returns the number removed.
func (q *Queue) CleanupOldJobs(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, job := range q.jobs {
		if !job.Terminal() {
			continue
		}
		finished := job.CreatedAt
		if job.CompletedAt != nil {
			finished = *job.CompletedAt
		}
		if finished.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed
}

func (q *Queue) avgProcessingLocked() time.Duration {
	if q.processedCount == 0 {
		return defaultJobSeconds * time.Second
	}
	return q.totalProcessingTime / time.Duration(q.processedCount)
}

// signal wakes the worker without blocking the caller.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func snapshot(job *domain.Job) *domain.Job {
	cp := *job
	if job.Result != nil {
		r := *job.Result
		cp.Result = &r
	}
	if job.Metadata != nil {
		md := make(map[string]string, len(job.Metadata))
		for k, v := range job.Metadata {
			md[k] = v
		}
		cp.Metadata = md
	}
	return &cp
}
