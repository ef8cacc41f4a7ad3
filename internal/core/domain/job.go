package domain

import (
	"time"
)

// JobStatus represents the lifecycle state of an OCR job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobCancelled  JobStatus = "CANCELLED"
)

// Queue priority levels. Higher value means more urgent.
const (
	PriorityLow    = 1
	PriorityNormal = 5
	PriorityHigh   = 10
)

// Job is a unit of OCR work tracked by the dispatch queue.
type Job struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	BatchID     string            `json:"batch_id,omitempty"`
	Status      JobStatus         `json:"status"`
	Priority    int               `json:"priority"`
	Request     OCRRequest        `json:"request"`
	Result      *OCRResult        `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
	Progress    int               `json:"progress"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
// Terminal jobs are immutable.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// ProcessingTime returns the wall time from start to completion,
// or zero if the job has not finished.
func (j *Job) ProcessingTime() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// QueuePosition describes where a pending job sits in the queue.
type QueuePosition struct {
	Position          int           `json:"position"`
	JobsAhead         int           `json:"jobs_ahead"`
	EstimatedWaitTime time.Duration `json:"estimated_wait_time"`
}

// QueueStats is a snapshot of queue throughput and backlog.
type QueueStats struct {
	TotalJobs             int           `json:"total_jobs"`
	PendingJobs           int           `json:"pending_jobs"`
	ProcessingJobs        int           `json:"processing_jobs"`
	CompletedJobs         int           `json:"completed_jobs"`
	FailedJobs            int           `json:"failed_jobs"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	ProcessingRate        float64       `json:"processing_rate"` // jobs per minute
	EstimatedWaitTime     time.Duration `json:"estimated_wait_time"`
}

// BatchSubmission is the result of submitting a batch of jobs.
type BatchSubmission struct {
	BatchID                 string        `json:"batch_id"`
	JobIDs                  []string      `json:"job_ids"`
	EstimatedProcessingTime time.Duration `json:"estimated_processing_time"`
}
