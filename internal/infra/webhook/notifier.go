// Package webhook delivers best-effort job completion callbacks.
// Delivery failures are logged and dropped; they never affect job state
// and are never retried.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ledgerly/dispatch/internal/core/domain"
)

// Notifier posts terminal-state notifications to job callback URLs.
type Notifier struct {
	httpClient *http.Client
	log        *slog.Logger
}

// NewNotifier creates a notifier with the given delivery timeout.
func NewNotifier(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		httpClient: &http.Client{Timeout: timeout},
		log:        slog.Default().With("component", "webhook"),
	}
}

type payload struct {
	JobID          string            `json:"jobId"`
	Status         domain.JobStatus  `json:"status"`
	Result         *domain.OCRResult `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	ProcessingTime int64             `json:"processingTime"` // milliseconds
	CompletedAt    time.Time         `json:"completedAt"`
}

// NotifyJobComplete posts the terminal state to the job's callback URL.
// Fire and log: any failure is recorded and dropped.
func (n *Notifier) NotifyJobComplete(ctx context.Context, job *domain.Job) {
	if job.CallbackURL == "" {
		return
	}

	p := payload{
		JobID:          job.ID,
		Status:         job.Status,
		Result:         job.Result,
		Error:          job.Error,
		ProcessingTime: job.ProcessingTime().Milliseconds(),
	}
	if job.CompletedAt != nil {
		p.CompletedAt = *job.CompletedAt
	}

	body, err := json.Marshal(p)
	if err != nil {
		n.log.Warn("failed to marshal callback payload", "job_id", job.ID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.CallbackURL, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("failed to build callback request", "job_id", job.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log.Warn("callback delivery failed", "job_id", job.ID, "url", job.CallbackURL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.Warn("callback rejected", "job_id", job.ID, "url", job.CallbackURL, "status", resp.StatusCode)
		return
	}
	n.log.Debug("callback delivered", "job_id", job.ID, "status", job.Status)
}
