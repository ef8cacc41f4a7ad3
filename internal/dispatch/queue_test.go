package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerly/dispatch/internal/budget"
	"github.com/ledgerly/dispatch/internal/cache"
	"github.com/ledgerly/dispatch/internal/classify"
	"github.com/ledgerly/dispatch/internal/core/domain"
	"github.com/ledgerly/dispatch/internal/infra/storage/memory"
	"github.com/ledgerly/dispatch/internal/retry"
)

// fakeProvider scripts provider behavior per call.
type fakeProvider struct {
	fn    func(ctx context.Context, image []byte, opts domain.OCROptions) (*domain.OCRResult, error)
	calls int
}

func (p *fakeProvider) DetectText(ctx context.Context, image []byte, opts domain.OCROptions) (*domain.OCRResult, error) {
	p.calls++
	return p.fn(ctx, image, opts)
}

// fakeNotifier records terminal callbacks on a channel since delivery
// happens on a separate goroutine.
type fakeNotifier struct {
	ch chan *domain.Job
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan *domain.Job, 16)}
}

func (n *fakeNotifier) NotifyJobComplete(_ context.Context, job *domain.Job) {
	n.ch <- job
}

func (n *fakeNotifier) wait(t *testing.T) *domain.Job {
	t.Helper()
	select {
	case job := <-n.ch:
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a completion callback")
		return nil
	}
}

type testEnv struct {
	queue    *Queue
	provider *fakeProvider
	notifier *fakeNotifier
	repo     *memory.SpendRepo
	resCache *cache.ResultCache
}

func newTestEnv(t *testing.T, provider *fakeProvider) *testEnv {
	t.Helper()

	executor := retry.NewExecutor(classify.NewClassifier(), retry.Config{
		MaxRetries:        0,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		Strategy:          classify.ExponentialBackoff,
		FailureThreshold:  100,
		Cooldown:          time.Minute,
		HalfOpenSuccesses: 3,
	})

	resCache := cache.NewResultCache(cache.NewMemoryStore(), time.Hour, 1.5)
	repo := memory.NewSpendRepo()
	usage := budget.NewMonitor(repo, 50)
	notifier := newFakeNotifier()

	q := NewQueue(provider, executor, resCache, usage, notifier, Config{
		TickInterval:  10 * time.Millisecond,
		MaxJobRetries: 3,
		CallTimeout:   time.Second,
	})
	// Immediate re-submission keeps retry tests fast.
	q.requeueDelay = func(int) time.Duration { return 0 }

	return &testEnv{queue: q, provider: provider, notifier: notifier, repo: repo, resCache: resCache}
}

func okProvider(text string) *fakeProvider {
	return &fakeProvider{fn: func(ctx context.Context, image []byte, opts domain.OCROptions) (*domain.OCRResult, error) {
		return &domain.OCRResult{Text: text, Confidence: 0.92, BlockConfidences: []float64{0.92}, Pages: 1, DetectedAt: time.Now()}, nil
	}}
}

func failProvider(msg string) *fakeProvider {
	return &fakeProvider{fn: func(ctx context.Context, image []byte, opts domain.OCROptions) (*domain.OCRResult, error) {
		return nil, errors.New(msg)
	}}
}

func req(userID string) domain.OCRRequest {
	return domain.OCRRequest{UserID: userID, Image: []byte("statement-" + userID + ".png")}
}

func TestAddJobStartsPending(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))

	job := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", map[string]string{"source": "upload"})
	if job.Status != domain.JobPending {
		t.Errorf("Expected PENDING, got %s", job.Status)
	}
	if job.ID == "" {
		t.Error("Expected a job id")
	}
	if job.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries 3, got %d", job.MaxRetries)
	}

	got := env.queue.GetJob(job.ID)
	if got == nil || got.Metadata["source"] != "upload" {
		t.Errorf("Expected stored job with metadata, got %+v", got)
	}
}

func TestPriorityOrdering(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))

	low := env.queue.AddJob(req("u1"), domain.PriorityLow, "", nil)
	normal := env.queue.AddJob(req("u2"), domain.PriorityNormal, "", nil)
	high := env.queue.AddJob(req("u3"), domain.PriorityHigh, "", nil)

	wantOrder := []string{high.ID, normal.ID, low.ID}
	for i, want := range wantOrder {
		popped := env.queue.popEligible()
		if popped == nil {
			t.Fatalf("Expected job at position %d", i)
		}
		if popped.ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, popped.ID)
		}
	}
}

func TestEqualPriorityIsFIFO(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))

	first := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)
	second := env.queue.AddJob(req("u2"), domain.PriorityNormal, "", nil)

	if got := env.queue.popEligible(); got.ID != first.ID {
		t.Errorf("Expected FIFO order for equal priorities")
	}
	if got := env.queue.popEligible(); got.ID != second.ID {
		t.Errorf("Expected second job next")
	}
}

func TestProcessJobSuccess(t *testing.T) {
	env := newTestEnv(t, okProvider("balance: 420.00"))
	ctx := context.Background()

	r := req("u1")
	r.EstimatedCost = 0.9
	job := env.queue.AddJob(r, domain.PriorityNormal, "http://callback", nil)

	if !env.queue.processNext(ctx) {
		t.Fatal("Expected a job to be processed")
	}

	got := env.queue.GetJob(job.ID)
	if got.Status != domain.JobCompleted {
		t.Fatalf("Expected COMPLETED, got %s (error: %s)", got.Status, got.Error)
	}
	if got.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", got.Progress)
	}
	if got.Result == nil || got.Result.Text != "balance: 420.00" {
		t.Errorf("Expected result text, got %+v", got.Result)
	}

	// Result cached for future identical uploads.
	if _, ok := env.resCache.Get(ctx, r.Image, r.Options); !ok {
		t.Error("Expected result to be cached")
	}

	// Spend attributed to the user.
	total, calls, err := env.repo.SumSince(ctx, "u1", time.Now().Add(-time.Hour))
	if err != nil || calls != 1 || total != 0.9 {
		t.Errorf("Expected one 0.9 spend record, got total=%f calls=%d err=%v", total, calls, err)
	}

	done := env.notifier.wait(t)
	if done.ID != job.ID || done.Status != domain.JobCompleted {
		t.Errorf("Expected completion callback for %s, got %+v", job.ID, done)
	}
}

func TestJobFailsAfterMaxRetries(t *testing.T) {
	env := newTestEnv(t, failProvider("request timed out"))
	ctx := context.Background()

	job := env.queue.AddJob(req("u1"), domain.PriorityNormal, "http://callback", nil)

	// MaxJobRetries 3 allows 4 total attempts before the terminal state.
	for i := 0; i < 4; i++ {
		if !env.queue.processNext(ctx) {
			t.Fatalf("Expected attempt %d to find the job", i+1)
		}
	}

	got := env.queue.GetJob(job.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("Expected FAILED, got %s", got.Status)
	}
	if got.RetryCount != 3 {
		t.Errorf("Expected retry count 3, got %d", got.RetryCount)
	}
	if env.provider.calls != 4 {
		t.Errorf("Expected 4 provider attempts, got %d", env.provider.calls)
	}

	done := env.notifier.wait(t)
	if done.Status != domain.JobFailed || done.Error == "" {
		t.Errorf("Expected failure callback with error, got %+v", done)
	}

	// Nothing left to process.
	if env.queue.processNext(ctx) {
		t.Error("Expected empty queue after terminal failure")
	}
}

func TestRetryDelayDefersEligibility(t *testing.T) {
	env := newTestEnv(t, failProvider("request timed out"))
	env.queue.requeueDelay = func(retryCount int) time.Duration {
		return time.Duration(1<<uint(retryCount)) * time.Hour
	}
	ctx := context.Background()

	job := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)

	if !env.queue.processNext(ctx) {
		t.Fatal("Expected first attempt")
	}

	got := env.queue.GetJob(job.ID)
	if got.Status != domain.JobPending || got.RetryCount != 1 {
		t.Fatalf("Expected requeued job, got status=%s retries=%d", got.Status, got.RetryCount)
	}

	// The retry is hours away, so nothing is eligible now.
	if env.queue.processNext(ctx) {
		t.Error("Expected delayed retry not to be eligible yet")
	}
}

func TestNonRetryableStillConsumesJobRetries(t *testing.T) {
	// Provider-level classification stops executor retries, but the job
	// layer still re-submits until its own budget runs out.
	env := newTestEnv(t, failProvider("invalid credentials"))
	ctx := context.Background()

	job := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)

	for i := 0; i < 4; i++ {
		env.queue.processNext(ctx)
	}

	got := env.queue.GetJob(job.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("Expected FAILED, got %s", got.Status)
	}
	if env.provider.calls != 4 {
		t.Errorf("Expected one provider call per job attempt, got %d", env.provider.calls)
	}
}

func TestProviderPanicBecomesFailure(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{fn: func(ctx context.Context, image []byte, opts domain.OCROptions) (*domain.OCRResult, error) {
		panic("vendor SDK bug")
	}})
	ctx := context.Background()

	job := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)

	if !env.queue.processNext(ctx) {
		t.Fatal("Expected the job to be attempted")
	}

	got := env.queue.GetJob(job.ID)
	if got.Status != domain.JobPending {
		t.Fatalf("Expected requeue after panic, got %s", got.Status)
	}
	if got.Error == "" {
		t.Error("Expected the panic to be recorded as the attempt error")
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))
	ctx := context.Background()

	job := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)

	if !env.queue.CancelJob(job.ID) {
		t.Fatal("Expected pending job to cancel")
	}
	got := env.queue.GetJob(job.ID)
	if got.Status != domain.JobCancelled {
		t.Errorf("Expected CANCELLED, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}

	// Idempotence: terminal jobs cannot be cancelled again.
	if env.queue.CancelJob(job.ID) {
		t.Error("Expected second cancel to fail")
	}
	if env.queue.CancelJob("no-such-job") {
		t.Error("Expected cancel of unknown job to fail")
	}

	// Cancelled jobs never reach the provider.
	if env.queue.processNext(ctx) {
		t.Error("Expected nothing to process after cancel")
	}
	if env.provider.calls != 0 {
		t.Errorf("Expected no provider calls, got %d", env.provider.calls)
	}
}

func TestCancelCompletedJobFails(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))
	ctx := context.Background()

	job := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)
	env.queue.processNext(ctx)

	if env.queue.CancelJob(job.ID) {
		t.Error("Expected completed job not to be cancellable")
	}
}

func TestGetQueuePosition(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))

	first := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)
	second := env.queue.AddJob(req("u2"), domain.PriorityNormal, "", nil)

	pos := env.queue.GetQueuePosition(second.ID)
	if pos == nil {
		t.Fatal("Expected a position for a pending job")
	}
	if pos.Position != 2 || pos.JobsAhead != 1 {
		t.Errorf("Expected position 2 with 1 ahead, got %+v", pos)
	}
	if pos.EstimatedWaitTime <= 0 {
		t.Error("Expected a positive wait estimate")
	}

	// A higher-priority arrival pushes it back.
	env.queue.AddJob(req("u3"), domain.PriorityHigh, "", nil)
	pos = env.queue.GetQueuePosition(second.ID)
	if pos.Position != 3 {
		t.Errorf("Expected position 3 after high-priority arrival, got %d", pos.Position)
	}

	if env.queue.GetQueuePosition(first.ID).Position != 2 {
		t.Errorf("Expected first normal job at position 2")
	}
	if env.queue.GetQueuePosition("unknown") != nil {
		t.Error("Expected nil position for unknown job")
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))
	ctx := context.Background()

	env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)
	env.queue.AddJob(req("u2"), domain.PriorityNormal, "", nil)
	env.queue.processNext(ctx)

	stats := env.queue.Stats()
	if stats.TotalJobs != 2 {
		t.Errorf("Expected 2 total jobs, got %d", stats.TotalJobs)
	}
	if stats.PendingJobs != 1 {
		t.Errorf("Expected 1 pending job, got %d", stats.PendingJobs)
	}
	if stats.CompletedJobs != 1 {
		t.Errorf("Expected 1 completed job, got %d", stats.CompletedJobs)
	}
	if stats.AverageProcessingTime < 0 {
		t.Errorf("Expected non-negative average, got %s", stats.AverageProcessingTime)
	}
}

func TestCleanupOldJobs(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))
	ctx := context.Background()

	oldJob := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)
	env.queue.processNext(ctx)
	pending := env.queue.AddJob(req("u2"), domain.PriorityNormal, "", nil)

	// Backdate the completed job past the retention window.
	env.queue.mu.Lock()
	past := time.Now().Add(-48 * time.Hour)
	env.queue.jobs[oldJob.ID].CompletedAt = &past
	env.queue.mu.Unlock()

	removed := env.queue.CleanupOldJobs(24 * time.Hour)
	if removed != 1 {
		t.Errorf("Expected 1 removed job, got %d", removed)
	}
	if env.queue.GetJob(oldJob.ID) != nil {
		t.Error("Expected old job to be gone")
	}
	if env.queue.GetJob(pending.ID) == nil {
		t.Error("Expected pending job to survive cleanup")
	}
}

func TestAddBatch(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))

	reqs := []domain.OCRRequest{req("u1"), req("u1"), req("u1")}
	sub := env.queue.AddBatch(reqs, domain.PriorityNormal, "")

	if sub.BatchID == "" {
		t.Error("Expected a batch id")
	}
	if len(sub.JobIDs) != 3 {
		t.Fatalf("Expected 3 job ids, got %d", len(sub.JobIDs))
	}
	if sub.EstimatedProcessingTime <= 0 {
		t.Error("Expected a positive processing estimate")
	}

	for _, id := range sub.JobIDs {
		job := env.queue.GetJob(id)
		if job == nil || job.BatchID != sub.BatchID {
			t.Errorf("Expected job %s to carry the batch id", id)
		}
	}
}

func TestGetUserJobs(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))

	env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)
	env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)
	env.queue.AddJob(req("u2"), domain.PriorityNormal, "", nil)

	if got := len(env.queue.GetUserJobs("u1")); got != 2 {
		t.Errorf("Expected 2 jobs for u1, got %d", got)
	}
	if got := len(env.queue.GetUserJobs("u3")); got != 0 {
		t.Errorf("Expected no jobs for u3, got %d", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))

	job := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", map[string]string{"k": "v"})
	job.Metadata["k"] = "mutated"
	job.Status = domain.JobFailed

	got := env.queue.GetJob(job.ID)
	if got.Metadata["k"] != "v" {
		t.Error("Expected caller mutation not to leak into queue state")
	}
	if got.Status != domain.JobPending {
		t.Errorf("Expected PENDING, got %s", got.Status)
	}
}

func TestQuotaRecheckBlocksProcessing(t *testing.T) {
	env := newTestEnv(t, okProvider("text"))
	ctx := context.Background()

	// Drain the budget after the job was queued.
	job := env.queue.AddJob(req("u1"), domain.PriorityNormal, "", nil)
	if err := env.repo.Add(ctx, &domain.SpendRecord{
		UserID: "u1", JobID: "prior", Cost: 50, Tier: domain.TierHigh, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed spend: %v", err)
	}

	for i := 0; i < 4; i++ {
		env.queue.processNext(ctx)
	}

	got := env.queue.GetJob(job.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("Expected FAILED after quota re-check, got %s", got.Status)
	}
	if env.provider.calls != 0 {
		t.Errorf("Expected provider never to be called over quota, got %d calls", env.provider.calls)
	}
}
