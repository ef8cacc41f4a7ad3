package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerly/dispatch/internal/core/domain"
)

// SpendRepo is the in-memory SpendRepository used when no database is
// configured, and in tests.
type SpendRepo struct {
	mu      sync.RWMutex
	records []*domain.SpendRecord
}

// NewSpendRepo creates an empty in-memory spend repository.
func NewSpendRepo() *SpendRepo {
	return &SpendRepo{}
}

func (r *SpendRepo) Add(_ context.Context, rec *domain.SpendRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

func (r *SpendRepo) SumSince(_ context.Context, userID string, since time.Time) (float64, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total float64
	var calls int
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.CreatedAt.Before(since) {
			total += rec.Cost
			calls++
		}
	}
	return total, calls, nil
}

func (r *SpendRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	var removed int64
	for _, rec := range r.records {
		if rec.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return removed, nil
}
