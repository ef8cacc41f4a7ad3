package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerly/dispatch/internal/core/domain"
)

func record(userID string, cost float64, age time.Duration) *domain.SpendRecord {
	return &domain.SpendRecord{
		UserID:    userID,
		JobID:     "job",
		Cost:      cost,
		Tier:      domain.TierMedium,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestSumSinceFiltersByUserAndTime(t *testing.T) {
	r := NewSpendRepo()
	ctx := context.Background()

	_ = r.Add(ctx, record("u1", 1, 0))
	_ = r.Add(ctx, record("u1", 2, 2*time.Hour))
	_ = r.Add(ctx, record("u2", 4, 0))

	total, calls, err := r.SumSince(ctx, "u1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SumSince failed: %v", err)
	}
	if total != 1 || calls != 1 {
		t.Errorf("Expected total=1 calls=1, got total=%f calls=%d", total, calls)
	}

	total, calls, _ = r.SumSince(ctx, "u1", time.Now().Add(-3*time.Hour))
	if total != 3 || calls != 2 {
		t.Errorf("Expected total=3 calls=2, got total=%f calls=%d", total, calls)
	}
}

func TestAddCopiesRecord(t *testing.T) {
	r := NewSpendRepo()
	ctx := context.Background()

	rec := record("u1", 1, 0)
	_ = r.Add(ctx, rec)
	rec.Cost = 99

	total, _, _ := r.SumSince(ctx, "u1", time.Now().Add(-time.Hour))
	if total != 1 {
		t.Errorf("Expected stored copy to be unaffected, got %f", total)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	r := NewSpendRepo()
	ctx := context.Background()

	_ = r.Add(ctx, record("u1", 1, 48*time.Hour))
	_ = r.Add(ctx, record("u1", 2, 36*time.Hour))
	_ = r.Add(ctx, record("u1", 3, time.Hour))

	removed, err := r.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	total, calls, _ := r.SumSince(ctx, "u1", time.Now().Add(-72*time.Hour))
	if total != 3 || calls != 1 {
		t.Errorf("Expected only the recent record left, got total=%f calls=%d", total, calls)
	}
}
