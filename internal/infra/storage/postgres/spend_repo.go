package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerly/dispatch/internal/core/domain"
)

// SpendRepo implements storage.SpendRepository on PostgreSQL.
type SpendRepo struct {
	db *DB
}

// NewSpendRepo creates a postgres-backed spend repository.
func NewSpendRepo(db *DB) *SpendRepo {
	return &SpendRepo{db: db}
}

func (r *SpendRepo) Add(ctx context.Context, rec *domain.SpendRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO ocr_spend (id, user_id, job_id, cost, tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.JobID, rec.Cost, string(rec.Tier), rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert spend record: %w", err)
	}
	return nil
}

func (r *SpendRepo) SumSince(ctx context.Context, userID string, since time.Time) (float64, int, error) {
	const query = `
		SELECT COALESCE(SUM(cost), 0), COUNT(*)
		FROM ocr_spend
		WHERE user_id = $1 AND created_at >= $2`

	var total float64
	var calls int
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&total, &calls); err != nil {
		return 0, 0, fmt.Errorf("failed to sum spend: %w", err)
	}
	return total, calls, nil
}

func (r *SpendRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ocr_spend WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old spend records: %w", err)
	}
	return res.RowsAffected()
}
