// Package storage defines the persistence interfaces backing the
// usage/budget monitor. Implementations live in the memory and postgres
// subpackages; everything else in the dispatch core stays process-local.
package storage

import (
	"context"
	"time"

	"github.com/ledgerly/dispatch/internal/core/domain"
)

// SpendRepository records billable provider calls per user and answers
// trailing-window spend queries.
type SpendRepository interface {
	// Add appends one spend record.
	Add(ctx context.Context, rec *domain.SpendRecord) error

	// SumSince returns the total cost and call count for a user since
	// the given time.
	SumSince(ctx context.Context, userID string, since time.Time) (float64, int, error)

	// DeleteOlderThan removes records older than the cutoff and returns
	// the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
