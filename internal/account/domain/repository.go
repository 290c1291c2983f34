package domain

import (
	"context"
	"time"
)

// Repository persists caller accounts. Usage increments must be atomic at the
// store level; concurrent requests for one caller must not lose updates.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	// IncrementUsage adds tokens to the provider's running counter using a
	// SQL-side expression, never read-modify-write.
	IncrementUsage(ctx context.Context, id string, provider Provider, tokens int64) error
	// ResetPeriods zeroes both usage counters and restamps both period
	// starts to now.
	ResetPeriods(ctx context.Context, id string, now time.Time) error
}
