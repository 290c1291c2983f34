// Package quota enforces monthly token ceilings per caller per provider.
package quota

import (
	"context"
	"math"
	"time"

	accountdomain "github.com/studyloop/studyloop/internal/account/domain"
	"github.com/studyloop/studyloop/internal/clock"
	"go.uber.org/zap"
)

// Tracker maintains the per-caller usage counters and their monthly reset.
type Tracker struct {
	repo  accountdomain.Repository
	clock clock.Clock
	log   *zap.Logger
}

func NewTracker(repo accountdomain.Repository, clk clock.Clock, log *zap.Logger) *Tracker {
	return &Tracker{
		repo:  repo,
		clock: clk,
		log:   log.Named("quota.tracker"),
	}
}

// CheckAndResetPeriod zeroes both usage counters and restamps both period
// starts once a calendar month has elapsed. Both providers share one reset:
// either period elapsing rolls both counters together. Calling again within
// the same period is a no-op. Returns the account reflecting the reset.
func (t *Tracker) CheckAndResetPeriod(ctx context.Context, acct *accountdomain.Account) (*accountdomain.Account, error) {
	now := t.clock.Now()
	if !periodElapsed(acct.PrimaryPeriodStart, now) && !periodElapsed(acct.SecondaryPeriodStart, now) {
		return acct, nil
	}

	if err := t.repo.ResetPeriods(ctx, acct.ID, now); err != nil {
		return nil, err
	}

	updated := *acct
	updated.PrimaryUsage = 0
	updated.SecondaryUsage = 0
	updated.PrimaryPeriodStart = now
	updated.SecondaryPeriodStart = now

	t.log.Info("quota period reset",
		zap.String("caller_id", acct.ID),
		zap.Time("period_start", now),
	)
	return &updated, nil
}

// IncrementUsage adds tokens to the provider's running counter. The store
// applies the addition atomically so concurrent requests for one caller
// cannot lose updates.
func (t *Tracker) IncrementUsage(ctx context.Context, callerID string, provider accountdomain.Provider, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	return t.repo.IncrementUsage(ctx, callerID, provider, tokens)
}

// periodElapsed reports whether a full calendar month has passed since
// start. A zero start counts as elapsed so unstamped accounts get a period
// on first use.
func periodElapsed(start, now time.Time) bool {
	if start.IsZero() {
		return true
	}
	return !now.Before(start.AddDate(0, 1, 0))
}

// EstimateTokens approximates usage as characters/4 across prompt and
// completion, rounded to nearest. Used only when the upstream response
// carries no token count; deliberately not billing-accurate.
func EstimateTokens(prompt, completion string) int64 {
	return int64(math.Round(float64(len(prompt)+len(completion)) / 4.0))
}
