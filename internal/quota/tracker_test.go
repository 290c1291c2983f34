package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	accountdomain "github.com/studyloop/studyloop/internal/account/domain"
	accountrepo "github.com/studyloop/studyloop/internal/account/repository"
	"github.com/studyloop/studyloop/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTracker(t *testing.T, start time.Time) (*Tracker, accountdomain.Repository, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&accountdomain.Account{}))

	repo := accountrepo.Provide(db)
	clk := clock.NewFakeClock(start)
	return NewTracker(repo, clk, zap.NewNop()), repo, clk, db
}

func seedAccount(t *testing.T, db *gorm.DB, acct *accountdomain.Account) {
	t.Helper()
	require.NoError(t, db.Create(acct).Error)
}

func TestIncrementUsage_SumsIncrements(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tracker, repo, _, db := setupTracker(t, start)
	seedAccount(t, db, &accountdomain.Account{
		ID:                   "caller-1",
		PrimaryUsage:         100,
		PrimaryPeriodStart:   start,
		SecondaryPeriodStart: start,
	})

	ctx := context.Background()
	for _, tokens := range []int64{10, 25, 7} {
		require.NoError(t, tracker.IncrementUsage(ctx, "caller-1", accountdomain.ProviderPrimary, tokens))
	}
	require.NoError(t, tracker.IncrementUsage(ctx, "caller-1", accountdomain.ProviderSecondary, 500))

	acct, err := repo.GetByID(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(142), acct.PrimaryUsage)
	assert.Equal(t, int64(500), acct.SecondaryUsage)
}

func TestIncrementUsage_ZeroTokensNoOp(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tracker, repo, _, db := setupTracker(t, start)
	seedAccount(t, db, &accountdomain.Account{
		ID:                   "caller-1",
		PrimaryPeriodStart:   start,
		SecondaryPeriodStart: start,
	})

	ctx := context.Background()
	require.NoError(t, tracker.IncrementUsage(ctx, "caller-1", accountdomain.ProviderPrimary, 0))

	acct, err := repo.GetByID(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.PrimaryUsage)
}

func TestIncrementUsage_ConcurrentIncrementsSum(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tracker, repo, _, db := setupTracker(t, start)
	seedAccount(t, db, &accountdomain.Account{
		ID:                   "caller-1",
		PrimaryPeriodStart:   start,
		SecondaryPeriodStart: start,
	})

	// Each fresh pool connection would open its own empty :memory:
	// database, so the writers share a single connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	const workers = 16
	const perWorker = 8
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				assert.NoError(t, tracker.IncrementUsage(ctx, "caller-1", accountdomain.ProviderSecondary, 7))
			}
		}()
	}
	wg.Wait()

	acct, err := repo.GetByID(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker*7), acct.SecondaryUsage)
}

func TestIncrementUsage_UnknownCaller(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tracker, _, _, _ := setupTracker(t, start)

	err := tracker.IncrementUsage(context.Background(), "missing", accountdomain.ProviderPrimary, 10)
	assert.ErrorIs(t, err, accountdomain.ErrNotFound)
}

func TestCheckAndResetPeriod_RollsBothCounters(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	tracker, repo, clk, db := setupTracker(t, start)
	seedAccount(t, db, &accountdomain.Account{
		ID:                   "caller-1",
		PrimaryUsage:         900,
		SecondaryUsage:       400,
		PrimaryPeriodStart:   start,
		SecondaryPeriodStart: start,
	})

	ctx := context.Background()
	acct, err := repo.GetByID(ctx, "caller-1")
	require.NoError(t, err)

	// still inside the period
	clk.Advance(20 * 24 * time.Hour)
	same, err := tracker.CheckAndResetPeriod(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, int64(900), same.PrimaryUsage)
	assert.Equal(t, int64(400), same.SecondaryUsage)

	// a full month elapsed
	clk.Advance(12 * 24 * time.Hour)
	reset, err := tracker.CheckAndResetPeriod(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reset.PrimaryUsage)
	assert.Equal(t, int64(0), reset.SecondaryUsage)
	assert.Equal(t, clk.Now(), reset.PrimaryPeriodStart)
	assert.Equal(t, reset.PrimaryPeriodStart, reset.SecondaryPeriodStart)

	persisted, err := repo.GetByID(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), persisted.PrimaryUsage)
	assert.Equal(t, int64(0), persisted.SecondaryUsage)
}

func TestCheckAndResetPeriod_Idempotent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker, repo, clk, db := setupTracker(t, start)
	seedAccount(t, db, &accountdomain.Account{
		ID:                   "caller-1",
		PrimaryUsage:         50,
		PrimaryPeriodStart:   start,
		SecondaryPeriodStart: start,
	})

	ctx := context.Background()
	clk.Advance(32 * 24 * time.Hour)

	acct, err := repo.GetByID(ctx, "caller-1")
	require.NoError(t, err)

	first, err := tracker.CheckAndResetPeriod(ctx, acct)
	require.NoError(t, err)
	require.Equal(t, int64(0), first.PrimaryUsage)

	// usage accrues inside the fresh period and must survive a second check
	require.NoError(t, tracker.IncrementUsage(ctx, "caller-1", accountdomain.ProviderPrimary, 33))
	refetched, err := repo.GetByID(ctx, "caller-1")
	require.NoError(t, err)

	second, err := tracker.CheckAndResetPeriod(ctx, refetched)
	require.NoError(t, err)
	assert.Equal(t, int64(33), second.PrimaryUsage)
	assert.Equal(t, first.PrimaryPeriodStart, second.PrimaryPeriodStart)
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		prompt     string
		completion string
		want       int64
	}{
		{"", "", 0},
		{"abcd", "", 1},
		{"abcd", "efgh", 2},
		{"abc", "", 1},  // 3/4 rounds to 1
		{"ab", "", 1},   // 2/4 rounds to 1 (round half up)
		{"a", "", 0},    // 1/4 rounds to 0
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, EstimateTokens(tc.prompt, tc.completion))
	}
}
