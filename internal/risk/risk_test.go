package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debearparty/backend/internal/config"
	"github.com/debearparty/backend/internal/models"
	"github.com/debearparty/backend/internal/store"
)

type fakeFailed struct{ count int }

func (f fakeFailed) FailedWithdrawCount(string, time.Time) int { return f.count }

func testConfig() *config.Config {
	return &config.Config{
		WithdrawCooldownSecs:   300,
		LargeWithdrawThreshold: 5000,
		WithdrawReviewRatio:    4,
		DailyWithdrawLimit:     10000,
	}
}

func newTestEngine(t *testing.T, failed FailedCounter) *Engine {
	t.Helper()
	e, err := New(testConfig(), store.NewMemory(), failed)
	require.NoError(t, err)
	return e
}

func TestCooldownBlocksThenExpires(t *testing.T) {
	e := newTestEngine(t, nil)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	e.RecordDeposit("0xabc", 1000)
	e.RecordSuccess(context.Background(), "0xabc", 100)

	e.now = func() time.Time { return base.Add(120 * time.Second) }
	d := e.CheckWithdrawAllowed("0xabc", 100)
	assert.False(t, d.Allowed)
	assert.False(t, d.NeedsReview)
	assert.Equal(t, 180, d.RetryAfterSecs)

	e.now = func() time.Time { return base.Add(300 * time.Second) }
	d = e.CheckWithdrawAllowed("0xabc", 100)
	assert.True(t, d.Allowed)
}

func TestLargeWithdrawalFlaggedAtThreshold(t *testing.T) {
	e := newTestEngine(t, nil)
	e.RecordDeposit("0xabc", 100000)

	d := e.CheckWithdrawAllowed("0xabc", 4999)
	assert.True(t, d.Allowed)

	// The threshold itself is flagged.
	d = e.CheckWithdrawAllowed("0xabc", 5000)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, ReasonLargeWithdrawal, d.ReviewReason)
}

func TestZeroDepositTodayFlagged(t *testing.T) {
	e := newTestEngine(t, nil)

	d := e.CheckWithdrawAllowed("0xabc", 10)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, ReasonNoDepositToday, d.ReviewReason)
}

func TestDepositResetsAtUTCMidnight(t *testing.T) {
	e := newTestEngine(t, nil)
	day1 := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	e.now = func() time.Time { return day1 }
	e.RecordDeposit("0xabc", 500)

	d := e.CheckWithdrawAllowed("0xabc", 100)
	assert.True(t, d.Allowed)

	// Ten minutes later it is a new UTC day with no deposits.
	e.now = func() time.Time { return day1.Add(10 * time.Minute) }
	d = e.CheckWithdrawAllowed("0xabc", 100)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, ReasonNoDepositToday, d.ReviewReason)
}

func TestWithdrawDepositRatioFlagged(t *testing.T) {
	e := newTestEngine(t, nil)
	e.RecordDeposit("0xabc", 100)

	d := e.CheckWithdrawAllowed("0xabc", 399)
	assert.True(t, d.Allowed)

	// The boundary itself is held.
	d = e.CheckWithdrawAllowed("0xabc", 400)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, ReasonHighRatio, d.ReviewReason)
}

func TestWithdrawDepositRatioCountsTodaysWithdrawals(t *testing.T) {
	e := newTestEngine(t, nil)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }
	e.RecordDeposit("0xabc", 100)
	e.RecordSuccess(context.Background(), "0xabc", 250)

	// Past the cooldown, same UTC day.
	e.now = func() time.Time { return base.Add(10 * time.Minute) }

	d := e.CheckWithdrawAllowed("0xabc", 100)
	assert.True(t, d.Allowed)

	// 250 already out today plus 250 more crosses 100 * 4.
	d = e.CheckWithdrawAllowed("0xabc", 250)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, ReasonHighRatio, d.ReviewReason)
}

func TestDailyLimitFlagged(t *testing.T) {
	e := newTestEngine(t, nil)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }
	e.RecordDeposit("0xabc", 50000)

	ctx := context.Background()
	e.RecordSuccess(ctx, "0xabc", 4900)
	e.RecordSuccess(ctx, "0xabc", 4900)

	// Skip past the cooldown, same UTC day.
	e.now = func() time.Time { return base.Add(10 * time.Minute) }

	d := e.CheckWithdrawAllowed("0xabc", 300)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, ReasonDailyLimit, d.ReviewReason)
}

func TestRepeatedFailuresFlagged(t *testing.T) {
	e := newTestEngine(t, fakeFailed{count: 5})
	e.RecordDeposit("0xabc", 1000)

	d := e.CheckWithdrawAllowed("0xabc", 100)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, ReasonRepeatedFailure, d.ReviewReason)

	e2 := newTestEngine(t, fakeFailed{count: 4})
	e2.RecordDeposit("0xabc", 1000)
	assert.True(t, e2.CheckWithdrawAllowed("0xabc", 100).Allowed)
}

func TestReviewResolvedExactlyOnce(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	r := e.CreatePendingReview(ctx, "0xabc", 6000, ReasonLargeWithdrawal)
	require.NotEmpty(t, r.ID)

	pending := e.PendingReviews(models.ReviewPending)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)

	resolved, err := e.ReviewWithdraw(ctx, r.ID, true, "ops_anna", "verified with user")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewApproved, resolved.Status)
	assert.Equal(t, "ops_anna", resolved.ReviewedBy)
	require.NotNil(t, resolved.ReviewedAt)

	_, err = e.ReviewWithdraw(ctx, r.ID, false, "ops_bob", "")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	_, err = e.ReviewWithdraw(ctx, "review_missing", true, "ops_anna", "")
	assert.ErrorIs(t, err, ErrReviewNotFound)

	assert.Empty(t, e.PendingReviews(models.ReviewPending))
	assert.Len(t, e.PendingReviews(""), 1)
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := store.NewMemory()
	cfg := testConfig()
	ctx := context.Background()

	e1, err := New(cfg, st, nil)
	require.NoError(t, err)
	e1.RecordDeposit("0xabc", 1000)
	e1.RecordSuccess(ctx, "0xabc", 200)
	r := e1.CreatePendingReview(ctx, "0xdef", 7000, ReasonLargeWithdrawal)

	e2, err := New(cfg, st, nil)
	require.NoError(t, err)

	// Cooldown survives the restart.
	d := e2.CheckWithdrawAllowed("0xabc", 50)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfterSecs, 0)

	pending := e2.PendingReviews(models.ReviewPending)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)

	stats := e2.Stats("0xabc")
	assert.Equal(t, 200.0, stats.Daily.WithdrawAmount)
	assert.Equal(t, 1, stats.Daily.WithdrawCount)
}
