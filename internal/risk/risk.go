// Package risk gates withdrawals. It enforces a per-address cooldown,
// flags suspicious withdrawals for manual review, and owns the review
// queue admins work through.
package risk

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/debearparty/backend/internal/config"
	"github.com/debearparty/backend/internal/models"
	"github.com/debearparty/backend/internal/store"
)

// Review reasons attached to flagged withdrawals.
const (
	ReasonLargeWithdrawal = "large_withdrawal"
	ReasonDailyLimit      = "daily_limit_exceeded"
	ReasonNoDepositToday  = "no_deposit_today"
	ReasonHighRatio       = "withdraw_deposit_ratio"
	ReasonRepeatedFailure = "repeated_failed_withdrawals"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrAlreadyResolved = errors.New("review already resolved")
)

// FailedCounter reports recent failed withdrawal attempts. Implemented
// by the ledger's transaction log.
type FailedCounter interface {
	FailedWithdrawCount(address string, since time.Time) int
}

// Decision is the outcome of a withdrawal check. Exactly one of the
// three states holds: allowed, blocked by cooldown, or held for review.
type Decision struct {
	Allowed        bool   `json:"allowed"`
	RetryAfterSecs int    `json:"retry_after_seconds,omitempty"`
	NeedsReview    bool   `json:"needs_review"`
	ReviewReason   string `json:"review_reason,omitempty"`
}

type Engine struct {
	mu     sync.Mutex
	cfg    *config.Config
	st     store.Store
	failed FailedCounter

	lastWithdraw map[string]time.Time
	daily        map[string]*models.DailyStats
	reviews      map[string]*models.PendingReview
	reviewOrder  []string

	now func() time.Time
}

type snapshot struct {
	LastWithdraw map[string]time.Time             `json:"last_withdraw"`
	Daily        map[string]*models.DailyStats    `json:"daily"`
	Reviews      map[string]*models.PendingReview `json:"reviews"`
	ReviewOrder  []string                         `json:"review_order"`
}

func New(cfg *config.Config, st store.Store, failed FailedCounter) (*Engine, error) {
	e := &Engine{
		cfg:          cfg,
		st:           st,
		failed:       failed,
		lastWithdraw: make(map[string]time.Time),
		daily:        make(map[string]*models.DailyStats),
		reviews:      make(map[string]*models.PendingReview),
		now:          time.Now,
	}

	data, err := st.Load(context.Background(), store.KeyRisk)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Println("[RISK] No snapshot found, starting fresh")
			return e, nil
		}
		return nil, fmt.Errorf("failed to load risk snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode risk snapshot: %w", err)
	}
	if snap.LastWithdraw != nil {
		e.lastWithdraw = snap.LastWithdraw
	}
	if snap.Daily != nil {
		e.daily = snap.Daily
	}
	if snap.Reviews != nil {
		e.reviews = snap.Reviews
	}
	e.reviewOrder = snap.ReviewOrder
	log.Printf("[RISK] Restored snapshot: %d reviews, %d tracked addresses",
		len(e.reviews), len(e.lastWithdraw))
	return e, nil
}

// persist must be called with the mutex held.
func (e *Engine) persist(ctx context.Context) {
	data, err := json.Marshal(snapshot{
		LastWithdraw: e.lastWithdraw,
		Daily:        e.daily,
		Reviews:      e.reviews,
		ReviewOrder:  e.reviewOrder,
	})
	if err != nil {
		log.Printf("[RISK] Failed to encode snapshot: %v", err)
		return
	}
	if err := e.st.Save(ctx, store.KeyRisk, data); err != nil {
		log.Printf("[RISK] Failed to save snapshot: %v", err)
	}
}

// dayStats returns the address's stats for the current UTC day,
// resetting stale entries. Must be called with the mutex held.
func (e *Engine) dayStats(address string) *models.DailyStats {
	today := e.now().UTC().Format("2006-01-02")
	s, ok := e.daily[address]
	if !ok || s.Date != today {
		s = &models.DailyStats{Date: today}
		e.daily[address] = s
	}
	return s
}

// CheckWithdrawAllowed evaluates a withdrawal request against the
// cooldown and the review heuristics. It does not mutate state; call
// RecordSuccess after the payout goes through.
func (e *Engine) CheckWithdrawAllowed(address string, amount float64) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if last, ok := e.lastWithdraw[address]; ok {
		cooldown := time.Duration(e.cfg.WithdrawCooldownSecs) * time.Second
		if elapsed := now.Sub(last); elapsed < cooldown {
			retry := int((cooldown - elapsed).Seconds())
			if retry < 1 {
				retry = 1
			}
			return Decision{RetryAfterSecs: retry}
		}
	}

	stats := e.dayStats(address)
	if amount >= e.cfg.LargeWithdrawThreshold {
		return Decision{NeedsReview: true, ReviewReason: ReasonLargeWithdrawal}
	}
	if stats.DepositAmount == 0 {
		return Decision{NeedsReview: true, ReviewReason: ReasonNoDepositToday}
	}
	if stats.WithdrawAmount+amount >= stats.DepositAmount*e.cfg.WithdrawReviewRatio {
		return Decision{NeedsReview: true, ReviewReason: ReasonHighRatio}
	}
	if e.failed != nil && e.failed.FailedWithdrawCount(address, now.Add(-time.Hour)) >= 5 {
		return Decision{NeedsReview: true, ReviewReason: ReasonRepeatedFailure}
	}
	if stats.WithdrawAmount+amount > e.cfg.DailyWithdrawLimit {
		return Decision{NeedsReview: true, ReviewReason: ReasonDailyLimit}
	}
	return Decision{Allowed: true}
}

// RecordDeposit feeds a confirmed deposit into the daily stats.
func (e *Engine) RecordDeposit(address string, amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dayStats(address).DepositAmount += amount
	e.persist(context.Background())
}

// RecordSuccess marks a completed withdrawal, starting the cooldown.
func (e *Engine) RecordSuccess(ctx context.Context, address string, amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastWithdraw[address] = e.now()
	s := e.dayStats(address)
	s.WithdrawCount++
	s.WithdrawAmount += amount
	e.persist(ctx)
}

// CreatePendingReview queues a flagged withdrawal for manual approval.
func (e *Engine) CreatePendingReview(ctx context.Context, address string, amount float64, reason string) *models.PendingReview {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := make([]byte, 4)
	rand.Read(b)
	r := &models.PendingReview{
		ID:        fmt.Sprintf("review_%d_%s", e.now().UnixNano(), hex.EncodeToString(b)),
		Address:   address,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: e.now(),
		Status:    models.ReviewPending,
	}
	e.reviews[r.ID] = r
	e.reviewOrder = append(e.reviewOrder, r.ID)
	e.persist(ctx)
	log.Printf("[RISK] Withdrawal held for review: %s %.2f (%s)", address, amount, reason)
	cp := *r
	return &cp
}

// PendingReviews lists reviews, newest first. An empty status returns
// all of them.
func (e *Engine) PendingReviews(status string) []models.PendingReview {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.PendingReview, 0, len(e.reviewOrder))
	for i := len(e.reviewOrder) - 1; i >= 0; i-- {
		r := e.reviews[e.reviewOrder[i]]
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	return out
}

// ReviewWithdraw resolves a pending review exactly once. The caller is
// responsible for paying out approved withdrawals.
func (e *Engine) ReviewWithdraw(ctx context.Context, id string, approve bool, reviewer, note string) (*models.PendingReview, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.reviews[id]
	if !ok {
		return nil, ErrReviewNotFound
	}
	if r.Status != models.ReviewPending {
		return nil, ErrAlreadyResolved
	}
	now := e.now()
	if approve {
		r.Status = models.ReviewApproved
	} else {
		r.Status = models.ReviewRejected
	}
	r.ReviewedAt = &now
	r.ReviewedBy = reviewer
	r.ReviewNote = note
	e.persist(ctx)
	log.Printf("[RISK] Review %s resolved as %s by %s", id, r.Status, reviewer)
	cp := *r
	return &cp, nil
}

// UserStats reports the cooldown and daily totals for an address.
type UserStats struct {
	CooldownRemaining int               `json:"cooldown_remaining_seconds"`
	Daily             models.DailyStats `json:"daily"`
}

func (e *Engine) Stats(address string) UserStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := 0
	if last, ok := e.lastWithdraw[address]; ok {
		cooldown := time.Duration(e.cfg.WithdrawCooldownSecs) * time.Second
		if elapsed := e.now().Sub(last); elapsed < cooldown {
			remaining = int((cooldown - elapsed).Seconds())
		}
	}
	return UserStats{
		CooldownRemaining: remaining,
		Daily:             *e.dayStats(address),
	}
}

// GlobalStats aggregates today's totals across all addresses.
type GlobalStats struct {
	Date           string  `json:"date"`
	WithdrawCount  int     `json:"withdraw_count"`
	WithdrawAmount float64 `json:"withdraw_amount"`
	DepositAmount  float64 `json:"deposit_amount"`
	PendingReviews int     `json:"pending_reviews"`
}

func (e *Engine) GlobalStats() GlobalStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	today := e.now().UTC().Format("2006-01-02")
	g := GlobalStats{Date: today}
	for _, s := range e.daily {
		if s.Date != today {
			continue
		}
		g.WithdrawCount += s.WithdrawCount
		g.WithdrawAmount += s.WithdrawAmount
		g.DepositAmount += s.DepositAmount
	}
	for _, r := range e.reviews {
		if r.Status == models.ReviewPending {
			g.PendingReviews++
		}
	}
	return g
}
