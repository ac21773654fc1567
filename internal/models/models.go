package models

import (
	"time"

	"github.com/lib/pq"
)

// Transaction types
const (
	TxDeposit  = "deposit"
	TxWithdraw = "withdraw"
	TxSpend    = "spend"
	TxReward   = "reward"
)

// Transaction statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPending   = "pending"
)

// Review statuses
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// User is a platform account created lazily on the first credit for an
// unknown address. The username is settable exactly once.
type User struct {
	UID            string     `json:"uid"`
	Address        string     `json:"address"`
	Username       string     `json:"username,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	FirstDepositAt time.Time  `json:"first_deposit_at"`
	UsernameSetAt  *time.Time `json:"username_set_at,omitempty"`
}

// Transaction is one immutable entry of the balance ledger's audit log.
type Transaction struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Address       string    `json:"address"`
	Amount        float64   `json:"amount"`
	TxHash        string    `json:"tx_hash,omitempty"`
	GameID        int64     `json:"game_id,omitempty"`
	Description   string    `json:"description,omitempty"`
	BlockNumber   int64     `json:"block_number,omitempty"`
	Confirmations int       `json:"confirmations,omitempty"`
	Verified      bool      `json:"verified,omitempty"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// PendingDeposit tracks an external deposit whose transaction has been seen
// on-chain but has not reached the required confirmation count yet.
type PendingDeposit struct {
	TxHash        string    `json:"tx_hash"`
	Address       string    `json:"address"`
	Amount        float64   `json:"amount"`
	Confirmations int       `json:"confirmations"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// PendingReview is a withdrawal held for manual approval.
type PendingReview struct {
	ID         string     `json:"id"`
	Address    string     `json:"address"`
	Amount     float64    `json:"amount"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
	Status     string     `json:"status"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewNote string     `json:"review_note,omitempty"`
}

// DailyStats holds per-address per-UTC-day withdrawal/deposit totals used by
// the risk heuristics.
type DailyStats struct {
	Date           string  `json:"date"` // YYYY-MM-DD, UTC
	WithdrawCount  int     `json:"withdraw_count"`
	WithdrawAmount float64 `json:"withdraw_amount"`
	DepositAmount  float64 `json:"deposit_amount"`
}

// AdminAccount is a privileged operator account (stored in Postgres).
type AdminAccount struct {
	Username    string         `db:"username" json:"username"`
	DisplayName string         `db:"display_name" json:"display_name"`
	TokenHash   string         `db:"token_hash" json:"-"`
	Roles       pq.StringArray `db:"roles" json:"roles"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
