package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/debearparty/backend/internal/config"
	"github.com/debearparty/backend/internal/ledger"
	"github.com/debearparty/backend/internal/locks"
	"github.com/debearparty/backend/internal/models"
	"github.com/debearparty/backend/internal/risk"
)

// GetBalance returns the available and frozen balance for an address
func GetBalance(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := normalizeAddress(c.Param("address"))
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		available, frozen := led.Balance(address)
		c.JSON(http.StatusOK, gin.H{
			"address":   address,
			"available": available,
			"frozen":    frozen,
		})
	}
}

// Deposit verifies an on-chain transfer and credits it once confirmed.
// Underconfirmed transactions are accepted as pending and retried by
// the background checker.
func Deposit(led *ledger.Ledger, riskEng *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Address string  `json:"address" binding:"required"`
			TxHash  string  `json:"tx_hash" binding:"required"`
			Amount  float64 `json:"amount"` // only honored in development mode
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		address := normalizeAddress(req.Address)
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}

		res, err := led.DepositExternal(c.Request.Context(), address, req.TxHash, req.Amount)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrDuplicateTxHash):
				c.JSON(http.StatusConflict, gin.H{"error": "Transaction hash already used"})
			case errors.Is(err, ledger.ErrBelowMinimum):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Deposit below minimum"})
			case errors.Is(err, ledger.ErrChainDisabled):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Deposits are temporarily unavailable"})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}
		if !res.Completed {
			c.JSON(http.StatusAccepted, res)
			return
		}
		riskEng.RecordDeposit(address, res.Amount)
		c.JSON(http.StatusOK, res)
	}
}

// Withdraw runs the risk checks and, when they pass, pays out to the
// caller's wallet. Flagged requests land in the manual review queue.
func Withdraw(led *ledger.Ledger, riskEng *risk.Engine, wlocks *locks.Table, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Address string  `json:"address" binding:"required"`
			Amount  float64 `json:"amount" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		address := normalizeAddress(req.Address)
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}

		if err := wlocks.Acquire(c.Request.Context(), address, 5*time.Second); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Another withdrawal is in progress"})
			return
		}
		defer wlocks.Release(address)

		if led.HasPendingWithdraw(address) {
			c.JSON(http.StatusConflict, gin.H{"error": "Another withdrawal is in progress"})
			return
		}

		decision := riskEng.CheckWithdrawAllowed(address, req.Amount)
		if decision.NeedsReview {
			review := riskEng.CreatePendingReview(c.Request.Context(), address, req.Amount, decision.ReviewReason)
			c.JSON(http.StatusAccepted, gin.H{
				"status":    "pending_review",
				"review_id": review.ID,
				"reason":    review.Reason,
			})
			return
		}
		if !decision.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":               "Withdrawal cooldown active",
				"retry_after_seconds": decision.RetryAfterSecs,
			})
			return
		}

		res, err := led.WithdrawExternal(c.Request.Context(), address, req.Amount)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrInsufficientFunds):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance"})
			case errors.Is(err, ledger.ErrBelowMinimum):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Withdrawal below minimum"})
			case errors.Is(err, ledger.ErrChainDisabled):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Withdrawals are temporarily unavailable"})
			default:
				c.JSON(http.StatusBadGateway, gin.H{"error": "Transfer failed, funds returned"})
			}
			return
		}
		riskEng.RecordSuccess(c.Request.Context(), address, res.Amount)
		c.JSON(http.StatusOK, res)
	}
}

// Spend debits an in-platform charge (a game stake or similar)
func Spend(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Address string  `json:"address" binding:"required"`
			Amount  float64 `json:"amount" binding:"required"`
			GameID  int64   `json:"game_id"`
			Reason  string  `json:"reason"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		address := normalizeAddress(req.Address)
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		newBalance, err := led.Debit(c.Request.Context(), address, req.Amount, models.TxSpend, req.GameID, req.Reason)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"new_balance": newBalance})
	}
}

// Reward credits an in-platform payout
func Reward(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Address string  `json:"address" binding:"required"`
			Amount  float64 `json:"amount" binding:"required"`
			GameID  int64   `json:"game_id"`
			Reason  string  `json:"reason"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		address := normalizeAddress(req.Address)
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		newBalance, err := led.Credit(c.Request.Context(), address, req.Amount, models.TxReward, req.GameID, req.Reason)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"new_balance": newBalance})
	}
}

// GetTransactions returns the caller's recent transactions
func GetTransactions(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := normalizeAddress(c.Param("address"))
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": led.RecentTransactions(address, limit),
		})
	}
}

// GetWithdrawStats returns the caller's cooldown and daily totals
func GetWithdrawStats(riskEng *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := normalizeAddress(c.Param("address"))
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		c.JSON(http.StatusOK, riskEng.Stats(address))
	}
}

// GetUser returns the user record for an address
func GetUser(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := normalizeAddress(c.Param("address"))
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		u, ok := led.User(address)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// CheckUsername reports whether a username is valid and unclaimed
func CheckUsername(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Query("username")
		available, err := led.CheckUsername(username)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "available": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"available": available})
	}
}

// SetUsername assigns the one-time username for an address
func SetUsername(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		address := normalizeAddress(c.Param("address"))
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		if err := led.SetUsername(c.Request.Context(), address, req.Username); err != nil {
			switch {
			case errors.Is(err, ledger.ErrUserNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			case errors.Is(err, ledger.ErrUsernameTaken):
				c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
			case errors.Is(err, ledger.ErrUsernameSet):
				c.JSON(http.StatusConflict, gin.H{"error": "Username can only be set once"})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": req.Username})
	}
}
