package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/debearparty/backend/internal/config"
	"github.com/debearparty/backend/internal/game"
	"github.com/debearparty/backend/internal/ledger"
	"github.com/debearparty/backend/internal/locks"
	"github.com/debearparty/backend/internal/models"
)

// GetGameStatus returns the public snapshot of the running round
func GetGameStatus(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.Status())
	}
}

// GetHistory returns the retained settled rounds, oldest first
func GetHistory(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"history": engine.History()})
	}
}

// PlaceBet debits the wager and admits it into the current round. If
// the round closes between the debit and the admission, the debit is
// refunded.
func PlaceBet(engine *game.Engine, led *ledger.Ledger, betLocks *locks.Table, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Address string  `json:"address" binding:"required"`
			Room    *int    `json:"room" binding:"required"`
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

		if !betLocks.TryAcquire(address) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Another bet is in flight for this address"})
			return
		}
		defer betLocks.Release(address)

		gameID, err := engine.ValidateBet(address, *req.Room, req.Amount)
		if err != nil {
			c.JSON(betErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		newBalance, err := led.Debit(c.Request.Context(), address, req.Amount, models.TxSpend, gameID, "party_crisis_bet")
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to debit bet"})
			return
		}

		var name string
		if u, ok := led.User(address); ok {
			name = u.Username
		}
		if err := engine.AddBet(gameID, address, *req.Room, req.Amount, name); err != nil {
			// The round moved on while we were debiting. Give it back.
			if _, rerr := led.Credit(c.Request.Context(), address, req.Amount, models.TxReward, gameID, "party_crisis_refund"); rerr != nil {
				log.Printf("[BET] Refund failed for %s amount %.2f: %v", address, req.Amount, rerr)
			}
			c.JSON(betErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"game_id":     gameID,
			"room":        *req.Room,
			"amount":      req.Amount,
			"new_balance": newBalance,
			"game":        engine.Status(),
		})
	}
}

func betErrorStatus(err error) int {
	switch {
	case errors.Is(err, game.ErrNotBetting), errors.Is(err, game.ErrRoundOver):
		return http.StatusConflict
	case errors.Is(err, game.ErrRoomChange):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// GetMyGame returns the caller's bet in the current or a recently
// settled round, including the outcome once it is known.
func GetMyGame(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := normalizeAddress(c.Param("address"))
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		g, bet, ok := engine.PlayerRound(address)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "No bet found"})
			return
		}

		resp := gin.H{
			"game_id":   g.ID,
			"phase":     g.Phase,
			"countdown": g.Countdown,
			"bet":       bet,
		}
		if g.Result != nil {
			payout, survived := g.Result.Payouts[address]
			resp["target_room"] = g.Result.TargetRoom
			resp["survived"] = survived
			resp["payout"] = payout
		}
		c.JSON(http.StatusOK, resp)
	}
}
