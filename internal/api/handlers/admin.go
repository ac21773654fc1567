package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/debearparty/backend/internal/admin"
	"github.com/debearparty/backend/internal/config"
	"github.com/debearparty/backend/internal/game"
	"github.com/debearparty/backend/internal/ledger"
	"github.com/debearparty/backend/internal/models"
	"github.com/debearparty/backend/internal/risk"
)

// AdminLogin trades a username + access token for a session JWT
func AdminLogin(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Token    string `json:"token" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		account, err := admin.ValidateCredentials(db, strings.TrimSpace(req.Username), strings.TrimSpace(req.Token))
		if err != nil {
			log.Printf("[ADMIN] Login failed for %s: %v", req.Username, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		session, err := admin.IssueSession(cfg, account)
		if err != nil {
			log.Printf("[ADMIN] Failed to issue session for %s: %v", req.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":      session,
			"expires_in": cfg.AdminSessionMinutes * 60,
			"roles":      account.Roles,
		})
	}
}

// AdminAuth validates the Bearer session JWT on admin routes
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing session token"})
			c.Abort()
			return
		}
		claims, err := admin.ParseSession(cfg, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
			c.Abort()
			return
		}
		c.Set("admin_username", claims.Username)
		c.Next()
	}
}

// GetCurrentParty returns the running round including the hidden
// target, for operators only
func GetCurrentParty(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.AdminStatus())
	}
}

// SetTarget arms the one-shot killer target override
func SetTarget(engine *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Room *int `json:"room" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := engine.SetAdminTarget(*req.Room); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, game.ErrNoAdminSlot) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		username, _ := c.Get("admin_username")
		log.Printf("[ADMIN] %v armed target override: room %d", username, *req.Room)
		c.JSON(http.StatusOK, gin.H{"room": *req.Room})
	}
}

// ListReviews returns withdrawal reviews, filterable by status
func ListReviews(riskEng *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.DefaultQuery("status", models.ReviewPending)
		if status == "all" {
			status = ""
		}
		c.JSON(http.StatusOK, gin.H{"reviews": riskEng.PendingReviews(status)})
	}
}

// ResolveReview approves or rejects a held withdrawal. Approval pays
// out immediately.
func ResolveReview(riskEng *risk.Engine, led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Approve *bool  `json:"approve" binding:"required"`
			Note    string `json:"note"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		username := c.GetString("admin_username")

		review, err := riskEng.ReviewWithdraw(c.Request.Context(), c.Param("id"), *req.Approve, username, req.Note)
		if err != nil {
			switch {
			case errors.Is(err, risk.ErrReviewNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Review not found"})
			case errors.Is(err, risk.ErrAlreadyResolved):
				c.JSON(http.StatusConflict, gin.H{"error": "Review already resolved"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		if review.Status != models.ReviewApproved {
			c.JSON(http.StatusOK, gin.H{"review": review})
			return
		}

		res, err := led.WithdrawExternal(c.Request.Context(), review.Address, review.Amount)
		if err != nil {
			log.Printf("[ADMIN] Approved payout failed for review %s: %v", review.ID, err)
			c.JSON(http.StatusBadGateway, gin.H{
				"review": review,
				"error":  "Review approved but payout failed, funds returned",
			})
			return
		}
		riskEng.RecordSuccess(c.Request.Context(), review.Address, res.Amount)
		c.JSON(http.StatusOK, gin.H{"review": review, "payout": res})
	}
}

// ListFrozenFunds lists balances stranded by interrupted withdrawals
func ListFrozenFunds(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"frozen": led.FrozenFunds()})
	}
}

// ResolveFrozenFunds settles a stranded reservation once the operator
// has checked whether the on-chain transfer landed
func ResolveFrozenFunds(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Refund *bool  `json:"refund" binding:"required"`
			Note   string `json:"note"`
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

		balance, err := led.ResolveFrozen(c.Request.Context(), address, *req.Refund, req.Note)
		if err != nil {
			if errors.Is(err, ledger.ErrNoFrozenFunds) {
				c.JSON(http.StatusNotFound, gin.H{"error": "No frozen funds for address"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		username := c.GetString("admin_username")
		log.Printf("[ADMIN] %s resolved frozen funds for %s (refund=%v)", username, address, *req.Refund)
		c.JSON(http.StatusOK, gin.H{"address": address, "new_balance": balance, "refunded": *req.Refund})
	}
}

// GetWithdrawOverview returns today's platform-wide totals
func GetWithdrawOverview(riskEng *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, riskEng.GlobalStats())
	}
}

// GetAllTransactions returns the newest transactions across all users
func GetAllTransactions(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		c.JSON(http.StatusOK, gin.H{"transactions": led.AllTransactions(c.Query("type"), limit)})
	}
}
