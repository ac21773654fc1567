package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/debearparty/backend/internal/api/handlers"
	"github.com/debearparty/backend/internal/config"
	"github.com/debearparty/backend/internal/game"
	"github.com/debearparty/backend/internal/ledger"
	"github.com/debearparty/backend/internal/locks"
	"github.com/debearparty/backend/internal/middleware"
	"github.com/debearparty/backend/internal/risk"
	"github.com/debearparty/backend/internal/ws"
)

// Deps bundles the long-lived collaborators the routes close over.
type Deps struct {
	DB     *sqlx.DB
	RDB    *redis.Client
	Cfg    *config.Config
	Engine *game.Engine
	Ledger *ledger.Ledger
	Risk   *risk.Engine
	Hub    *ws.Hub

	// Bet and withdrawal locks are separate tables so that a held
	// bet lock never delays a withdrawal for the same address.
	BetLocks      *locks.Table
	WithdrawLocks *locks.Table
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, d Deps) {
	router.Use(middleware.CORSMiddleware(d.Cfg))

	if d.Cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] No-cache headers enabled for all routes")
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		party := v1.Group("/party")
		{
			party.GET("/status", handlers.GetGameStatus(d.Engine))
			party.GET("/history", handlers.GetHistory(d.Engine))
			party.GET("/ws", ws.ServeWS(d.Hub))
			party.POST("/bet", handlers.PlaceBet(d.Engine, d.Ledger, d.BetLocks, d.Cfg))
			party.GET("/my-game/:address", handlers.GetMyGame(d.Engine))
		}

		balance := v1.Group("/balance")
		{
			balance.GET("/:address", handlers.GetBalance(d.Ledger))
			balance.GET("/:address/transactions", handlers.GetTransactions(d.Ledger))
			balance.GET("/:address/withdraw-stats", handlers.GetWithdrawStats(d.Risk))
			balance.POST("/deposit", handlers.Deposit(d.Ledger, d.Risk))
			balance.POST("/withdraw",
				middleware.RateLimit(d.RDB, "withdraw", 3, time.Minute),
				handlers.Withdraw(d.Ledger, d.Risk, d.WithdrawLocks, d.Cfg))
			balance.POST("/spend", handlers.Spend(d.Ledger))
			balance.POST("/reward", handlers.Reward(d.Ledger))
		}

		v1.GET("/username/check", handlers.CheckUsername(d.Ledger))
		user := v1.Group("/user")
		{
			user.GET("/:address", handlers.GetUser(d.Ledger))
			user.POST("/:address/username", handlers.SetUsername(d.Ledger))
		}

		adminGroup := v1.Group("/admin")
		{
			adminGroup.POST("/login", handlers.AdminLogin(d.DB, d.Cfg))

			authed := adminGroup.Group("")
			authed.Use(handlers.AdminAuth(d.Cfg))
			{
				authed.GET("/party/current", handlers.GetCurrentParty(d.Engine))
				authed.POST("/party/set-target", handlers.SetTarget(d.Engine))
				authed.GET("/reviews", handlers.ListReviews(d.Risk))
				authed.POST("/reviews/:id", handlers.ResolveReview(d.Risk, d.Ledger))
				authed.GET("/frozen", handlers.ListFrozenFunds(d.Ledger))
				authed.POST("/frozen/:address", handlers.ResolveFrozenFunds(d.Ledger))
				authed.GET("/withdraw-stats", handlers.GetWithdrawOverview(d.Risk))
				authed.GET("/withdraw-stats/:address", handlers.GetWithdrawStats(d.Risk))
				authed.GET("/transactions", handlers.GetAllTransactions(d.Ledger))
			}
		}
	}
}
