package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/debearparty/backend/internal/api"
	"github.com/debearparty/backend/internal/config"
	"github.com/debearparty/backend/internal/database"
	"github.com/debearparty/backend/internal/game"
	"github.com/debearparty/backend/internal/ledger"
	"github.com/debearparty/backend/internal/locks"
	"github.com/debearparty/backend/internal/migrations"
	"github.com/debearparty/backend/internal/redis"
	"github.com/debearparty/backend/internal/risk"
	"github.com/debearparty/backend/internal/store"
	"github.com/debearparty/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Pick the snapshot backend
	var st store.Store
	switch cfg.StoreBackend {
	case "redis":
		st = store.NewRedis(rdb)
		log.Println("[STORE] Using Redis snapshot store")
	default:
		st = store.NewPostgres(db)
		log.Println("[STORE] Using Postgres snapshot store")
	}

	// Chain collaborators: real deployments configure an RPC endpoint;
	// development runs against a faked chain.
	var verifier ledger.DepositVerifier
	var transfer ledger.ChainTransfer
	if cfg.ChainRPCURL == "" && cfg.Environment == "development" {
		dev := ledger.DevChain{Required: cfg.RequiredConfirmations}
		verifier, transfer = dev, dev
		log.Println("[CHAIN] No RPC configured, using development chain stub")
	} else if cfg.ChainRPCURL == "" {
		verifier, transfer = ledger.DisabledChain{}, ledger.DisabledChain{}
		log.Println("[CHAIN] No RPC configured, deposits and withdrawals disabled")
	} else {
		// TODO: plug in the on-chain verifier once the token contract is final
		verifier, transfer = ledger.DisabledChain{}, ledger.DisabledChain{}
		log.Printf("[CHAIN] RPC configured (%s) but no verifier built yet, chain ops disabled", cfg.ChainRPCURL)
	}

	// Balance ledger and withdrawal risk engine restore their snapshots
	led, err := ledger.New(cfg, st, verifier, transfer)
	if err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}
	riskEng, err := risk.New(cfg, st, led)
	if err != nil {
		log.Fatalf("Failed to initialize risk engine: %v", err)
	}

	// Game engine, driven by the one-second scheduler
	engine := game.NewEngine(cfg, led)

	// WebSocket hub fans per-tick snapshots out to spectators
	hub := ws.NewHub()
	go hub.Run(context.Background())
	engine.SetBroadcast(hub.BroadcastSnapshot)

	go game.StartScheduler(context.Background(), engine)
	go ledger.StartDepositChecker(context.Background(), led, riskEng, cfg.DepositCheckIntervalSecs)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	lockTimeout := time.Duration(cfg.LockTimeoutSecs) * time.Second
	api.SetupRoutes(router, api.Deps{
		DB:            db,
		RDB:           rdb,
		Cfg:           cfg,
		Engine:        engine,
		Ledger:        led,
		Risk:          riskEng,
		Hub:           hub,
		BetLocks:      locks.NewTable(lockTimeout),
		WithdrawLocks: locks.NewTable(lockTimeout),
	})

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting DeBear Party server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
