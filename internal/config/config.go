package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Persistence
	StoreBackend string // "postgres" or "redis"

	// Party crisis game
	BettingDuration       int // seconds
	KillerDuration        int
	SettlingDuration      int
	MinBet                float64
	MaxBet                float64
	PlatformFee           float64 // fraction, e.g. 0.10
	RoomBetMin            float64 // per-room bot target band
	RoomBetMax            float64
	BotBetMin             float64 // single synthetic bet band
	BotBetMax             float64
	BotCountMax           int
	RetentionMinutes      int // how long a settled game stays queryable
	AdminTargetWindowSecs int

	// Deposits / withdrawals
	MinDeposit               float64
	MinWithdraw              float64
	RequiredConfirmations    int
	DepositCheckIntervalSecs int

	// Withdrawal risk
	WithdrawCooldownSecs   int
	LargeWithdrawThreshold float64
	WithdrawReviewRatio    float64
	DailyWithdrawLimit     float64
	LockTimeoutSecs        int

	// Chain collaborators (external verifier / payout wallet)
	ChainRPCURL      string
	TokenAddress     string
	PlatformReceiver string

	// Security
	JWTSecret           string
	AdminSessionMinutes int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/debearparty?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Persistence
		StoreBackend: getEnv("STORE_BACKEND", "postgres"),

		// Party crisis game
		BettingDuration:       getEnvInt("BETTING_DURATION_SECONDS", 60),
		KillerDuration:        getEnvInt("KILLER_DURATION_SECONDS", 15),
		SettlingDuration:      getEnvInt("SETTLING_DURATION_SECONDS", 6),
		MinBet:                getEnvFloat("MIN_BET", 1),
		MaxBet:                getEnvFloat("MAX_BET", 500),
		PlatformFee:           getEnvFloat("PLATFORM_FEE", 0.10),
		RoomBetMin:            getEnvFloat("ROOM_BET_MIN", 4200),
		RoomBetMax:            getEnvFloat("ROOM_BET_MAX", 5800),
		BotBetMin:             getEnvFloat("BOT_BET_MIN", 50),
		BotBetMax:             getEnvFloat("BOT_BET_MAX", 600),
		BotCountMax:           getEnvInt("BOT_COUNT_MAX", 90),
		RetentionMinutes:      getEnvInt("GAME_RETENTION_MINUTES", 10),
		AdminTargetWindowSecs: getEnvInt("ADMIN_TARGET_WINDOW_SECONDS", 2),

		// Deposits / withdrawals
		MinDeposit:               getEnvFloat("MIN_DEPOSIT", 1),
		MinWithdraw:              getEnvFloat("MIN_WITHDRAW", 1),
		RequiredConfirmations:    getEnvInt("REQUIRED_CONFIRMATIONS", 3),
		DepositCheckIntervalSecs: getEnvInt("DEPOSIT_CHECK_INTERVAL_SECONDS", 30),

		// Withdrawal risk
		WithdrawCooldownSecs:   getEnvInt("WITHDRAW_COOLDOWN_SECONDS", 300),
		LargeWithdrawThreshold: getEnvFloat("LARGE_WITHDRAW_THRESHOLD", 5000),
		WithdrawReviewRatio:    getEnvFloat("WITHDRAW_REVIEW_RATIO", 4),
		DailyWithdrawLimit:     getEnvFloat("DAILY_WITHDRAW_AMOUNT_LIMIT", 10000),
		LockTimeoutSecs:        getEnvInt("LOCK_TIMEOUT_SECONDS", 30),

		// Chain collaborators
		ChainRPCURL:      getEnv("RPC_URL", ""),
		TokenAddress:     getEnv("DP_TOKEN", ""),
		PlatformReceiver: getEnv("GAME_PLATFORM_RECEIVER", ""),

		// Security
		JWTSecret:           getEnv("JWT_SECRET", "change-me-in-production"),
		AdminSessionMinutes: getEnvInt("ADMIN_SESSION_MINUTES", 60),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
