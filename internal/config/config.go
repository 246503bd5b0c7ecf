package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all static configuration for the bot. Strategy thresholds are
// NOT here: those live in the DB-backed parameter store so the optimiser can
// move them.
type Config struct {
	// Mode
	DryRun bool
	Debug  bool

	// Database
	DatabasePath string

	// OKX public endpoints
	OKXBaseURL string
	OKXWSURL   string

	// Symbol universe
	QuoteCurrency   string
	SymbolLimit     int
	MinVolumeUSDT   float64
	UniverseRefresh time.Duration

	// Cadences
	ScanInterval     time.Duration
	TradeInterval    time.Duration
	WatchInterval    time.Duration
	OptimizeInterval time.Duration

	// Portfolio risk policy (not optimiser-tunable)
	MaxConcurrentTrades    int
	MaxSameDirectionTrades int
	MinSLDistancePct       float64
	MaxSLDistancePct       float64
	SignalCooldown         time.Duration
	MaxTradeDuration       time.Duration
	MaxWatchCandles        int

	// Optimiser
	OptimizerEnabled bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		DatabasePath: getEnv("DATABASE_PATH", "data/ictbot.db"),

		OKXBaseURL: getEnv("OKX_BASE_URL", "https://www.okx.com"),
		OKXWSURL:   getEnv("OKX_WS_URL", "wss://ws.okx.com:8443/ws/v5/public"),

		QuoteCurrency:   getEnv("QUOTE_CURRENCY", "USDT"),
		SymbolLimit:     getEnvInt("SYMBOL_LIMIT", 100),
		MinVolumeUSDT:   getEnvFloat("MIN_VOLUME_USDT", 10_000_000),
		UniverseRefresh: getEnvDuration("UNIVERSE_REFRESH", 5*time.Minute),

		ScanInterval:     getEnvDuration("SCAN_INTERVAL", 180*time.Second),
		TradeInterval:    getEnvDuration("TRADE_CHECK_INTERVAL", 5*time.Second),
		WatchInterval:    getEnvDuration("WATCH_CHECK_INTERVAL", 60*time.Second),
		OptimizeInterval: getEnvDuration("OPTIMIZE_INTERVAL", 30*time.Minute),

		MaxConcurrentTrades:    getEnvInt("MAX_CONCURRENT_TRADES", 3),
		MaxSameDirectionTrades: getEnvInt("MAX_SAME_DIRECTION_TRADES", 2),
		MinSLDistancePct:       getEnvFloat("MIN_SL_DISTANCE_PCT", 0.005),
		MaxSLDistancePct:       getEnvFloat("MAX_SL_DISTANCE_PCT", 0.025),
		SignalCooldown:         getEnvDuration("SIGNAL_COOLDOWN", 30*time.Minute),
		MaxTradeDuration:       getEnvDuration("MAX_TRADE_DURATION", 8*time.Hour),
		MaxWatchCandles:        getEnvInt("MAX_WATCH_CANDLES", 12),

		OptimizerEnabled: getEnvBool("OPTIMIZER_ENABLED", true),
	}

	// Validate
	if cfg.SymbolLimit <= 0 {
		return nil, fmt.Errorf("SYMBOL_LIMIT must be positive")
	}
	if cfg.MinSLDistancePct <= 0 || cfg.MaxSLDistancePct <= cfg.MinSLDistancePct {
		return nil, fmt.Errorf("invalid SL distance bounds: min=%.4f max=%.4f",
			cfg.MinSLDistancePct, cfg.MaxSLDistancePct)
	}
	if cfg.MaxConcurrentTrades < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_TRADES must be at least 1")
	}
	if cfg.ScanInterval < 10*time.Second {
		return nil, fmt.Errorf("SCAN_INTERVAL too short: %s", cfg.ScanInterval)
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
