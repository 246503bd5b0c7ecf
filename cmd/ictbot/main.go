package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smclabs/ictbot/internal/config"
	"github.com/smclabs/ictbot/internal/database"
	"github.com/smclabs/ictbot/internal/market"
	"github.com/smclabs/ictbot/internal/okx"
	"github.com/smclabs/ictbot/internal/optimizer"
	"github.com/smclabs/ictbot/internal/params"
	"github.com/smclabs/ictbot/internal/scheduler"
	"github.com/smclabs/ictbot/internal/strategy"
	"github.com/smclabs/ictbot/internal/trade"
	"github.com/smclabs/ictbot/internal/watch"
)

func main() {
	// ═══════════════════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════════════════

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("              ICTBOT v4 - SMC SIGNAL ENGINE")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	// ═══════════════════════════════════════════════════════════════════════════════
	// INITIALIZE COMPONENTS
	// ═══════════════════════════════════════════════════════════════════════════════

	// 1. Persistence
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Database init failed")
	}
	log.Info().Msg("✅ Storage layer initialized")

	// 2. Parameter store + startup bounds enforcement
	store, err := params.NewStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("Parameter store init failed")
	}
	reset, err := store.EnforceBounds()
	if err != nil {
		log.Fatal().Err(err).Msg("Parameter bounds enforcement failed")
	}
	if len(reset) > 0 {
		log.Warn().Strs("params", reset).Msg("⚠️ Out-of-bounds parameters reset to defaults")
	}
	log.Info().Msg("✅ Parameter store initialized")

	// 3. OKX market data: REST client + live ticker stream
	client := okx.NewClient(cfg.OKXBaseURL)
	stream := okx.NewTickerStream(cfg.OKXWSURL)
	if err := stream.Start(); err != nil {
		log.Warn().Err(err).Msg("⚠️ Ticker stream unavailable, falling back to REST")
	}
	feed := market.NewFeed(client, stream)
	universe := market.NewUniverse(client, stream, cfg.QuoteCurrency, cfg.SymbolLimit, cfg.MinVolumeUSDT)
	if err := universe.Refresh(); err != nil {
		log.Warn().Err(err).Msg("⚠️ Initial universe refresh failed")
	}
	log.Info().Msg("✅ Market data initialized")

	// 4. Detection engine + trade manager + watchlist + optimiser
	engine := strategy.New(cfg.MinSLDistancePct, cfg.MaxSLDistancePct)
	trades := trade.NewManager(db, feed, trade.Policy{
		MaxConcurrentTrades:    cfg.MaxConcurrentTrades,
		MaxSameDirectionTrades: cfg.MaxSameDirectionTrades,
		MinSLDistancePct:       cfg.MinSLDistancePct,
		MaxSLDistancePct:       cfg.MaxSLDistancePct,
		SignalCooldown:         cfg.SignalCooldown,
		MaxTradeDuration:       cfg.MaxTradeDuration,
	})
	watcher := watch.NewWatcher(db, feed, engine, trades, cfg.MaxWatchCandles)
	opt := optimizer.New(db, store)
	log.Info().Msg("✅ Engine initialized")

	// 5. Restart recovery
	restored, err := trades.Recover()
	if err != nil {
		log.Fatal().Err(err).Msg("Restart recovery failed")
	}
	watching, err := db.GetWatchingItems()
	if err != nil {
		log.Fatal().Err(err).Msg("Watchlist recovery failed")
	}
	log.Info().
		Int("active_trades", restored).
		Int("watchlist", len(watching)).
		Msg("✅ State recovered from persistence")

	// ═══════════════════════════════════════════════════════════════════════════════
	// PRINT CONFIG
	// ═══════════════════════════════════════════════════════════════════════════════

	mode := "LIVE SIGNALS"
	if cfg.DryRun {
		mode = "DRY RUN"
	}
	log.Info().Msg("")
	log.Info().Msg("╔══════════════════════════════════════════════════════════════╗")
	log.Info().Msg("║          📐 ICT/SMC v4 - NARRATIVE → POI → TRIGGER           ║")
	log.Info().Msg("╠══════════════════════════════════════════════════════════════╣")
	log.Info().Msgf("║  Mode: %-52s  ║", mode)
	log.Info().Msgf("║  Universe: top %-3d %s swaps ≥ %.0fM vol                  ║",
		cfg.SymbolLimit, cfg.QuoteCurrency, cfg.MinVolumeUSDT/1e6)
	log.Info().Msgf("║  Scan: %-8s Trades: %-8s Watch: %-8s            ║",
		cfg.ScanInterval, cfg.TradeInterval, cfg.WatchInterval)
	log.Info().Msgf("║  Risk: ≤%d trades, ≤%d per side, SL %.1f–%.1f%%                 ║",
		cfg.MaxConcurrentTrades, cfg.MaxSameDirectionTrades,
		cfg.MinSLDistancePct*100, cfg.MaxSLDistancePct*100)
	log.Info().Msgf("║  Optimiser: %-6v every %-10s                          ║",
		cfg.OptimizerEnabled, cfg.OptimizeInterval)
	log.Info().Msg("╚══════════════════════════════════════════════════════════════╝")
	log.Info().Msg("")

	// ═══════════════════════════════════════════════════════════════════════════════
	// START
	// ═══════════════════════════════════════════════════════════════════════════════

	sched := scheduler.New(cfg, db, store, feed, universe, engine, trades, watcher, opt)
	sched.Start()
	log.Info().Msg("🚀 All systems running...")

	// ═══════════════════════════════════════════════════════════════════════════════
	// GRACEFUL SHUTDOWN
	// ═══════════════════════════════════════════════════════════════════════════════

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	sched.Stop()
	stream.Stop()
	log.Info().Msg("👋 Goodbye!")
}
