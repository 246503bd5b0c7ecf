package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smclabs/ictbot/internal/config"
	"github.com/smclabs/ictbot/internal/database"
	"github.com/smclabs/ictbot/internal/market"
	"github.com/smclabs/ictbot/internal/optimizer"
	"github.com/smclabs/ictbot/internal/params"
	"github.com/smclabs/ictbot/internal/strategy"
	"github.com/smclabs/ictbot/internal/trade"
	"github.com/smclabs/ictbot/internal/watch"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SCHEDULER - four independent cadences over shared persistence + param store
// ═══════════════════════════════════════════════════════════════════════════════

// Scheduler drives the four long-lived loops: symbol scan, open-trade sweep,
// watchlist re-check and optimisation. Each loop is internally sequential and
// takes one parameter snapshot per iteration.
type Scheduler struct {
	cfg      *config.Config
	db       *database.Database
	store    *params.Store
	feed     *market.Feed
	universe *market.Universe
	engine   *strategy.Engine
	trades   *trade.Manager
	watcher  *watch.Watcher
	opt      *optimizer.Optimizer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(
	cfg *config.Config,
	db *database.Database,
	store *params.Store,
	feed *market.Feed,
	universe *market.Universe,
	engine *strategy.Engine,
	trades *trade.Manager,
	watcher *watch.Watcher,
	opt *optimizer.Optimizer,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		db:       db,
		store:    store,
		feed:     feed,
		universe: universe,
		engine:   engine,
		trades:   trades,
		watcher:  watcher,
		opt:      opt,
		stopCh:   make(chan struct{}),
	}
}

// Start launches all loops. Each runs once immediately, then on its cadence.
func (s *Scheduler) Start() {
	s.loop("scan", s.cfg.ScanInterval, s.scanTick)
	s.loop("trades", s.cfg.TradeInterval, s.trades.Tick)
	s.loop("watchlist", s.cfg.WatchInterval, s.watchTick)
	if s.cfg.OptimizerEnabled {
		s.loop("optimizer", s.cfg.OptimizeInterval, s.optimizeTick)
	} else {
		log.Info().Msg("Optimiser disabled")
	}
	log.Info().
		Dur("scan", s.cfg.ScanInterval).
		Dur("trades", s.cfg.TradeInterval).
		Dur("watch", s.cfg.WatchInterval).
		Dur("optimize", s.cfg.OptimizeInterval).
		Msg("🚀 Scheduler started")
}

// Stop signals every loop and waits for in-flight iterations to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	log.Info().Msg("🛑 Scheduler stopped")
}

func (s *Scheduler) loop(name string, interval time.Duration, tick func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run := func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("loop", name).Msg("⚠️ Loop iteration panicked")
				}
			}()
			tick()
		}
		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

// scanTick walks the symbol universe once, feeding every emission into the
// trade manager or watchlist. One symbol's failure never stops the sweep.
func (s *Scheduler) scanTick() {
	if time.Since(s.universe.RefreshedAt()) > s.cfg.UniverseRefresh {
		if err := s.universe.Refresh(); err != nil {
			log.Warn().Err(err).Msg("⚠️ Universe refresh failed, scanning stale list")
		}
	}

	symbols := s.universe.Symbols()
	if len(symbols) == 0 {
		return
	}
	p := s.store.Snapshot()

	busy := make(map[string]bool)
	if actives, err := s.db.GetActiveSignals(); err == nil {
		for _, sig := range actives {
			busy[sig.Symbol] = true
		}
	}

	start := time.Now()
	signals, watches := 0, 0
	for _, symbol := range symbols {
		select {
		case <-s.stopCh:
			return
		default:
		}
		if busy[symbol] {
			continue
		}
		switch s.scanSymbol(symbol, p) {
		case strategy.ActionSignal:
			signals++
		case strategy.ActionWatch:
			watches++
		}
	}
	log.Info().
		Int("symbols", len(symbols)).
		Int("signals", signals).
		Int("watches", watches).
		Dur("took", time.Since(start).Round(time.Millisecond)).
		Msg("📊 Scan tick complete")
}

func (s *Scheduler) scanSymbol(symbol string, p params.Snapshot) strategy.Action {
	bundle, err := s.feed.GetMultiTimeframe(symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("Candle fetch failed, skipping symbol")
		return strategy.ActionNone
	}
	price, err := s.feed.GetTicker(symbol)
	if err != nil || price <= 0 {
		log.Debug().Err(err).Str("symbol", symbol).Msg("Ticker fetch failed, skipping symbol")
		return strategy.ActionNone
	}

	d := s.engine.Generate(symbol, bundle, price, p)
	switch d.Action {
	case strategy.ActionSignal:
		if _, err := s.trades.Open(d.Signal); err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("Entry gates rejected signal")
			return strategy.ActionNone
		}
	case strategy.ActionWatch:
		if err := s.watcher.Add(d.Watch); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("⚠️ Failed to add watch entry")
			return strategy.ActionNone
		}
	}
	return d.Action
}

func (s *Scheduler) watchTick() {
	s.watcher.Tick(s.store.Snapshot())
}

func (s *Scheduler) optimizeTick() {
	res, err := s.opt.Run()
	if err != nil {
		log.Error().Err(err).Msg("⚠️ Optimiser cycle failed")
		return
	}
	log.Info().Str("outcome", res.Outcome).Int("changes", len(res.Changes)).Msg("🔧 Optimiser cycle complete")
}
