package watch

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/smclabs/ictbot/internal/database"
	"github.com/smclabs/ictbot/internal/params"
	"github.com/smclabs/ictbot/internal/smc"
	"github.com/smclabs/ictbot/internal/strategy"
)

// Expiry reason codes persisted with EXPIRED entries.
const (
	ReasonSLBroken    = "SL kırıldı"
	ReasonTimeout     = "Timeout, trigger gelmedi"
	ReasonContextLost = "context lost"
)

// marketData is the slice of the feed the watcher uses.
type marketData interface {
	GetCandles(symbol, timeframe string, n int) ([]smc.Candle, error)
	GetTicker(symbol string) (float64, error)
}

// opener is the trade manager's entry path.
type opener interface {
	Open(sig *strategy.Signal) (*database.Signal, error)
}

// Watcher holds formed-but-untriggered setups and re-checks them on every
// newly closed 5m candle, promoting, expiring, or holding each one.
type Watcher struct {
	db              *database.Database
	feed            marketData
	engine          *strategy.Engine
	trades          opener
	maxWatchCandles int
}

func NewWatcher(db *database.Database, feed marketData, engine *strategy.Engine, trades opener, maxWatchCandles int) *Watcher {
	return &Watcher{
		db:              db,
		feed:            feed,
		engine:          engine,
		trades:          trades,
		maxWatchCandles: maxWatchCandles,
	}
}

// Add puts a Watch emission under observation. A (symbol, direction) pair is
// watched at most once and never alongside an ACTIVE signal for the symbol.
func (w *Watcher) Add(watch *strategy.Watch) error {
	already, err := w.db.HasWatching(watch.Symbol, string(watch.Direction))
	if err != nil {
		return fmt.Errorf("watchlist lookup: %w", err)
	}
	if already {
		return nil
	}
	active, err := w.db.GetActiveSignalForSymbol(watch.Symbol)
	if err != nil {
		return fmt.Errorf("active lookup: %w", err)
	}
	if active != nil {
		return nil
	}

	ctx, err := strategy.EncodeContext(watch.Narrative, watch.POI)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	entry := &database.WatchlistEntry{
		Symbol:          watch.Symbol,
		Direction:       string(watch.Direction),
		PotentialEntry:  watch.Entry,
		PotentialSL:     watch.SL,
		PotentialTP:     watch.TP,
		WatchReason:     watch.Reason,
		MaxWatchCandles: w.maxWatchCandles,
		StoredContext:   ctx,
	}
	if err := w.db.AddToWatchlist(entry); err != nil {
		return fmt.Errorf("persist watchlist entry: %w", err)
	}
	log.Info().
		Str("symbol", watch.Symbol).
		Str("direction", string(watch.Direction)).
		Str("reason", watch.Reason).
		Msg("👀 Added to watchlist")
	return nil
}

// Tick re-evaluates every WATCHING entry. One entry's failure never stops
// the sweep.
func (w *Watcher) Tick(p params.Snapshot) {
	items, err := w.db.GetWatchingItems()
	if err != nil {
		log.Error().Err(err).Msg("⚠️ Watchlist sweep failed")
		return
	}
	for i := range items {
		w.checkEntry(&items[i], p)
	}
}

func (w *Watcher) checkEntry(entry *database.WatchlistEntry, p params.Snapshot) {
	m5, err := w.feed.GetCandles(entry.Symbol, "5m", 15)
	if err != nil || len(m5) == 0 {
		log.Debug().Err(err).Str("symbol", entry.Symbol).Msg("5m fetch failed, holding watch entry")
		return
	}

	newest := m5[len(m5)-1].Time.Unix()
	if newest == entry.Last5mCandleTS {
		return // no new candle closed
	}
	entry.CandlesWatched++
	entry.Last5mCandleTS = newest

	latest := m5[len(m5)-1]
	long := entry.Direction == string(smc.BiasLong)
	if (long && latest.Low <= entry.PotentialSL) || (!long && latest.High >= entry.PotentialSL) {
		w.expire(entry, ReasonSLBroken)
		return
	}
	if entry.CandlesWatched >= entry.MaxWatchCandles {
		w.expire(entry, ReasonTimeout)
		return
	}

	ctx, err := strategy.DecodeContext(entry.StoredContext)
	if err != nil {
		w.expire(entry, ReasonContextLost)
		return
	}

	m15, err := w.feed.GetCandles(entry.Symbol, "15m", 100)
	if err != nil || len(m15) == 0 {
		w.hold(entry)
		return
	}
	price, err := w.feed.GetTicker(entry.Symbol)
	if err != nil || price <= 0 {
		w.hold(entry)
		return
	}

	res := w.engine.CheckTriggerForWatch(ctx, m15, m5, price, p)
	if res.Invalidated {
		w.expire(entry, res.Reason)
		return
	}
	if res.Signal != nil {
		res.Signal.Symbol = entry.Symbol
		if _, err := w.trades.Open(res.Signal); err != nil {
			// entry gates said no; the setup itself is still valid
			log.Debug().Err(err).Str("symbol", entry.Symbol).Msg("Promotion blocked by entry gates")
			w.hold(entry)
			return
		}
		if err := w.db.PromoteWatchlistItem(entry.ID); err != nil {
			log.Error().Err(err).Str("symbol", entry.Symbol).Msg("⚠️ Failed to mark promotion")
		}
		log.Info().
			Str("symbol", entry.Symbol).
			Str("trigger", res.Signal.TriggerType).
			Str("quality", res.Signal.Quality).
			Msg("🚀 Watchlist entry promoted")
		return
	}

	w.hold(entry)
}

func (w *Watcher) hold(entry *database.WatchlistEntry) {
	if err := w.db.UpdateWatchlistItem(entry.ID, entry.CandlesWatched, entry.Last5mCandleTS); err != nil {
		log.Error().Err(err).Str("symbol", entry.Symbol).Msg("⚠️ Failed to update watch entry")
	}
}

func (w *Watcher) expire(entry *database.WatchlistEntry, reason string) {
	if err := w.db.ExpireWatchlistItem(entry.ID, reason); err != nil {
		log.Error().Err(err).Str("symbol", entry.Symbol).Msg("⚠️ Failed to expire watch entry")
		return
	}
	log.Info().Str("symbol", entry.Symbol).Str("reason", reason).Msg("⏳ Watchlist entry expired")
}
