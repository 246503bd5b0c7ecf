package trade

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smclabs/ictbot/internal/database"
	"github.com/smclabs/ictbot/internal/smc"
	"github.com/smclabs/ictbot/internal/strategy"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE LIFECYCLE MANAGER - entry gates, two-stage stop discipline, terminal closes
// ═══════════════════════════════════════════════════════════════════════════════

// Close reason codes persisted with terminal transitions.
const (
	CloseTPHit        = "TP_HIT"
	CloseStructuralSL = "STRUCTURAL_SL"
	CloseBreakevenSL  = "BREAKEVEN"
	CloseTrailingSL   = "TRAILING_SL"
	CloseTimeout      = "TIMEOUT"
	CloseInvalid      = "INVALID_LEVELS"
)

const (
	breakevenProgress = 0.60
	trailingProgress  = 0.75
	trailingFraction  = 0.50
	breakevenOffset   = 0.002
	slippageClampPct  = 0.5
)

// Policy is the non-tunable portfolio risk configuration.
type Policy struct {
	MaxConcurrentTrades    int
	MaxSameDirectionTrades int
	MinSLDistancePct       float64
	MaxSLDistancePct       float64
	SignalCooldown         time.Duration
	MaxTradeDuration       time.Duration
}

// PriceSource is the last-price lookup the tick loop uses.
type PriceSource interface {
	GetTicker(symbol string) (float64, error)
}

// tradeState is the in-memory stop state for one ACTIVE signal. Single
// writer: only the tick loop mutates it.
type tradeState struct {
	breakevenMoved bool
	trailingSL     float64
}

// Manager owns the signal lifecycle: it gates entries, drives each ACTIVE
// signal's tick state machine, and persists every transition.
type Manager struct {
	db     *database.Database
	prices PriceSource
	policy Policy

	mu    sync.Mutex
	state map[uint]*tradeState
}

func NewManager(db *database.Database, prices PriceSource, policy Policy) *Manager {
	return &Manager{
		db:     db,
		prices: prices,
		policy: policy,
		state:  make(map[uint]*tradeState),
	}
}

// Open runs the entry gates and persists a new ACTIVE signal. The first
// failing gate rejects with a named reason.
func (m *Manager) Open(sig *strategy.Signal) (*database.Signal, error) {
	if sig.Entry <= 0 || sig.SL <= 0 || sig.TP <= 0 {
		return nil, fmt.Errorf("zero level: entry=%.6f sl=%.6f tp=%.6f", sig.Entry, sig.SL, sig.TP)
	}

	count, err := m.db.GetActiveTradeCount()
	if err != nil {
		return nil, fmt.Errorf("active count: %w", err)
	}
	if int(count) >= m.policy.MaxConcurrentTrades {
		return nil, fmt.Errorf("max concurrent trades reached (%d)", m.policy.MaxConcurrentTrades)
	}

	existing, err := m.db.GetActiveSignalForSymbol(sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("symbol lookup: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s already has an ACTIVE signal", sig.Symbol)
	}

	sameDir, err := m.sameDirectionCount(string(sig.Direction))
	if err != nil {
		return nil, fmt.Errorf("direction count: %w", err)
	}
	if sameDir >= m.policy.MaxSameDirectionTrades {
		return nil, fmt.Errorf("max %s trades reached (%d)", sig.Direction, m.policy.MaxSameDirectionTrades)
	}

	last, err := m.db.GetLastTerminalSignal(sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("cooldown lookup: %w", err)
	}
	if last != nil && last.CloseTime != nil {
		if since := time.Since(*last.CloseTime); since < m.policy.SignalCooldown {
			return nil, fmt.Errorf("cooldown: %s closed %s ago", sig.Symbol, since.Round(time.Second))
		}
	}

	slDist := math.Abs(sig.Entry-sig.SL) / sig.Entry
	if slDist < m.policy.MinSLDistancePct || slDist > m.policy.MaxSLDistancePct {
		return nil, fmt.Errorf("sl distance %.4f outside [%.4f, %.4f]", slDist, m.policy.MinSLDistancePct, m.policy.MaxSLDistancePct)
	}
	if !levelsOriented(string(sig.Direction), sig.Entry, sig.SL, sig.TP) {
		return nil, fmt.Errorf("levels misordered: entry=%.6f sl=%.6f tp=%.6f", sig.Entry, sig.SL, sig.TP)
	}

	row := &database.Signal{
		Symbol:      sig.Symbol,
		Direction:   string(sig.Direction),
		EntryPrice:  sig.Entry,
		StopLoss:    sig.SL,
		TakeProfit:  sig.TP,
		Status:      database.StatusActive,
		EntryMode:   sig.EntryMode,
		Confidence:  100, // v4 fires only fully-confluent triggers
		Components:  strings.Join(sig.Components, ","),
		RRRatio:     sig.RR,
		Timeframe:   sig.Timeframe,
		TriggerType: sig.TriggerType,
		Quality:     sig.Quality,
		EntryTime:   time.Now(),
	}
	if sig.Narrative != nil {
		row.HTFBias = string(sig.Narrative.Bias)
	}
	if sig.POI != nil {
		row.ConfluenceScore = sig.POI.ConfluenceCount
	}
	if err := m.db.AddSignal(row); err != nil {
		return nil, fmt.Errorf("persist signal: %w", err)
	}

	m.mu.Lock()
	m.state[row.ID] = &tradeState{}
	m.mu.Unlock()

	log.Info().
		Str("symbol", row.Symbol).
		Str("direction", row.Direction).
		Str("trigger", row.TriggerType).
		Str("quality", row.Quality).
		Float64("entry", row.EntryPrice).
		Float64("sl", row.StopLoss).
		Float64("tp", row.TakeProfit).
		Float64("rr", row.RRRatio).
		Msg("✅ Trade opened")
	return row, nil
}

// Tick sweeps every ACTIVE signal once. A failed ticker fetch skips that
// signal only.
func (m *Manager) Tick() {
	actives, err := m.db.GetActiveSignals()
	if err != nil {
		log.Error().Err(err).Msg("⚠️ Active signal sweep failed")
		return
	}
	for i := range actives {
		sig := &actives[i]
		price, err := m.prices.GetTicker(sig.Symbol)
		if err != nil || price <= 0 {
			log.Debug().Err(err).Str("symbol", sig.Symbol).Msg("Ticker fetch failed, skipping tick")
			continue
		}
		m.Check(sig, price)
	}
}

// Check runs one tick of the state machine for a single ACTIVE signal.
func (m *Manager) Check(sig *database.Signal, price float64) {
	long := sig.Direction == string(smc.BiasLong)

	// 1. business timeout
	if time.Since(sig.EntryTime) > m.policy.MaxTradeDuration {
		m.closeAt(sig, price, realizedPnl(long, sig.EntryPrice, price), CloseTimeout)
		return
	}

	// 2. structural sanity
	if (long && sig.TakeProfit <= sig.StopLoss) || (!long && sig.TakeProfit >= sig.StopLoss) {
		m.cancel(sig, "tp/sl inverted")
		return
	}

	st := m.stateFor(sig.ID)

	// 3. pre-breakeven orientation
	if !st.breakevenMoved && !levelsOriented(sig.Direction, sig.EntryPrice, sig.StopLoss, sig.TakeProfit) {
		m.cancel(sig, "sl/tp on wrong side of entry")
		return
	}

	// 4. two-stage stop management
	effSL := m.manageStops(sig, st, price, long)

	// 5. terminal checks against effective levels
	if long {
		if price >= sig.TakeProfit {
			m.closeAt(sig, price, realizedPnl(true, sig.EntryPrice, price), CloseTPHit)
			return
		}
		if price <= effSL {
			m.closeAtStop(sig, st, price, effSL, true)
		}
		return
	}
	if price <= sig.TakeProfit {
		m.closeAt(sig, price, realizedPnl(false, sig.EntryPrice, price), CloseTPHit)
		return
	}
	if price >= effSL {
		m.closeAtStop(sig, st, price, effSL, false)
	}
}

// manageStops applies the breakeven and trailing stages and returns the
// effective SL. The effective stop only ever tightens.
func (m *Manager) manageStops(sig *database.Signal, st *tradeState, price float64, long bool) float64 {
	span := sig.TakeProfit - sig.EntryPrice
	if span == 0 {
		return sig.EffectiveSL
	}
	progress := (price - sig.EntryPrice) / span

	if progress >= breakevenProgress && !st.breakevenMoved {
		st.breakevenMoved = true
		log.Info().Str("symbol", sig.Symbol).Float64("progress", progress).Msg("📊 Breakeven stage reached")
	}
	if progress >= trailingProgress {
		trail := sig.EntryPrice + trailingFraction*(price-sig.EntryPrice)
		if st.trailingSL == 0 {
			log.Info().Str("symbol", sig.Symbol).Float64("trail", trail).Msg("📊 Trailing enabled")
		}
		if st.trailingSL == 0 || (long && trail > st.trailingSL) || (!long && trail < st.trailingSL) {
			st.trailingSL = trail
		}
	}

	eff := sig.EffectiveSL
	if eff == 0 {
		eff = sig.StopLoss
	}
	tighter := func(candidate float64) {
		if candidate == 0 {
			return
		}
		if (long && candidate > eff) || (!long && candidate < eff) {
			eff = candidate
		}
	}
	if st.breakevenMoved {
		be := sig.EntryPrice * (1 + breakevenOffset)
		if !long {
			be = sig.EntryPrice * (1 - breakevenOffset)
		}
		tighter(be)
	}
	tighter(st.trailingSL)

	if eff != sig.EffectiveSL {
		if err := m.db.UpdateSignalSL(sig.ID, eff); err != nil {
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("⚠️ Failed to persist effective SL")
		} else {
			sig.EffectiveSL = eff
		}
	}
	return eff
}

// closeAtStop closes a stopped-out signal, labelling which stage of the stop
// discipline fired and applying the slippage clamp.
func (m *Manager) closeAtStop(sig *database.Signal, st *tradeState, price, effSL float64, long bool) {
	pnl := realizedPnl(long, sig.EntryPrice, price)
	slImplied := realizedPnl(long, sig.EntryPrice, effSL)
	if pnl < slImplied-slippageClampPct {
		pnl = slImplied - slippageClampPct
	}

	reason := CloseStructuralSL
	switch {
	case st.trailingSL != 0 && ((long && effSL >= st.trailingSL) || (!long && effSL <= st.trailingSL)):
		reason = CloseTrailingSL
	case st.breakevenMoved:
		reason = CloseBreakevenSL
	}
	m.closeAt(sig, price, pnl, reason)
}

func (m *Manager) closeAt(sig *database.Signal, price, pnl float64, reason string) {
	status := database.StatusLost
	if pnl > 0 {
		status = database.StatusWon
	}
	if err := m.db.UpdateSignalStatus(sig.ID, status, price, pnl, reason); err != nil {
		log.Error().Err(err).Str("symbol", sig.Symbol).Msg("⚠️ Failed to close signal")
		return
	}
	m.pop(sig.ID)

	ev := log.Info().
		Str("symbol", sig.Symbol).
		Str("status", status).
		Str("reason", reason).
		Float64("close", price).
		Float64("pnl_pct", pnl)
	if status == database.StatusWon {
		ev.Msg("🎯 Trade won")
	} else {
		ev.Msg("🛑 Trade lost")
	}
}

func (m *Manager) cancel(sig *database.Signal, note string) {
	if err := m.db.UpdateSignalStatus(sig.ID, database.StatusCancelled, 0, 0, CloseInvalid); err != nil {
		log.Error().Err(err).Str("symbol", sig.Symbol).Msg("⚠️ Failed to cancel signal")
		return
	}
	m.pop(sig.ID)
	log.Warn().Str("symbol", sig.Symbol).Str("note", note).Msg("⚠️ Trade cancelled")
}

// Recover rebuilds the in-memory stop state from persisted ACTIVE signals
// after a restart. A stop already at or past entry means the breakeven stage
// had fired.
func (m *Manager) Recover() (int, error) {
	actives, err := m.db.GetActiveSignals()
	if err != nil {
		return 0, fmt.Errorf("load active signals: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sig := range actives {
		st := &tradeState{}
		long := sig.Direction == string(smc.BiasLong)
		sl := sig.EffectiveSL
		if sl == 0 {
			sl = sig.StopLoss
		}
		if long && sl >= sig.EntryPrice && sig.TakeProfit > sig.EntryPrice {
			st.breakevenMoved = true
			st.trailingSL = sl
		}
		if !long && sl <= sig.EntryPrice && sig.TakeProfit < sig.EntryPrice {
			st.breakevenMoved = true
			st.trailingSL = sl
		}
		m.state[sig.ID] = st
	}
	return len(actives), nil
}

func (m *Manager) stateFor(id uint) *tradeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[id]
	if !ok {
		st = &tradeState{}
		m.state[id] = st
	}
	return st
}

func (m *Manager) pop(id uint) {
	m.mu.Lock()
	delete(m.state, id)
	m.mu.Unlock()
}

func (m *Manager) sameDirectionCount(direction string) (int, error) {
	actives, err := m.db.GetActiveSignals()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range actives {
		if s.Direction == direction {
			n++
		}
	}
	return n, nil
}

func levelsOriented(direction string, entry, sl, tp float64) bool {
	if direction == string(smc.BiasLong) {
		return sl < entry && entry < tp
	}
	return tp < entry && entry < sl
}

func realizedPnl(long bool, entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	if long {
		return (price - entry) / entry * 100
	}
	return (entry - price) / entry * 100
}
