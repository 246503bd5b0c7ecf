package trade

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smclabs/ictbot/internal/database"
	"github.com/smclabs/ictbot/internal/smc"
	"github.com/smclabs/ictbot/internal/strategy"
)

type stubPrices map[string]float64

func (s stubPrices) GetTicker(symbol string) (float64, error) { return s[symbol], nil }

func testPolicy() Policy {
	return Policy{
		MaxConcurrentTrades:    3,
		MaxSameDirectionTrades: 2,
		MinSLDistancePct:       0.005,
		MaxSLDistancePct:       0.025,
		SignalCooldown:         30 * time.Minute,
		MaxTradeDuration:       8 * time.Hour,
	}
}

func testManager(t *testing.T) (*Manager, *database.Database) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return NewManager(db, stubPrices{}, testPolicy()), db
}

func longSignal(symbol string) *strategy.Signal {
	return &strategy.Signal{
		Symbol:      symbol,
		Direction:   smc.BiasLong,
		Entry:       100,
		SL:          99,
		TP:          104,
		RR:          4,
		TriggerType: strategy.TriggerSweepRejection,
		Quality:     "A",
		Components:  []string{strategy.ComponentSweep, strategy.ComponentHTFBias},
		Timeframe:   "15m",
		EntryMode:   "MARKET",
	}
}

func shortSignal(symbol string) *strategy.Signal {
	s := longSignal(symbol)
	s.Direction = smc.BiasShort
	s.SL = 101
	s.TP = 96
	return s
}

func TestOpenPersistsActiveSignal(t *testing.T) {
	m, db := testManager(t)

	row, err := m.Open(longSignal("BTC-USDT-SWAP"))
	require.NoError(t, err)
	assert.Equal(t, database.StatusActive, row.Status)
	assert.Equal(t, 99.0, row.EffectiveSL, "effective SL starts at the structural SL")
	assert.Equal(t, "SWEEP_REJECTION,HTF_BIAS", row.Components)
	assert.Equal(t, 100, row.Confidence, "every fired trigger carries full confidence")

	count, err := db.GetActiveTradeCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestOpenGateOrdering(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.Open(longSignal("BTC-USDT-SWAP"))
	require.NoError(t, err)

	// duplicate symbol
	_, err = m.Open(longSignal("BTC-USDT-SWAP"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACTIVE")

	// same-direction cap at 2
	_, err = m.Open(longSignal("ETH-USDT-SWAP"))
	require.NoError(t, err)
	_, err = m.Open(longSignal("SOL-USDT-SWAP"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LONG")

	// a SHORT still fits, reaching the concurrency cap
	_, err = m.Open(shortSignal("SOL-USDT-SWAP"))
	require.NoError(t, err)
	_, err = m.Open(shortSignal("XRP-USDT-SWAP"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrent")
}

func TestOpenRejectsBadLevels(t *testing.T) {
	m, _ := testManager(t)

	s := longSignal("BTC-USDT-SWAP")
	s.SL = 99.9 // 0.1% distance, below the floor
	_, err := m.Open(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sl distance")

	s = longSignal("BTC-USDT-SWAP")
	s.TP = 98 // below entry for a LONG
	_, err = m.Open(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "misordered")

	s = longSignal("BTC-USDT-SWAP")
	s.TP = 0
	_, err = m.Open(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero level")
}

func TestOpenCooldown(t *testing.T) {
	m, db := testManager(t)

	row, err := m.Open(longSignal("BTC-USDT-SWAP"))
	require.NoError(t, err)
	require.NoError(t, db.UpdateSignalStatus(row.ID, database.StatusLost, 99, -1, CloseStructuralSL))

	_, err = m.Open(longSignal("BTC-USDT-SWAP"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cooldown")
}

func TestBreakevenAndTrailingProgression(t *testing.T) {
	m, db := testManager(t)
	row, err := m.Open(longSignal("BTC-USDT-SWAP")) // entry 100, sl 99, tp 104
	require.NoError(t, err)

	// progress 0.60: breakeven stage
	m.Check(row, 102.4)
	assert.InDelta(t, 100.2, row.EffectiveSL, 1e-9)
	stored, err := db.GetActiveSignalForSymbol("BTC-USDT-SWAP")
	require.NoError(t, err)
	require.NotNil(t, stored, "still ACTIVE")
	assert.InDelta(t, 100.2, stored.EffectiveSL, 1e-9, "breakeven SL persisted")

	// progress 0.75: trailing takes over
	m.Check(row, 103)
	assert.InDelta(t, 101.5, row.EffectiveSL, 1e-9)

	// pullback into the trail closes the trade in profit
	m.Check(row, 101.4)
	hist, err := db.GetCompletedSignals(1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, database.StatusWon, hist[0].Status)
	assert.Equal(t, CloseTrailingSL, hist[0].CloseReason)
	assert.InDelta(t, 1.4, hist[0].PnlPct, 1e-9)
}

func TestTrailingStopIsMonotonic(t *testing.T) {
	m, _ := testManager(t)
	row, err := m.Open(longSignal("BTC-USDT-SWAP"))
	require.NoError(t, err)

	m.Check(row, 103.6) // trail = 101.8
	assert.InDelta(t, 101.8, row.EffectiveSL, 1e-9)
	m.Check(row, 103.0) // weaker price must not loosen the stop
	assert.InDelta(t, 101.8, row.EffectiveSL, 1e-9)
}

func TestSlippageClamp(t *testing.T) {
	m, db := testManager(t)
	row, err := m.Open(longSignal("BTC-USDT-SWAP"))
	require.NoError(t, err)

	// gap far through the stop: realized -3% clamps to sl-implied -1% - 0.5
	m.Check(row, 97)
	hist, err := db.GetCompletedSignals(1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, database.StatusLost, hist[0].Status)
	assert.Equal(t, CloseStructuralSL, hist[0].CloseReason)
	assert.InDelta(t, -1.5, hist[0].PnlPct, 1e-9)
}

func TestShortTakeProfit(t *testing.T) {
	m, db := testManager(t)
	row, err := m.Open(shortSignal("ETH-USDT-SWAP")) // entry 100, sl 101, tp 96
	require.NoError(t, err)

	m.Check(row, 95.8)
	hist, err := db.GetCompletedSignals(1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, database.StatusWon, hist[0].Status)
	assert.Equal(t, CloseTPHit, hist[0].CloseReason)
	assert.InDelta(t, 4.2, hist[0].PnlPct, 1e-9)
}

func TestTimeoutClosesAtMarket(t *testing.T) {
	m, db := testManager(t)
	row := &database.Signal{
		Symbol: "BTC-USDT-SWAP", Direction: "LONG",
		EntryPrice: 100, StopLoss: 99, TakeProfit: 104, EffectiveSL: 99,
		Status: database.StatusActive, EntryTime: time.Now().Add(-9 * time.Hour),
	}
	require.NoError(t, db.AddSignal(row))

	m.Check(row, 100.8)
	hist, err := db.GetCompletedSignals(1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, database.StatusWon, hist[0].Status)
	assert.Equal(t, CloseTimeout, hist[0].CloseReason)
}

func TestInvertedLevelsCancelled(t *testing.T) {
	m, db := testManager(t)
	row := &database.Signal{
		Symbol: "BTC-USDT-SWAP", Direction: "LONG",
		EntryPrice: 100, StopLoss: 104, TakeProfit: 99, EffectiveSL: 104,
		Status: database.StatusActive, EntryTime: time.Now(),
	}
	require.NoError(t, db.AddSignal(row))

	m.Check(row, 100)
	hist, err := db.GetCompletedSignals(1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, database.StatusCancelled, hist[0].Status)
	assert.Equal(t, CloseInvalid, hist[0].CloseReason)
}

func TestRecoverRestoresBreakevenState(t *testing.T) {
	m, db := testManager(t)
	row := &database.Signal{
		Symbol: "BTC-USDT-SWAP", Direction: "LONG",
		EntryPrice: 100, StopLoss: 99, TakeProfit: 104, EffectiveSL: 100.2,
		Status: database.StatusActive, EntryTime: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.AddSignal(row))

	n, err := m.Recover()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// the restored stop holds: a dip under it closes in profit, not at 99
	m.Check(row, 100.1)
	hist, err := db.GetCompletedSignals(1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, database.StatusWon, hist[0].Status)
	assert.InDelta(t, 0.1, hist[0].PnlPct, 1e-9)
}

func TestTickSweepsAllActives(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	prices := stubPrices{"BTC-USDT-SWAP": 104.5, "ETH-USDT-SWAP": 100.5}
	m := NewManager(db, prices, testPolicy())

	_, err = m.Open(longSignal("BTC-USDT-SWAP"))
	require.NoError(t, err)
	_, err = m.Open(longSignal("ETH-USDT-SWAP"))
	require.NoError(t, err)

	m.Tick()

	count, err := db.GetActiveTradeCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "only the TP-hit trade closed")
}
