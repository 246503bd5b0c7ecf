package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func activeSignal(symbol string) *Signal {
	return &Signal{
		Symbol: symbol, Direction: "LONG",
		EntryPrice: 100, StopLoss: 99, TakeProfit: 104,
		Status: StatusActive, EntryTime: time.Now(),
	}
}

func TestAddSignalDefaultsEffectiveSL(t *testing.T) {
	db := testDB(t)
	sig := activeSignal("BTC-USDT-SWAP")
	require.NoError(t, db.AddSignal(sig))
	assert.Equal(t, 99.0, sig.EffectiveSL)
}

func TestTerminalStatusIsFinal(t *testing.T) {
	db := testDB(t)
	sig := activeSignal("BTC-USDT-SWAP")
	require.NoError(t, db.AddSignal(sig))

	require.NoError(t, db.UpdateSignalStatus(sig.ID, StatusWon, 104, 4, "TP_HIT"))
	err := db.UpdateSignalStatus(sig.ID, StatusLost, 99, -1, "STRUCTURAL_SL")
	require.Error(t, err, "terminal states are never overwritten")

	got, err := db.GetLastTerminalSignal("BTC-USDT-SWAP")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusWon, got.Status)
	require.NotNil(t, got.CloseTime)
}

func TestActiveQueries(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.AddSignal(activeSignal("BTC-USDT-SWAP")))
	require.NoError(t, db.AddSignal(activeSignal("ETH-USDT-SWAP")))

	count, err := db.GetActiveTradeCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	sig, err := db.GetActiveSignalForSymbol("ETH-USDT-SWAP")
	require.NoError(t, err)
	require.NotNil(t, sig)

	sig, err = db.GetActiveSignalForSymbol("SOL-USDT-SWAP")
	require.NoError(t, err)
	assert.Nil(t, sig, "no row is not an error")
}

func TestWatchlistLifecycle(t *testing.T) {
	db := testDB(t)
	entry := &WatchlistEntry{
		Symbol: "BTC-USDT-SWAP", Direction: "LONG",
		PotentialEntry: 100, PotentialSL: 99, PotentialTP: 104,
		MaxWatchCandles: 12, StoredContext: `{"version":1}`,
	}
	require.NoError(t, db.AddToWatchlist(entry))

	has, err := db.HasWatching("BTC-USDT-SWAP", "LONG")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = db.HasWatching("BTC-USDT-SWAP", "SHORT")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, db.UpdateWatchlistItem(entry.ID, 3, 1700000000))
	items, err := db.GetWatchingItems()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].CandlesWatched)
	assert.EqualValues(t, 1700000000, items[0].Last5mCandleTS)

	require.NoError(t, db.ExpireWatchlistItem(entry.ID, "Timeout, trigger gelmedi"))
	items, err = db.GetWatchingItems()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestOptimizerStateRoundTrip(t *testing.T) {
	db := testDB(t)

	state, err := db.GetOptimizerState()
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, db.SaveOptimizerState(&OptimizerState{
		LastRunWR: 52.5, LastRunTrades: 40, LastRunChanges: `[{"param":"min_rr_ratio","old":2,"new":2.2}]`,
	}))
	state, err = db.GetOptimizerState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 52.5, state.LastRunWR)

	require.NoError(t, db.ClearOptimizerState())
	state, err = db.GetOptimizerState()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestPerformanceSummaryAndComponents(t *testing.T) {
	db := testDB(t)
	seed := func(status string, pnl float64, components string) {
		sig := activeSignal("X-USDT-SWAP")
		sig.Components = components
		require.NoError(t, db.AddSignal(sig))
		require.NoError(t, db.UpdateSignalStatus(sig.ID, status, 100+pnl, pnl, "test"))
	}
	seed(StatusWon, 2, "SWEEP_REJECTION,HTF_BIAS")
	seed(StatusWon, 3, "SWEEP_REJECTION,HTF_BIAS")
	seed(StatusLost, -1, "MSS,HTF_BIAS")
	seed(StatusCancelled, 0, "MSS")

	s, err := db.GetPerformanceSummary(50)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.Cancelled)
	assert.InDelta(t, 2.0/3.0, s.WinRate, 1e-9, "cancelled excluded from win rate")
	assert.InDelta(t, 2.5, s.AvgWinPct, 1e-9)
	assert.InDelta(t, 1.0, s.AvgLossPct, 1e-9)

	comps, err := db.GetComponentPerformance(50)
	require.NoError(t, err)
	assert.Equal(t, 1.0, comps["SWEEP_REJECTION"].WinRate)
	assert.Equal(t, 0.0, comps["MSS"].WinRate, "cancelled trade not attributed")
	assert.Equal(t, 1, comps["MSS"].Total)
	assert.InDelta(t, 2.0/3.0, comps["HTF_BIAS"].WinRate, 1e-9)
}
