package smc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// ohlc builds a frame from {open, high, low, close} rows, 15m apart,
// volume 1000 unless overridden later.
func ohlc(rows ...[4]float64) []Candle {
	out := make([]Candle, len(rows))
	for i, r := range rows {
		out[i] = Candle{
			Time:   t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:   r[0],
			High:   r[1],
			Low:    r[2],
			Close:  r[3],
			Volume: 1000,
		}
	}
	return out
}

// flat returns n doji-ish candles around price p.
func flat(n int, p float64) []Candle {
	rows := make([][4]float64, n)
	for i := range rows {
		rows[i] = [4]float64{p, p + 0.1, p - 0.1, p + 0.02}
	}
	return ohlc(rows...)
}

func TestSortFrameOrdersAndDedupes(t *testing.T) {
	candles := ohlc([4]float64{1, 2, 0.5, 1.5}, [4]float64{1.5, 2.5, 1, 2}, [4]float64{2, 3, 1.5, 2.5})
	shuffled := []Candle{candles[2], candles[0], candles[1], candles[1]}

	sorted := SortFrame(shuffled)
	require.Len(t, sorted, 3)
	assert.True(t, sorted[0].Time.Before(sorted[1].Time))
	assert.True(t, sorted[1].Time.Before(sorted[2].Time))
}

func TestATR(t *testing.T) {
	candles := ohlc(
		[4]float64{9.2, 10, 9, 9.5},
		[4]float64{10, 11, 10, 10.5},
		[4]float64{11, 12, 11, 11.5},
		[4]float64{11.8, 12.5, 11.5, 12},
	)
	assert.InDelta(t, 4.0/3.0, ATR(candles, 3), 1e-9)
	assert.Zero(t, ATR(candles, 4), "frame shorter than period+1")
	assert.Zero(t, ATR(nil, 14))
}

func TestDetectSwingsMajor(t *testing.T) {
	// clean peak at index 3, trough at index 8
	candles := ohlc(
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 102, 100, 101},
		[4]float64{101, 103, 101, 102},
		[4]float64{102, 105, 102, 104}, // swing high
		[4]float64{104, 104, 101, 102},
		[4]float64{102, 103, 100, 101},
		[4]float64{101, 102, 99, 100},
		[4]float64{100, 101, 98, 99},
		[4]float64{99, 100, 96, 97}, // swing low
		[4]float64{97, 101, 97, 100},
		[4]float64{100, 102, 99, 101},
		[4]float64{101, 103, 100, 102},
	)
	highs, lows := DetectSwings(candles, 2)
	require.NotEmpty(t, highs)
	assert.Equal(t, 3, highs[0].Index)
	assert.Equal(t, 105.0, highs[0].Price)
	assert.Equal(t, FractalMajor, highs[0].Fractal)

	require.NotEmpty(t, lows)
	found := false
	for _, l := range lows {
		if l.Index == 8 {
			found = true
			assert.Equal(t, 96.0, l.Price)
		}
	}
	assert.True(t, found, "trough at index 8 should be a swing low")
}

func TestDetectSwingsInternalFallback(t *testing.T) {
	// monotone grind: no 2-sided major highs besides noise, fallback kicks in
	rows := make([][4]float64, 12)
	p := 100.0
	for i := range rows {
		bump := 0.0
		if i%3 == 1 {
			bump = 0.6 // small local peaks every 3rd candle
		}
		rows[i] = [4]float64{p, p + 0.3 + bump, p - 0.3, p + 0.1}
		p += 0.1
	}
	highs, _ := DetectSwings(ohlc(rows...), 5)
	require.GreaterOrEqual(t, len(highs), 2)
	for _, h := range highs {
		assert.Equal(t, FractalInternal, h.Fractal)
	}
}

func TestAnalyzeStructureUptrend(t *testing.T) {
	highs := []Swing{{Index: 2, Price: 100, Kind: SwingHigh}, {Index: 6, Price: 105, Kind: SwingHigh}, {Index: 10, Price: 110, Kind: SwingHigh}}
	lows := []Swing{{Index: 4, Price: 95, Kind: SwingLow}, {Index: 8, Price: 101, Kind: SwingLow}, {Index: 12, Price: 103, Kind: SwingLow}}

	st := AnalyzeStructure(highs, lows, 0.003)
	assert.Equal(t, BiasLong, st.Bias)
	assert.Equal(t, QualityStrong, st.Quality)
	assert.False(t, st.CHoCH)
	assert.Equal(t, 110.0, st.LastSwingHigh)
	assert.Equal(t, 103.0, st.LastSwingLow)
}

func TestAnalyzeStructureCHoCHDegradesQuality(t *testing.T) {
	highs := []Swing{{Index: 2, Price: 100, Kind: SwingHigh}, {Index: 6, Price: 105, Kind: SwingHigh}, {Index: 10, Price: 110, Kind: SwingHigh}}
	lows := []Swing{{Index: 4, Price: 95, Kind: SwingLow}, {Index: 8, Price: 101, Kind: SwingLow}, {Index: 12, Price: 99, Kind: SwingLow}}

	st := AnalyzeStructure(highs, lows, 0.003)
	assert.Equal(t, BiasLong, st.Bias, "CHoCH must not flip bias")
	assert.True(t, st.CHoCH)
	assert.Equal(t, QualityWeak, st.Quality)
}

func TestAnalyzeStructureNeutral(t *testing.T) {
	highs := []Swing{{Index: 2, Price: 100, Kind: SwingHigh}, {Index: 6, Price: 100.5, Kind: SwingHigh}}
	lows := []Swing{{Index: 4, Price: 95, Kind: SwingLow}, {Index: 8, Price: 94.5, Kind: SwingLow}}
	st := AnalyzeStructure(highs, lows, 0.003)
	assert.Equal(t, BiasNeutral, st.Bias)
}

func TestAnalyzeStructureDisplacementGate(t *testing.T) {
	// higher highs of ~0.2% each: real breaks at a loose threshold, noise at
	// a tight one
	highs := []Swing{{Index: 2, Price: 100, Kind: SwingHigh}, {Index: 6, Price: 100.2, Kind: SwingHigh}, {Index: 10, Price: 100.4, Kind: SwingHigh}}
	lows := []Swing{{Index: 4, Price: 99, Kind: SwingLow}, {Index: 8, Price: 99.5, Kind: SwingLow}}

	st := AnalyzeStructure(highs, lows, 0.001)
	assert.Equal(t, BiasLong, st.Bias)
	assert.Equal(t, QualityStrong, st.Quality)

	st = AnalyzeStructure(highs, lows, 0.006)
	assert.Equal(t, BiasNeutral, st.Bias, "sub-threshold pokes are not breaks")
}

func TestAnalyzeStructureCHoCHRespectsDisplacement(t *testing.T) {
	highs := []Swing{{Index: 2, Price: 100, Kind: SwingHigh}, {Index: 6, Price: 105, Kind: SwingHigh}, {Index: 10, Price: 110, Kind: SwingHigh}}
	// last low undercuts the prior one by only 0.1%
	lows := []Swing{{Index: 4, Price: 95, Kind: SwingLow}, {Index: 8, Price: 101, Kind: SwingLow}, {Index: 12, Price: 100.9, Kind: SwingLow}}

	st := AnalyzeStructure(highs, lows, 0.003)
	assert.Equal(t, BiasLong, st.Bias)
	assert.False(t, st.CHoCH, "marginal undercut is a sweep, not a CHoCH")
	assert.Equal(t, QualityStrong, st.Quality)
}

func TestFindOrderBlocksBullish(t *testing.T) {
	candles := ohlc(
		[4]float64{100, 100.5, 99.8, 100.2},
		[4]float64{101, 101.5, 99.5, 100},   // bearish OB candle, body 1 / range 2
		[4]float64{100, 102.6, 99.9, 102.5}, // displacement closes above OB high
		[4]float64{102.5, 103, 102, 102.8},
		[4]float64{102.8, 103.5, 102.3, 103.2},
	)
	obs := FindOrderBlocks(candles, 0.40, 30)
	require.Len(t, obs, 1)
	ob := obs[0]
	assert.Equal(t, BiasLong, ob.Kind)
	assert.Equal(t, 1, ob.Index)
	assert.Equal(t, 101.5, ob.High)
	assert.Equal(t, 99.5, ob.Low)
	assert.InDelta(t, 100.5, ob.CE, 1e-9)
	assert.InDelta(t, 0.5, ob.Strength, 1e-9)
}

func TestFindOrderBlocksMitigated(t *testing.T) {
	candles := ohlc(
		[4]float64{101, 101.5, 99.5, 100},
		[4]float64{100, 102.6, 99.9, 102.5},
		[4]float64{102.5, 103, 99.0, 99.3}, // closes back through the OB low
	)
	assert.Empty(t, FindOrderBlocks(candles, 0.40, 30))
}

func TestFindOrderBlocksWickDoesNotMitigate(t *testing.T) {
	candles := ohlc(
		[4]float64{101, 101.5, 99.5, 100},
		[4]float64{100, 102.6, 99.9, 102.5},
		[4]float64{102.5, 103, 99.4, 102.8}, // sweeps the OB low but closes above
	)
	obs := FindOrderBlocks(candles, 0.40, 30)
	require.Len(t, obs, 1)
	assert.False(t, obs[0].Mitigated)
}

func TestFindFVGs(t *testing.T) {
	candles := ohlc(
		[4]float64{99.5, 100, 99, 99.8},
		[4]float64{99.8, 105.5, 99.7, 105}, // impulse
		[4]float64{104, 106, 101, 105.5},   // low 101 > prior high 100 → gap
		[4]float64{105, 106, 103, 104},
	)
	gaps := FindFVGs(candles, 0.001, 20)
	require.Len(t, gaps, 1)
	g := gaps[0]
	assert.Equal(t, BiasLong, g.Kind)
	assert.Equal(t, 101.0, g.High)
	assert.Equal(t, 100.0, g.Low)
	assert.Equal(t, FVGFresh, g.State)
	assert.InDelta(t, 1.0/105.0, g.SizePct, 1e-9)
}

func TestFindFVGsFillStates(t *testing.T) {
	base := [][4]float64{
		{99.5, 100, 99, 99.8},
		{99.8, 105.5, 99.7, 105},
		{104, 106, 101, 105.5},
	}

	partial := append(base, [4]float64{105, 105.5, 100.5, 104})
	gaps := FindFVGs(ohlc(partial...), 0.001, 20)
	require.Len(t, gaps, 1)
	assert.Equal(t, FVGPartial, gaps[0].State)

	full := append(base, [4]float64{105, 105.5, 99.9, 104})
	assert.Empty(t, FindFVGs(ohlc(full...), 0.001, 20), "fully filled gaps are dropped")
}

func TestFindLiquidityPools(t *testing.T) {
	candles := flat(20, 100)
	highs := []Swing{
		{Index: 3, Price: 110, Kind: SwingHigh},
		{Index: 9, Price: 110.05, Kind: SwingHigh},
	}
	lows := []Swing{{Index: 6, Price: 90, Kind: SwingLow}}

	pools := FindLiquidityPools(candles, highs, lows, 100, 0.001)
	require.Len(t, pools, 2)

	var eqh, ssl *LiquidityPool
	for i := range pools {
		switch pools[i].Side {
		case PoolBSL:
			eqh = &pools[i]
		case PoolSSL:
			ssl = &pools[i]
		}
	}
	require.NotNil(t, eqh)
	assert.Equal(t, PoolEQH, eqh.Type)
	assert.Equal(t, 2, eqh.Strength)
	assert.False(t, eqh.Swept)

	require.NotNil(t, ssl)
	assert.Equal(t, PoolSwingLow, ssl.Type)
}

func TestLiquiditySweptFlag(t *testing.T) {
	candles := flat(10, 100)
	candles[8].Low = 89.5 // trades through the 90 level by > tolerance
	lows := []Swing{{Index: 2, Price: 90, Kind: SwingLow}}

	pools := FindLiquidityPools(candles, nil, lows, 100, 0.001)
	require.Len(t, pools, 1)
	assert.True(t, pools[0].Swept)

	_, ssl := NearestUnswept(pools, 100)
	assert.Nil(t, ssl, "swept pools are not targets")
}

func TestComputeDealingRange(t *testing.T) {
	highs := []Swing{{Index: 5, Price: 110, Kind: SwingHigh}}
	lows := []Swing{{Index: 8, Price: 90, Kind: SwingLow}}

	dr, ok := ComputeDealingRange(highs, lows, 95, BiasLong)
	require.True(t, ok)
	assert.InDelta(t, 25, dr.PositionPct, 1e-9)
	assert.Equal(t, ZoneDeepDiscount, dr.Zone)
	assert.InDelta(t, 110-0.786*20, dr.OTELow, 1e-9)
	assert.InDelta(t, 110-0.618*20, dr.OTEHigh, 1e-9)
	assert.True(t, dr.InOTE(95))

	_, ok = ComputeDealingRange(highs, nil, 95, BiasLong)
	assert.False(t, ok)
}

func TestFindDisplacement(t *testing.T) {
	candles := flat(21, 100)
	candles = append(candles, ohlc(
		[4]float64{100, 101.1, 99.95, 101},
		[4]float64{101, 101.85, 100.95, 101.8},
	)...)
	candles[21].Volume = 1200
	candles[22].Volume = 1500

	cfg := DisplacementConfig{MinBodyRatio: 0.55, MinSizePct: 0.006, ATRMultiplier: 1.5, MaxBack: 4}
	d := FindDisplacement(candles, 1.0, cfg)
	require.NotNil(t, d)
	assert.Equal(t, BiasLong, d.Direction)
	assert.Equal(t, 22, d.EndIndex)
	assert.Equal(t, 2, d.Candles)
	assert.InDelta(t, 99.95, d.Extreme, 1e-9)
	assert.InDelta(t, 0.018, d.MovePct, 1e-4)
}

func TestFindDisplacementRejectsVolatileCandle(t *testing.T) {
	candles := flat(21, 100)
	// single candle with range 3.5 > 3×ATR
	candles = append(candles, ohlc([4]float64{100, 103.4, 99.9, 103.3})...)
	candles[21].Volume = 2000

	cfg := DisplacementConfig{MinBodyRatio: 0.55, MinSizePct: 0.006, ATRMultiplier: 1.5, MaxBack: 4}
	assert.Nil(t, FindDisplacement(candles, 1.0, cfg))
}

func TestFindDisplacementLowVolumeStart(t *testing.T) {
	candles := flat(21, 100)
	candles = append(candles, ohlc([4]float64{100, 101.9, 99.95, 101.8})...)
	candles[21].Volume = 500 // below 0.8 × 20-bar average

	cfg := DisplacementConfig{MinBodyRatio: 0.55, MinSizePct: 0.006, ATRMultiplier: 1.5, MaxBack: 4}
	assert.Nil(t, FindDisplacement(candles, 1.0, cfg))
}

func TestFindRecentSweepLong(t *testing.T) {
	candles := flat(9, 100.5)
	// last candle hunts stops under 100 then closes back above
	candles[8] = Candle{Time: candles[8].Time, Open: 100.2, High: 100.6, Low: 99.6, Close: 100.5, Volume: 1000}
	lows := []Swing{{Index: 2, Price: 100, Kind: SwingLow}}

	s := FindRecentSweep(candles, nil, lows, BiasLong, 6)
	require.NotNil(t, s)
	assert.Equal(t, 8, s.Index)
	assert.Equal(t, 100.0, s.Level)
	assert.Equal(t, 99.6, s.WickExtreme)
	assert.Greater(t, s.WickBodyRatio, 0.5)
}

func TestFindRecentSweepNeedsRejectionWick(t *testing.T) {
	candles := flat(9, 100.5)
	// pierces the level but closes near the low: no rejection
	candles[8] = Candle{Time: candles[8].Time, Open: 100.8, High: 100.9, Low: 99.6, Close: 99.7, Volume: 1000}
	lows := []Swing{{Index: 2, Price: 100, Kind: SwingLow}}
	assert.Nil(t, FindRecentSweep(candles, nil, lows, BiasLong, 6))
}

func TestFindMSS(t *testing.T) {
	candles := ohlc(
		[4]float64{100, 100.5, 99.5, 100},
		[4]float64{100, 101, 99.8, 100.5},
		[4]float64{100.5, 101.5, 100, 101},
		[4]float64{101, 102, 100.5, 101.5}, // micro swing high at 102
		[4]float64{101.5, 101.8, 100.8, 101},
		[4]float64{101, 101.5, 100.5, 101.2},
		[4]float64{101.2, 102.8, 101, 102.5}, // closes above 102
	)
	m := FindMSS(candles, BiasLong, 0, 4)
	require.NotNil(t, m)
	assert.Equal(t, 6, m.Index)
	assert.Equal(t, 102.0, m.Level)

	assert.Nil(t, FindMSS(candles, BiasShort, 0, 4))
}
