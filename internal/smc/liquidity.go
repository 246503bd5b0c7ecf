package smc

type PoolSide string

const (
	PoolBSL PoolSide = "BSL" // buy-side liquidity, stops above highs
	PoolSSL PoolSide = "SSL" // sell-side liquidity, stops below lows
)

type PoolType string

const (
	PoolEQH       PoolType = "EQH"
	PoolEQL       PoolType = "EQL"
	PoolSwingHigh PoolType = "SWING_HIGH"
	PoolSwingLow  PoolType = "SWING_LOW"
)

// LiquidityPool is a resting-stop cluster at a swing level. Swept pools stay
// visible but are deprioritised as targets.
type LiquidityPool struct {
	Price    float64
	Side     PoolSide
	Type     PoolType
	Strength int // number of swings at the level
	Swept    bool
}

// FindLiquidityPools builds BSL pools from swing highs above price and SSL
// pools from swing lows below price. Swings within tolerance of each other
// collapse into one EQH/EQL pool; a level is swept once a later candle trades
// through it by more than the tolerance.
func FindLiquidityPools(candles []Candle, highs, lows []Swing, price, tolerance float64) []LiquidityPool {
	var pools []LiquidityPool

	for i, s := range highs {
		if s.Price <= price || covered(pools, s.Price, tolerance) {
			continue
		}
		touches := 1
		for j, other := range highs {
			if j != i && withinTolerance(s.Price, other.Price, tolerance) {
				touches++
			}
		}
		p := LiquidityPool{Price: s.Price, Side: PoolBSL, Type: PoolSwingHigh, Strength: touches}
		if touches >= 2 {
			p.Type = PoolEQH
		}
		for j := s.Index + 1; j < len(candles); j++ {
			if candles[j].High > s.Price*(1+tolerance) {
				p.Swept = true
				break
			}
		}
		pools = append(pools, p)
	}

	for i, s := range lows {
		if s.Price >= price || covered(pools, s.Price, tolerance) {
			continue
		}
		touches := 1
		for j, other := range lows {
			if j != i && withinTolerance(s.Price, other.Price, tolerance) {
				touches++
			}
		}
		p := LiquidityPool{Price: s.Price, Side: PoolSSL, Type: PoolSwingLow, Strength: touches}
		if touches >= 2 {
			p.Type = PoolEQL
		}
		for j := s.Index + 1; j < len(candles); j++ {
			if candles[j].Low < s.Price*(1-tolerance) {
				p.Swept = true
				break
			}
		}
		pools = append(pools, p)
	}

	return pools
}

// NearestUnswept returns the closest unswept BSL above price and SSL below
// price; either may be nil.
func NearestUnswept(pools []LiquidityPool, price float64) (bsl, ssl *LiquidityPool) {
	for i := range pools {
		p := &pools[i]
		if p.Swept {
			continue
		}
		switch {
		case p.Side == PoolBSL && p.Price > price:
			if bsl == nil || p.Price < bsl.Price {
				bsl = p
			}
		case p.Side == PoolSSL && p.Price < price:
			if ssl == nil || p.Price > ssl.Price {
				ssl = p
			}
		}
	}
	return bsl, ssl
}

func withinTolerance(a, b, tolerance float64) bool {
	if a <= 0 {
		return false
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff/a <= tolerance
}

func covered(pools []LiquidityPool, price, tolerance float64) bool {
	for _, p := range pools {
		if withinTolerance(p.Price, price, tolerance) {
			return true
		}
	}
	return false
}
