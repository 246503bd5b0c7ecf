package strategy

import (
	"math"
	"sort"

	"github.com/smclabs/ictbot/internal/params"
	"github.com/smclabs/ictbot/internal/smc"
)

// zone is an internal POI candidate before levels are derived.
type zone struct {
	high, low float64
	source    string
}

func (z zone) ce() float64 { return (z.high + z.low) / 2 }

func (z zone) overlaps(o zone) bool { return z.low <= o.high && o.low <= z.high }

// discoverPOIs enumerates candidate entry zones on the 15m frame, aligned
// with the narrative bias, and ranks them. Zones farther than
// poi_max_distance_pct from price are not tradable and are dropped.
func (e *Engine) discoverPOIs(m15 []smc.Candle, price float64, bias smc.Bias, p params.Snapshot) []POI {
	highs, lows := smc.DetectSwings(m15, p.SwingLookback)
	obs := smc.FindOrderBlocks(m15, p.OBBodyRatioMin, p.OBMaxAgeCandles)
	fvgs := smc.FindFVGs(m15, p.FVGMinSizePct, p.FVGMaxAgeCandles)
	pools := smc.FindLiquidityPools(m15, highs, lows, price, p.LiquidityEqualTolerance)
	dr, hasRange := smc.ComputeDealingRange(highs, lows, price, bias)

	var zones []zone
	for _, ob := range obs {
		if ob.Kind == bias && onBiasSide(ob.CE, price, bias) {
			zones = append(zones, zone{high: ob.High, low: ob.Low, source: "OB"})
		}
	}
	for _, fvg := range fvgs {
		if fvg.Kind == bias && onBiasSide(fvg.CE, price, bias) {
			zones = append(zones, zone{high: fvg.High, low: fvg.Low, source: "FVG"})
		}
	}
	if len(zones) == 0 {
		return nil
	}

	var pois []POI
	for i, z := range zones {
		if z.high <= z.low {
			continue // zero-width zone, nothing to trade
		}
		poi := POI{
			Bias:     bias,
			Entry:    z.ce(),
			ZoneHigh: z.high,
			ZoneLow:  z.low,
			Sources:  []string{z.source},
		}
		for j, other := range zones {
			if j != i && z.overlaps(other) {
				poi.ConfluenceCount++
				poi.Sources = append(poi.Sources, other.source)
			}
		}
		for _, pool := range pools {
			if pool.Price >= z.low && pool.Price <= z.high {
				poi.ConfluenceCount++
				poi.Sources = append(poi.Sources, "LIQ_"+string(pool.Type))
			}
		}

		// SL past the zone extreme with a 20%-of-height buffer, then forced
		// into the policy distance band.
		buffer := 0.2 * (z.high - z.low)
		if bias == smc.BiasLong {
			poi.SL = z.low - buffer
		} else {
			poi.SL = z.high + buffer
		}
		poi.SL = e.clampSL(poi.Entry, poi.SL, bias)

		poi.TP = targetFromLiquidity(pools, poi.Entry, bias)
		poi.Obstacles, poi.HasObstacle = e.scanObstacles(m15, poi.Entry, poi.TP, bias, p)
		if poi.HasObstacle {
			poi.TP = pullTPInside(poi.Entry, poi.TP, poi.Obstacles, bias)
		}
		poi.RR = riskReward(poi.Entry, poi.SL, poi.TP)

		if price > 0 {
			poi.DistancePct = math.Abs(price-poi.Entry) / price
		}
		if poi.DistancePct > p.POIMaxDistancePct {
			continue
		}
		if hasRange {
			poi.PDZone = dr.Zone
			poi.InOTE = dr.InOTE(poi.Entry)
			entryPos := positionInRange(dr, poi.Entry)
			if bias == smc.BiasLong {
				poi.InCorrectZone = entryPos < 50
			} else {
				poi.InCorrectZone = entryPos > 50
			}
		}
		pois = append(pois, poi)
	}

	minRR := p.MinRRRatio
	sort.SliceStable(pois, func(i, j int) bool {
		iOK, jOK := pois[i].RR >= minRR, pois[j].RR >= minRR
		if iOK != jOK {
			return iOK
		}
		if pois[i].ConfluenceCount != pois[j].ConfluenceCount {
			return pois[i].ConfluenceCount > pois[j].ConfluenceCount
		}
		return pois[i].DistancePct < pois[j].DistancePct
	})
	return pois
}

func onBiasSide(level, price float64, bias smc.Bias) bool {
	if bias == smc.BiasLong {
		return level <= price
	}
	return level >= price
}

func positionInRange(dr smc.DealingRange, price float64) float64 {
	span := dr.High - dr.Low
	if span <= 0 {
		return 50
	}
	return (price - dr.Low) / span * 100
}

// targetFromLiquidity picks the nearest unswept opposing pool, or a flat 2%
// objective when the book is clean.
func targetFromLiquidity(pools []smc.LiquidityPool, entry float64, bias smc.Bias) float64 {
	bsl, ssl := smc.NearestUnswept(pools, entry)
	if bias == smc.BiasLong {
		if bsl != nil {
			return bsl.Price
		}
		return entry * 1.02
	}
	if ssl != nil {
		return ssl.Price
	}
	return entry * 0.98
}

// scanObstacles collects opposing unmitigated zones and round-number levels
// between entry and TP.
func (e *Engine) scanObstacles(m15 []smc.Candle, entry, tp float64, bias smc.Bias, p params.Snapshot) ([]Obstacle, bool) {
	lo, hi := math.Min(entry, tp), math.Max(entry, tp)
	opposing := smc.BiasShort
	if bias == smc.BiasShort {
		opposing = smc.BiasLong
	}

	var obstacles []Obstacle
	for _, ob := range smc.FindOrderBlocks(m15, p.OBBodyRatioMin, p.OBMaxAgeCandles) {
		if ob.Kind == opposing && ob.CE > lo && ob.CE < hi {
			obstacles = append(obstacles, Obstacle{Price: ob.CE, Kind: "OB"})
		}
	}
	for _, fvg := range smc.FindFVGs(m15, p.FVGMinSizePct, p.FVGMaxAgeCandles) {
		if fvg.Kind == opposing && fvg.CE > lo && fvg.CE < hi {
			obstacles = append(obstacles, Obstacle{Price: fvg.CE, Kind: "FVG"})
		}
	}
	for _, r := range roundLevelsBetween(entry, tp) {
		obstacles = append(obstacles, Obstacle{Price: r, Kind: "ROUND"})
	}

	// an obstacle only matters when it sits early in the path
	span := tp - entry
	hasEarly := false
	for _, o := range obstacles {
		if frac := (o.Price - entry) / span; frac > 0 && frac <= 0.30 {
			hasEarly = true
			break
		}
	}
	return obstacles, hasEarly
}

// pullTPInside moves TP to just inside the closest obstacle, keeping a 2%
// cushion of the entry→obstacle distance.
func pullTPInside(entry, tp float64, obstacles []Obstacle, bias smc.Bias) float64 {
	span := tp - entry
	closest := tp
	closestFrac := math.Inf(1)
	for _, o := range obstacles {
		if frac := (o.Price - entry) / span; frac > 0 && frac < closestFrac {
			closest = o.Price
			closestFrac = frac
		}
	}
	if math.IsInf(closestFrac, 1) {
		return tp
	}
	return entry + 0.98*(closest-entry)
}

// roundLevelsBetween returns the psychological round-number levels strictly
// between a and b. Step size follows price magnitude.
func roundLevelsBetween(a, b float64) []float64 {
	lo, hi := math.Min(a, b), math.Max(a, b)
	step := roundStep(hi)
	if step <= 0 {
		return nil
	}
	var out []float64
	first := math.Ceil(lo/step) * step
	for lvl := first; lvl < hi && len(out) < 5; lvl += step {
		if lvl > lo {
			out = append(out, lvl)
		}
	}
	return out
}

func roundStep(price float64) float64 {
	switch {
	case price >= 20000:
		return 1000
	case price >= 10000:
		return 500
	case price >= 1000:
		return 100
	case price >= 100:
		return 50
	case price >= 10:
		return 5
	case price >= 1:
		return 0.5
	default:
		return 0.05
	}
}
