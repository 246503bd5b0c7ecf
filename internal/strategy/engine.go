package strategy

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/smclabs/ictbot/internal/market"
	"github.com/smclabs/ictbot/internal/params"
	"github.com/smclabs/ictbot/internal/smc"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DETECTION ENGINE - Narrative → POI → Trigger, one Decision per call
// ═══════════════════════════════════════════════════════════════════════════════

// Engine composes the structural primitives into the three-layer pipeline.
// It is stateless: everything it needs arrives per call, so a fixed bundle
// and snapshot always produce the same Decision.
type Engine struct {
	minSLDistancePct float64
	maxSLDistancePct float64
}

// New creates an engine with the portfolio's SL distance policy.
func New(minSLDistancePct, maxSLDistancePct float64) *Engine {
	return &Engine{
		minSLDistancePct: minSLDistancePct,
		maxSLDistancePct: maxSLDistancePct,
	}
}

const (
	atrPeriod       = 14
	sweepMaxBack    = 6
	triggerMaxBack  = 4
	watchProximity  = 0.025
	sniperProximity = 0.030
)

// Generate runs the full pipeline for one symbol.
func (e *Engine) Generate(symbol string, bundle *market.MultiTimeframe, price float64, p params.Snapshot) Decision {
	if price <= 0 || len(bundle.M15) < 50 {
		return none("insufficient data")
	}

	// Layer 1 — narrative
	nar := e.buildNarrative(bundle.H4, bundle.H1, p)
	if nar == nil {
		return none("no HTF narrative")
	}

	// Layer 2 — POI discovery on 15m
	pois := e.discoverPOIs(bundle.M15, price, nar.Bias, p)
	if len(pois) == 0 {
		return none("no valid POI")
	}
	top := &pois[0]

	// volatility gate: a 3×ATR candle means news, not structure
	if atr := smc.ATR(bundle.M15, atrPeriod); atr > 0 && bundle.M15[len(bundle.M15)-1].Range() > 3*atr {
		return none("volatile candle")
	}

	// Layer 3 — trigger at the top POI
	trig := e.checkTrigger(bundle.M15, top, nar, price, p, p.POIMaxDistancePct, "15m")
	if trig == nil {
		if top.DistancePct <= p.POIMaxDistancePct {
			return Decision{
				Action: ActionWatch,
				Reason: "POI yakın, trigger bekleniyor",
				Watch: &Watch{
					Symbol:    symbol,
					Direction: nar.Bias,
					Entry:     top.Entry,
					SL:        top.SL,
					TP:        top.TP,
					RR:        top.RR,
					Reason:    "POI yakın, trigger bekleniyor",
					Narrative: nar,
					POI:       top,
				},
			}
		}
		return none("no trigger")
	}

	// Overextension: price already ran on 1h, entering now chases the move.
	if overextended(bundle.H1, nar.Bias) {
		log.Debug().Str("symbol", symbol).Msg("Trigger demoted, 1H overextended")
		return Decision{
			Action: ActionWatch,
			Reason: "1H overextended",
			Watch: &Watch{
				Symbol:    symbol,
				Direction: nar.Bias,
				Entry:     trig.Entry,
				SL:        trig.SL,
				TP:        trig.TP,
				RR:        trig.RR,
				Reason:    "1H overextended",
				Narrative: nar,
				POI:       top,
			},
		}
	}

	// Weak-bias decisions must clear the 4h book first.
	if nar.Timeframe == "1h" && blockedBy4hObstacle(bundle.H4, nar.Bias, trig.Entry, trig.TP, p) {
		return none("4h obstacle in path")
	}

	trig.Symbol = symbol
	trig.Narrative = nar
	trig.POI = top
	return Decision{Action: ActionSignal, Signal: trig}
}

// buildNarrative reads 4h structure, falling back to 1h at WEAK quality when
// the 4h is undecided.
func (e *Engine) buildNarrative(h4, h1 []smc.Candle, p params.Snapshot) *Narrative {
	if st := frameStructure(h4, p); st.Bias != smc.BiasNeutral {
		return &Narrative{Bias: st.Bias, Quality: st.Quality, CHoCH: st.CHoCH, Timeframe: "4h"}
	}
	if st := frameStructure(h1, p); st.Bias != smc.BiasNeutral {
		return &Narrative{Bias: st.Bias, Quality: smc.QualityWeak, CHoCH: st.CHoCH, Timeframe: "1h"}
	}
	return nil
}

func frameStructure(candles []smc.Candle, p params.Snapshot) smc.Structure {
	highs, lows := smc.DetectSwings(candles, p.SwingLookback)
	return smc.AnalyzeStructure(highs, lows, p.BOSMinDisplacement)
}

// overextended reports whether the last 6 candles of the 1h frame are a
// one-way move with no meaningful pullback.
func overextended(h1 []smc.Candle, bias smc.Bias) bool {
	if len(h1) < atrPeriod+7 {
		return false
	}
	atr := smc.ATR(h1[:len(h1)-6], atrPeriod)
	if atr <= 0 {
		return false
	}
	last6 := h1[len(h1)-6:]

	inBias := 0
	pullback := false
	for _, c := range last6 {
		if (bias == smc.BiasLong && c.Bullish()) || (bias == smc.BiasShort && c.Bearish()) {
			inBias++
		} else if c.Range() >= 0.4*atr {
			pullback = true
		}
	}
	move := math.Abs(last6[5].Close - last6[0].Open)
	return inBias >= 5 && move >= 3*atr && !pullback
}

// blockedBy4hObstacle scans the 4h frame for opposing unmitigated zones
// sitting in the first 60% of the entry→TP path.
func blockedBy4hObstacle(h4 []smc.Candle, bias smc.Bias, entry, tp float64, p params.Snapshot) bool {
	if len(h4) == 0 {
		return false
	}
	limit := entry + 0.6*(tp-entry)
	lo, hi := math.Min(entry, limit), math.Max(entry, limit)
	opposing := smc.BiasShort
	if bias == smc.BiasShort {
		opposing = smc.BiasLong
	}
	for _, ob := range smc.FindOrderBlocks(h4, p.OBBodyRatioMin, p.OBMaxAgeCandles) {
		if ob.Kind == opposing && ob.Low <= hi && ob.High >= lo {
			return true
		}
	}
	for _, fvg := range smc.FindFVGs(h4, p.FVGMinSizePct, p.FVGMaxAgeCandles) {
		if fvg.Kind == opposing && fvg.Low <= hi && fvg.High >= lo {
			return true
		}
	}
	return false
}

// clampSL forces the stop inside the [min, max] distance band, re-deriving
// it from entry when outside.
func (e *Engine) clampSL(entry, sl float64, bias smc.Bias) float64 {
	if entry <= 0 {
		return sl
	}
	dist := math.Abs(entry-sl) / entry
	if dist >= e.minSLDistancePct && dist <= e.maxSLDistancePct {
		return sl
	}
	target := e.minSLDistancePct
	if dist > e.maxSLDistancePct {
		target = e.maxSLDistancePct
	}
	if bias == smc.BiasLong {
		return entry * (1 - target)
	}
	return entry * (1 + target)
}

func riskReward(entry, sl, tp float64) float64 {
	risk := math.Abs(entry - sl)
	if risk <= 0 {
		return 0
	}
	return math.Abs(tp-entry) / risk
}
