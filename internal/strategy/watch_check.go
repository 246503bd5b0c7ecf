package strategy

import (
	"github.com/smclabs/ictbot/internal/params"
	"github.com/smclabs/ictbot/internal/smc"
)

// invalidationPct is how far beyond the zone two consecutive 15m closes must
// sit before the POI is considered broken.
const invalidationPct = 0.012

// WatchCheckResult is the outcome of one watchlist re-check.
type WatchCheckResult struct {
	Invalidated bool
	Reason      string
	Signal      *Signal
}

// CheckTriggerForWatch is the lightweight re-check path: it reuses the
// stored narrative and POI, tests invalidation, then runs only the layer-3
// trigger check with widened proximity. When the 15m stays quiet but the 5m
// frame has been working the zone, a sniper-grade 5m trigger may fire.
func (e *Engine) CheckTriggerForWatch(ctx *StoredContext, m15, m5 []smc.Candle, price float64, p params.Snapshot) WatchCheckResult {
	poi := ctx.POI
	nar := ctx.Narrative

	if len(m15) >= 2 {
		c1 := m15[len(m15)-2].Close
		c2 := m15[len(m15)-1].Close
		if poi.Bias == smc.BiasLong {
			breach := poi.ZoneLow * (1 - invalidationPct)
			if c1 < breach && c2 < breach {
				return WatchCheckResult{Invalidated: true, Reason: "POI aşağı kırıldı"}
			}
		} else {
			breach := poi.ZoneHigh * (1 + invalidationPct)
			if c1 > breach && c2 > breach {
				return WatchCheckResult{Invalidated: true, Reason: "POI yukarı kırıldı"}
			}
		}
	}

	if sig := e.checkTrigger(m15, &poi, &nar, price, p, watchProximity, "15m"); sig != nil {
		return WatchCheckResult{Signal: sig}
	}

	if len(m5) >= 12 && zoneTouched(m5[len(m5)-12:], poi) {
		if sig := e.checkTrigger(m5, &poi, &nar, price, p, sniperProximity, "5m"); sig != nil {
			sig.Quality = "SNIPER"
			return WatchCheckResult{Signal: sig}
		}
	}

	return WatchCheckResult{}
}

func zoneTouched(candles []smc.Candle, poi POI) bool {
	for _, c := range candles {
		if c.Low <= poi.ZoneHigh && c.High >= poi.ZoneLow {
			return true
		}
	}
	return false
}
