package market

import (
	"fmt"
	"time"

	"github.com/smclabs/ictbot/internal/okx"
	"github.com/smclabs/ictbot/internal/smc"
)

// okxBars maps engine timeframes to OKX bar names.
var okxBars = map[string]string{
	"5m":  "5m",
	"15m": "15m",
	"1h":  "1H",
	"4h":  "4H",
}

// Candle counts per timeframe for the multi-timeframe bundle.
const (
	candles15m = 200
	candles1h  = 120
	candles4h  = 120
	candles5m  = 100
)

// Feed adapts the OKX client to what the engine consumes: float64 OHLCV
// frames, oldest-first, closed candles only. The websocket stream, when
// present, serves last prices without a REST round-trip.
type Feed struct {
	client *okx.Client
	stream *okx.TickerStream
}

func NewFeed(client *okx.Client, stream *okx.TickerStream) *Feed {
	return &Feed{client: client, stream: stream}
}

// GetCandles returns up to n closed candles for (symbol, timeframe).
func (f *Feed) GetCandles(symbol, timeframe string, n int) ([]smc.Candle, error) {
	bar, ok := okxBars[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	raw, err := f.client.GetCandles(symbol, bar, n)
	if err != nil {
		return nil, err
	}
	candles := make([]smc.Candle, 0, len(raw))
	for _, r := range raw {
		o, _ := r.Open.Float64()
		h, _ := r.High.Float64()
		l, _ := r.Low.Float64()
		c, _ := r.Close.Float64()
		v, _ := r.Volume.Float64()
		candles = append(candles, smc.Candle{
			Time:   time.UnixMilli(r.TS).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: v,
		})
	}
	return smc.SortFrame(candles), nil
}

// MultiTimeframe is the candle bundle one detection pass consumes.
type MultiTimeframe struct {
	M5  []smc.Candle
	M15 []smc.Candle
	H1  []smc.Candle
	H4  []smc.Candle
}

// GetMultiTimeframe fetches all four frames for a symbol. 15m is mandatory;
// the others degrade to empty on fetch failure.
func (f *Feed) GetMultiTimeframe(symbol string) (*MultiTimeframe, error) {
	m15, err := f.GetCandles(symbol, "15m", candles15m)
	if err != nil {
		return nil, fmt.Errorf("fetch 15m %s: %w", symbol, err)
	}
	bundle := &MultiTimeframe{M15: m15}
	bundle.H1, _ = f.GetCandles(symbol, "1h", candles1h)
	bundle.H4, _ = f.GetCandles(symbol, "4h", candles4h)
	bundle.M5, _ = f.GetCandles(symbol, "5m", candles5m)
	return bundle, nil
}

// GetTicker returns the last traded price. Streamed prices younger than 10s
// win; otherwise REST.
func (f *Feed) GetTicker(symbol string) (float64, error) {
	if f.stream != nil {
		if last, at, ok := f.stream.Last(symbol); ok && time.Since(at) < 10*time.Second {
			price, _ := last.Float64()
			if price > 0 {
				return price, nil
			}
		}
	}
	t, err := f.client.GetTicker(symbol)
	if err != nil {
		return 0, err
	}
	price, _ := t.Last.Float64()
	if price <= 0 {
		return 0, fmt.Errorf("ticker %s: no price", symbol)
	}
	return price, nil
}

// GetFundingRate returns the current funding rate as a fraction.
func (f *Feed) GetFundingRate(symbol string) (float64, error) {
	rate, err := f.client.GetFundingRate(symbol)
	if err != nil {
		return 0, err
	}
	v, _ := rate.Float64()
	return v, nil
}

// GetOpenInterest returns current open interest in contracts.
func (f *Feed) GetOpenInterest(symbol string) (float64, error) {
	oi, err := f.client.GetOpenInterest(symbol)
	if err != nil {
		return 0, err
	}
	v, _ := oi.Float64()
	return v, nil
}
