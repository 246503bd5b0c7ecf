package okx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OKX kline. Prices stay decimal at the wire boundary; the
// market feed converts to float64 for the engine.
type Candle struct {
	TS        int64 // open time, ms
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Confirmed bool
}

// Ticker is an OKX market ticker snapshot.
type Ticker struct {
	InstID      string
	Last        decimal.Decimal
	VolCcy24h   decimal.Decimal // 24h quote-currency volume
	TS          int64
}

// Client is a thin OKX v5 public REST client. No credentials: the bot only
// consumes market data.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := c.http.Get(u)
	if err != nil {
		return fmt.Errorf("okx get %s: %w", path, err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("okx decode %s: %w", path, err)
	}
	if api.Code != "0" {
		return fmt.Errorf("okx %s: code=%s msg=%s", path, api.Code, api.Msg)
	}
	return json.Unmarshal(api.Data, out)
}

// GetCandles fetches up to `limit` candles for an instrument and bar size
// ("5m", "15m", "1H", "4H"). Returns only confirmed (closed) candles,
// oldest first — the shape the engine expects.
func (c *Client) GetCandles(instID, bar string, limit int) ([]Candle, error) {
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", bar)
	q.Set("limit", strconv.Itoa(limit))

	var raw [][]string
	if err := c.get("/api/v5/market/candles", q, &raw); err != nil {
		return nil, err
	}

	// OKX returns newest first: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
	candles := make([]Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		row := raw[i]
		if len(row) < 9 || row[8] != "1" {
			continue // unconfirmed candle, never show it to the engine
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candles = append(candles, Candle{
			TS:        ts,
			Open:      parseDecimal(row[1]),
			High:      parseDecimal(row[2]),
			Low:       parseDecimal(row[3]),
			Close:     parseDecimal(row[4]),
			Volume:    parseDecimal(row[5]),
			Confirmed: true,
		})
	}
	return candles, nil
}

// GetTicker fetches the current ticker for one instrument.
func (c *Client) GetTicker(instID string) (*Ticker, error) {
	q := url.Values{}
	q.Set("instId", instID)

	var raw []struct {
		InstID    string `json:"instId"`
		Last      string `json:"last"`
		VolCcy24h string `json:"volCcy24h"`
		TS        string `json:"ts"`
	}
	if err := c.get("/api/v5/market/ticker", q, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("okx ticker %s: empty response", instID)
	}
	ts, _ := strconv.ParseInt(raw[0].TS, 10, 64)
	return &Ticker{
		InstID:    raw[0].InstID,
		Last:      parseDecimal(raw[0].Last),
		VolCcy24h: parseDecimal(raw[0].VolCcy24h),
		TS:        ts,
	}, nil
}

// GetSwapTickers fetches tickers for all perpetual swaps, used to build the
// symbol universe by 24h volume.
func (c *Client) GetSwapTickers() ([]Ticker, error) {
	q := url.Values{}
	q.Set("instType", "SWAP")

	var raw []struct {
		InstID    string `json:"instId"`
		Last      string `json:"last"`
		VolCcy24h string `json:"volCcy24h"`
		TS        string `json:"ts"`
	}
	if err := c.get("/api/v5/market/tickers", q, &raw); err != nil {
		return nil, err
	}
	tickers := make([]Ticker, 0, len(raw))
	for _, r := range raw {
		ts, _ := strconv.ParseInt(r.TS, 10, 64)
		tickers = append(tickers, Ticker{
			InstID:    r.InstID,
			Last:      parseDecimal(r.Last),
			VolCcy24h: parseDecimal(r.VolCcy24h),
			TS:        ts,
		})
	}
	return tickers, nil
}

// GetFundingRate fetches the current funding rate for a swap instrument.
func (c *Client) GetFundingRate(instID string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("instId", instID)

	var raw []struct {
		FundingRate string `json:"fundingRate"`
	}
	if err := c.get("/api/v5/public/funding-rate", q, &raw); err != nil {
		return decimal.Zero, err
	}
	if len(raw) == 0 {
		return decimal.Zero, nil
	}
	return parseDecimal(raw[0].FundingRate), nil
}

// GetOpenInterest fetches open interest for a swap instrument.
func (c *Client) GetOpenInterest(instID string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("instType", "SWAP")

	var raw []struct {
		OI string `json:"oi"`
	}
	if err := c.get("/api/v5/public/open-interest", q, &raw); err != nil {
		return decimal.Zero, err
	}
	if len(raw) == 0 {
		return decimal.Zero, nil
	}
	return parseDecimal(raw[0].OI), nil
}

func parseDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}
