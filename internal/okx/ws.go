package okx

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TickerStream maintains a live last-price cache over the OKX public
// websocket. The trade monitor reads from it first and falls back to REST
// when a price is stale or missing.
type TickerStream struct {
	wsURL string

	mu      sync.RWMutex
	conn    *websocket.Conn
	prices  map[string]streamPrice
	subs    map[string]bool
	running bool

	// wmu serializes writes: subscribe frames and pings share one conn
	wmu    sync.Mutex
	stopCh chan struct{}
}

type streamPrice struct {
	last decimal.Decimal
	at   time.Time
}

func NewTickerStream(wsURL string) *TickerStream {
	return &TickerStream{
		wsURL:  wsURL,
		prices: make(map[string]streamPrice),
		subs:   make(map[string]bool),
		stopCh: make(chan struct{}),
	}
}

// Start connects and begins streaming. Reconnects with backoff until Stop.
func (s *TickerStream) Start() error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	go s.runWebSocket()
	go s.pingLoop()
	log.Info().Msg("📡 OKX ticker stream started")
	return nil
}

// Stop closes the connection and halts reconnects.
func (s *TickerStream) Stop() {
	s.mu.Lock()
	s.running = false
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	close(s.stopCh)
}

func (s *TickerStream) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Subscribe adds instruments to the tickers channel. Safe to call before or
// after Start; subscriptions replay on reconnect.
func (s *TickerStream) Subscribe(instIDs ...string) {
	s.mu.Lock()
	var fresh []string
	for _, id := range instIDs {
		if !s.subs[id] {
			s.subs[id] = true
			fresh = append(fresh, id)
		}
	}
	conn := s.conn
	s.mu.Unlock()

	if conn != nil && len(fresh) > 0 {
		s.sendSubscribe(conn, fresh)
	}
}

// Unsubscribe removes instruments from the stream.
func (s *TickerStream) Unsubscribe(instIDs ...string) {
	s.mu.Lock()
	conn := s.conn
	var gone []string
	for _, id := range instIDs {
		if s.subs[id] {
			delete(s.subs, id)
			delete(s.prices, id)
			gone = append(gone, id)
		}
	}
	s.mu.Unlock()

	if conn != nil && len(gone) > 0 {
		args := make([]map[string]string, 0, len(gone))
		for _, id := range gone {
			args = append(args, map[string]string{"channel": "tickers", "instId": id})
		}
		s.wmu.Lock()
		conn.WriteJSON(map[string]interface{}{"op": "unsubscribe", "args": args})
		s.wmu.Unlock()
	}
}

// Last returns the most recent streamed price for an instrument and its age.
func (s *TickerStream) Last(instID string) (decimal.Decimal, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[instID]
	return p.last, p.at, ok
}

func (s *TickerStream) runWebSocket() {
	for s.isRunning() {
		if err := s.connect(); err != nil {
			log.Error().Err(err).Msg("OKX WebSocket connection failed")
			time.Sleep(5 * time.Second)
			continue
		}
		s.readMessages()
		if s.isRunning() {
			log.Warn().Msg("OKX WebSocket disconnected, reconnecting...")
			time.Sleep(time.Second)
		}
	}
}

func (s *TickerStream) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(s.wsURL, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.sendSubscribe(conn, ids)
	}
	log.Info().Int("instruments", len(ids)).Msg("🔌 WebSocket connected to OKX")
	return nil
}

func (s *TickerStream) sendSubscribe(conn *websocket.Conn, instIDs []string) {
	args := make([]map[string]string, 0, len(instIDs))
	for _, id := range instIDs {
		args = append(args, map[string]string{"channel": "tickers", "instId": id})
	}
	s.wmu.Lock()
	err := conn.WriteJSON(map[string]interface{}{"op": "subscribe", "args": args})
	s.wmu.Unlock()
	if err != nil {
		log.Error().Err(err).Msg("OKX subscribe failed")
	}
}

func (s *TickerStream) readMessages() {
	for s.isRunning() {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.isRunning() {
				log.Error().Err(err).Msg("OKX WebSocket read error")
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *TickerStream) handleMessage(data []byte) {
	if string(data) == "pong" {
		return
	}
	var msg struct {
		Arg struct {
			Channel string `json:"channel"`
			InstID  string `json:"instId"`
		} `json:"arg"`
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Arg.Channel != "tickers" || len(msg.Data) == 0 {
		return
	}
	last, err := decimal.NewFromString(msg.Data[0].Last)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.prices[msg.Arg.InstID] = streamPrice{last: last, at: time.Now()}
	s.mu.Unlock()
}

// OKX drops idle connections after 30s of silence.
func (s *TickerStream) pingLoop() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				s.wmu.Lock()
				conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				s.wmu.Unlock()
			}
		case <-s.stopCh:
			return
		}
	}
}
