package market

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smclabs/ictbot/internal/okx"
)

// Subscriber receives instrument membership changes, so a live price stream
// tracks the scannable set. May be nil.
type Subscriber interface {
	Subscribe(instIDs ...string)
	Unsubscribe(instIDs ...string)
}

// Universe maintains the scannable symbol set: the top-N quote-margined
// perpetual swaps by 24h volume, refreshed periodically.
type Universe struct {
	client    *okx.Client
	stream    Subscriber
	quote     string
	limit     int
	minVolume float64

	mu          sync.RWMutex
	symbols     []string
	refreshedAt time.Time
}

func NewUniverse(client *okx.Client, stream Subscriber, quote string, limit int, minVolume float64) *Universe {
	return &Universe{client: client, stream: stream, quote: quote, limit: limit, minVolume: minVolume}
}

// Refresh rebuilds the symbol list from live tickers.
func (u *Universe) Refresh() error {
	tickers, err := u.client.GetSwapTickers()
	if err != nil {
		return err
	}

	suffix := "-" + u.quote + "-SWAP"
	type ranked struct {
		instID string
		volume float64
	}
	candidates := make([]ranked, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.InstID, suffix) {
			continue
		}
		vol, _ := t.VolCcy24h.Float64()
		if vol < u.minVolume {
			continue
		}
		candidates = append(candidates, ranked{instID: t.InstID, volume: vol})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].volume > candidates[j].volume })
	if len(candidates) > u.limit {
		candidates = candidates[:u.limit]
	}

	symbols := make([]string, len(candidates))
	for i, c := range candidates {
		symbols[i] = c.instID
	}

	u.mu.Lock()
	previous := u.symbols
	u.symbols = symbols
	u.refreshedAt = time.Now()
	u.mu.Unlock()

	u.resubscribe(previous, symbols)

	log.Info().Int("symbols", len(symbols)).Msg("🌐 Symbol universe refreshed")
	return nil
}

// resubscribe diffs universe membership into stream subscription updates.
func (u *Universe) resubscribe(previous, current []string) {
	if u.stream == nil {
		return
	}
	old := make(map[string]bool, len(previous))
	for _, s := range previous {
		old[s] = true
	}
	var added, removed []string
	for _, s := range current {
		if !old[s] {
			added = append(added, s)
		}
		delete(old, s)
	}
	for s := range old {
		removed = append(removed, s)
	}
	if len(added) > 0 {
		u.stream.Subscribe(added...)
	}
	if len(removed) > 0 {
		u.stream.Unsubscribe(removed...)
	}
}

// Symbols returns a copy of the current universe.
func (u *Universe) Symbols() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, len(u.symbols))
	copy(out, u.symbols)
	return out
}

// RefreshedAt returns when the universe was last rebuilt.
func (u *Universe) RefreshedAt() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.refreshedAt
}
