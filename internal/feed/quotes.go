// Package feed maintains a live quote table fed by the CLOB WebSocket market
// channel. The price resolver consults the table before falling back to REST.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polysignal/walletwatch/internal/platform/polymarket"
)

// quote is one live price with its arrival time.
type quote struct {
	price float64
	at    time.Time
}

// QuoteFeed tracks CLOB token ids over the WebSocket market channel and keeps
// the latest price per token. Quotes older than maxAge are treated as absent.
type QuoteFeed struct {
	ws     *polymarket.WSClient
	maxAge time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	quotes  map[string]quote
	tracked map[string]struct{}

	now func() time.Time
}

// NewQuoteFeed creates a QuoteFeed on top of ws. maxAge bounds how stale a
// quote may be before Lookup stops returning it.
func NewQuoteFeed(ws *polymarket.WSClient, maxAge time.Duration, logger *slog.Logger) *QuoteFeed {
	f := &QuoteFeed{
		ws:      ws,
		maxAge:  maxAge,
		logger:  logger.With(slog.String("component", "quote_feed")),
		quotes:  make(map[string]quote),
		tracked: make(map[string]struct{}),
		now:     time.Now,
	}
	ws.OnQuote(f.record)
	return f
}

// Start connects the WebSocket. The client reconnects on its own afterwards.
func (f *QuoteFeed) Start(ctx context.Context) error {
	if err := f.ws.Connect(ctx); err != nil {
		return err
	}
	f.logger.Info("quote feed connected")
	return nil
}

// Close shuts the WebSocket down.
func (f *QuoteFeed) Close() error {
	return f.ws.Close()
}

// Track subscribes token ids not yet tracked. Safe to call every cycle; only
// new ids generate a subscribe command.
func (f *QuoteFeed) Track(tokenIDs []string) {
	f.mu.Lock()
	var fresh []string
	for _, id := range tokenIDs {
		if id == "" {
			continue
		}
		if _, ok := f.tracked[id]; !ok {
			f.tracked[id] = struct{}{}
			fresh = append(fresh, id)
		}
	}
	f.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	if err := f.ws.Subscribe(fresh); err != nil {
		f.logger.Warn("subscribe failed", slog.Int("tokens", len(fresh)), slog.String("error", err.Error()))
	}
}

// Lookup returns the live price for a token when one is present and fresh.
func (f *QuoteFeed) Lookup(tokenID string) (float64, bool) {
	f.mu.RLock()
	q, ok := f.quotes[tokenID]
	f.mu.RUnlock()

	if !ok || f.now().Sub(q.at) > f.maxAge {
		return 0, false
	}
	return q.price, true
}

func (f *QuoteFeed) record(tokenID string, price float64) {
	f.mu.Lock()
	f.quotes[tokenID] = quote{price: price, at: f.now()}
	f.mu.Unlock()
}
