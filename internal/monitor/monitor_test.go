package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysignal/walletwatch/internal/detector"
	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/gate"
	"github.com/polysignal/walletwatch/internal/ledger"
	"github.com/polysignal/walletwatch/internal/pricing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// --- fakes -----------------------------------------------------------------

type fakeStore struct {
	wallets []domain.WatchedWallet
}

func (f *fakeStore) ListActive(context.Context) ([]domain.WatchedWallet, error) {
	return f.wallets, nil
}

type fakeFetcher struct {
	mu     sync.Mutex
	trades map[string][]domain.RawTrade // wallet -> newest-first trades
}

func (f *fakeFetcher) WalletTrades(_ context.Context, wallet string, _ int) ([]domain.RawTrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trades[wallet], nil
}

type fakeSender struct {
	mu       sync.Mutex
	messages []string // "event: title"
}

func (f *fakeSender) Notify(_ context.Context, event, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, event+": "+title)
	return nil
}

func (f *fakeSender) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if len(m) >= len(event) && m[:len(event)] == event {
			n++
		}
	}
	return n
}

type fakeMarkets struct{}

func (fakeMarkets) GetMarket(context.Context, string) (domain.Market, error) {
	return domain.Market{ID: "m1", Active: true}, nil
}

func (fakeMarkets) IsMarketActive(context.Context, string) (bool, error) { return true, nil }

type fixedPrice struct{ v float64 }

func (p fixedPrice) Resolve(context.Context, pricing.Request) (domain.PriceQuote, bool) {
	return domain.PriceQuote{Value: p.v, Source: domain.SourceAggregatorQuote}, true
}

// --- helpers ---------------------------------------------------------------

func rawTrade(tx, market string, side string, price float64, at time.Time) domain.RawTrade {
	payload := fmt.Sprintf(`{
		"conditionId": %q,
		"title": "Market",
		"slug": "market",
		"outcomeIndex": 0,
		"side": %q,
		"size": 100,
		"price": %g,
		"timestamp": %d,
		"transactionHash": %q
	}`, market, side, price, at.Unix(), tx)

	var raw domain.RawTrade
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		panic(err)
	}
	return raw
}

func newTestMonitor(t *testing.T, fetcher *fakeFetcher, sender *fakeSender, price float64) *Monitor {
	t.Helper()

	led := ledger.NewMemory(100, time.Hour)
	g := gate.New(fakeMarkets{}, fixedPrice{v: price}, led, gate.DefaultThresholds(), discardLogger())
	disp := NewDispatcher(sender, led, 30*time.Minute, discardLogger())
	det := detector.New(15*time.Minute, 3)

	store := &fakeStore{wallets: []domain.WatchedWallet{
		{Address: "0xaaa1", DisplayName: "alpha", WinRate: 0.7},
		{Address: "0xbbb2", DisplayName: "beta"},
		{Address: "0xccc3"},
	}}

	cfg := Config{
		PollInterval:  7 * time.Second,
		WindowSize:    15 * time.Minute,
		MinConsensus:  3,
		FetchLimit:    50,
		MaxConcurrent: 10,
	}
	return New(cfg, store, fetcher, det, g, disp, nil, discardLogger())
}

// --- tests -----------------------------------------------------------------

func TestMonitor_CycleEmitsConsensusAlert(t *testing.T) {
	now := time.Now().UTC()
	fetcher := &fakeFetcher{trades: map[string][]domain.RawTrade{
		"0xaaa1": {rawTrade("t1", "m1", "BUY", 0.5, now.Add(-time.Minute))},
		"0xbbb2": {rawTrade("t2", "m1", "BUY", 0.5, now.Add(-2*time.Minute))},
		"0xccc3": {rawTrade("t3", "m1", "BUY", 0.5, now.Add(-3*time.Minute))},
	}}
	sender := &fakeSender{}

	m := newTestMonitor(t, fetcher, sender, 0.5)
	require.NoError(t, m.refreshRoster(context.Background()))

	m.runCycle(context.Background())
	assert.Equal(t, 1, sender.count(EventConsensus))

	// Same state next cycle: the same trades are behind the cursors, so no
	// re-ingestion and no duplicate alert.
	m.runCycle(context.Background())
	assert.Equal(t, 1, sender.count(EventConsensus))
}

func TestMonitor_ExtremePriceSuppressed(t *testing.T) {
	now := time.Now().UTC()
	fetcher := &fakeFetcher{trades: map[string][]domain.RawTrade{
		"0xaaa1": {rawTrade("t1", "m1", "BUY", 0.99, now)},
		"0xbbb2": {rawTrade("t2", "m1", "BUY", 0.99, now)},
		"0xccc3": {rawTrade("t3", "m1", "BUY", 0.99, now)},
	}}
	sender := &fakeSender{}

	m := newTestMonitor(t, fetcher, sender, 0.995)
	require.NoError(t, m.refreshRoster(context.Background()))

	m.runCycle(context.Background())
	assert.Equal(t, 0, sender.count(EventConsensus))
	assert.Equal(t, 1, sender.count(EventOps), "suppression mirrored to ops once")

	// The group still stands next cycle; the ops mirror is rate limited.
	m.runCycle(context.Background())
	assert.Equal(t, 1, sender.count(EventOps))
}

func TestMonitor_CursorStopsReprocessing(t *testing.T) {
	now := time.Now().UTC()
	fetcher := &fakeFetcher{trades: map[string][]domain.RawTrade{
		"0xaaa1": {rawTrade("t1", "m1", "BUY", 0.5, now.Add(-time.Minute))},
	}}
	sender := &fakeSender{}

	m := newTestMonitor(t, fetcher, sender, 0.5)
	require.NoError(t, m.refreshRoster(context.Background()))

	m.runCycle(context.Background())

	// A new trade lands on top of the old one; only it should be fresh.
	fetcher.mu.Lock()
	wallet := "0xaaa1"
	fetcher.trades[wallet] = append(
		[]domain.RawTrade{rawTrade("t9", "m2", "SELL", 0.3, now)},
		fetcher.trades[wallet]...)
	fetcher.mu.Unlock()

	raws, err := fetcher.WalletTrades(context.Background(), wallet, 50)
	require.NoError(t, err)
	fresh, newest := m.extractFresh(wallet, raws)

	require.Len(t, fresh, 1)
	assert.Equal(t, "t9", fresh[0].TradeID)
	assert.Equal(t, "t9", newest)
}

func TestMonitor_MixedDirectionsNoAlert(t *testing.T) {
	now := time.Now().UTC()
	fetcher := &fakeFetcher{trades: map[string][]domain.RawTrade{
		"0xaaa1": {rawTrade("t1", "m1", "BUY", 0.5, now)},
		"0xbbb2": {rawTrade("t2", "m1", "BUY", 0.5, now)},
		"0xccc3": {rawTrade("t3", "m1", "SELL", 0.5, now)},
	}}
	sender := &fakeSender{}

	m := newTestMonitor(t, fetcher, sender, 0.5)
	require.NoError(t, m.refreshRoster(context.Background()))

	m.runCycle(context.Background())
	assert.Equal(t, 0, sender.count(EventConsensus))
}

func TestFormatAlert(t *testing.T) {
	sig := domain.CandidateSignal{
		MarketID:    "m1",
		MarketTitle: "Will it rain?",
		MarketSlug:  "will-it-rain",
		OutcomeIdx:  0,
		Direction:   domain.DirectionBuy,
		Wallets:     []string{"0x1234567890abcdef1234567890abcdef12345678"},
		TotalUSD:    300,
		AvgPrice:    0.42,
		LastSeen:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	roster := map[string]domain.WatchedWallet{
		"0x1234567890abcdef1234567890abcdef12345678": {DisplayName: "whale", WinRate: 0.8},
	}

	title, body := formatAlert(sig, gate.Decision{
		Emit:       true,
		Quote:      domain.PriceQuote{Value: 0.45, Source: domain.SourceAggregatorQuote},
		PriceKnown: true,
	}, roster)

	assert.Contains(t, title, "BUY")
	assert.Contains(t, title, "Will it rain?")
	assert.Contains(t, body, "whale (win rate 80%)")
	assert.Contains(t, body, "0.450")
	assert.Contains(t, body, "will-it-rain")
	assert.Contains(t, body, "2026-03-01 12:00:00 UTC")
}

func TestFormatAlert_PriceUnavailable(t *testing.T) {
	sig := domain.CandidateSignal{MarketTitle: "X", Direction: domain.DirectionSell, Wallets: []string{"0xa"}}
	_, body := formatAlert(sig, gate.Decision{Emit: true}, nil)
	assert.Contains(t, body, "Current price: N/A")
}
