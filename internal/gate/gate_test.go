package gate

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/ledger"
	"github.com/polysignal/walletwatch/internal/pricing"
)

type stubMarkets struct {
	market    domain.Market
	marketErr error
	active    bool
	activeErr error
}

func (s *stubMarkets) GetMarket(context.Context, string) (domain.Market, error) {
	return s.market, s.marketErr
}

func (s *stubMarkets) IsMarketActive(context.Context, string) (bool, error) {
	return s.active, s.activeErr
}

type stubPrices struct {
	quote domain.PriceQuote
	ok    bool
}

func (s *stubPrices) Resolve(context.Context, pricing.Request) (domain.PriceQuote, bool) {
	return s.quote, s.ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func signal(wallets ...string) domain.CandidateSignal {
	prices := make(map[string]float64, len(wallets))
	for _, w := range wallets {
		prices[w] = 0.5
	}
	return domain.CandidateSignal{
		MarketID:     "m1",
		MarketTitle:  "Test market",
		OutcomeIdx:   0,
		Direction:    domain.DirectionBuy,
		Wallets:      wallets,
		WalletPrices: prices,
		TotalUSD:     500,
		AvgPrice:     0.5,
	}
}

func priced(v float64) *stubPrices {
	return &stubPrices{
		quote: domain.PriceQuote{Value: v, Source: domain.SourceAggregatorQuote, ResolvedAt: time.Now()},
		ok:    true,
	}
}

func openMarket() *stubMarkets {
	return &stubMarkets{market: domain.Market{ID: "m1", Active: true}, active: true}
}

func newGate(markets MarketLookup, prices PriceResolver, led domain.AlertLedger) *Gate {
	if led == nil {
		led = ledger.NewMemory(100, time.Hour)
	}
	return New(markets, prices, led, DefaultThresholds(), discardLogger())
}

func TestGate_EmitsAtMidPrice(t *testing.T) {
	g := newGate(openMarket(), priced(0.5), nil)

	d := g.ShouldDispatch(context.Background(), signal("0xA", "0xB", "0xC"))
	require.True(t, d.Emit)
	assert.True(t, d.PriceKnown)
	assert.InDelta(t, 0.5, d.Quote.Value, 1e-9)
}

func TestGate_SuppressesResolvedPrice(t *testing.T) {
	g := newGate(openMarket(), priced(0.995), nil)

	d := g.ShouldDispatch(context.Background(), signal("0xA", "0xB", "0xC"))
	assert.False(t, d.Emit)
	// 0.995 is within the extreme band but not the resolved epsilon.
	assert.Equal(t, ReasonPriceExtreme, d.Reason)

	d = newGate(openMarket(), priced(0.9995), nil).ShouldDispatch(context.Background(), signal("0xA", "0xB"))
	assert.False(t, d.Emit)
	assert.Equal(t, ReasonResolved, d.Reason)

	d = newGate(openMarket(), priced(0.0005), nil).ShouldDispatch(context.Background(), signal("0xA", "0xB"))
	assert.False(t, d.Emit)
	assert.Equal(t, ReasonResolved, d.Reason)
}

func TestGate_SuppressesPastEndTime(t *testing.T) {
	ended := time.Now().Add(-time.Hour).UTC()
	markets := &stubMarkets{market: domain.Market{ID: "m1", EndAt: &ended}, active: true}
	g := newGate(markets, priced(0.5), nil)

	d := g.ShouldDispatch(context.Background(), signal("0xA", "0xB"))
	assert.False(t, d.Emit)
	assert.Equal(t, ReasonMarketClosed, d.Reason)
}

func TestGate_MissingEndTimeTreatedAsOpen(t *testing.T) {
	markets := &stubMarkets{market: domain.Market{ID: "m1"}, active: true}
	g := newGate(markets, priced(0.5), nil)

	d := g.ShouldDispatch(context.Background(), signal("0xA", "0xB"))
	assert.True(t, d.Emit)
}

func TestGate_UnknownPriceFailsOpenWhenActive(t *testing.T) {
	g := newGate(openMarket(), &stubPrices{}, nil)

	d := g.ShouldDispatch(context.Background(), signal("0xA", "0xB"))
	require.True(t, d.Emit, "unknown price with a confirmed-active market emits")
	assert.False(t, d.PriceKnown)
}

func TestGate_UnknownPriceSuppressesWhenInactive(t *testing.T) {
	markets := &stubMarkets{market: domain.Market{ID: "m1"}, active: false}
	g := newGate(markets, &stubPrices{}, nil)

	d := g.ShouldDispatch(context.Background(), signal("0xA", "0xB"))
	assert.False(t, d.Emit)
	assert.Equal(t, ReasonMarketClosed, d.Reason)
}

func TestGate_UnknownPriceSuppressesWhenActivityUnknown(t *testing.T) {
	markets := &stubMarkets{market: domain.Market{ID: "m1"}, activeErr: errors.New("gamma down")}
	g := newGate(markets, &stubPrices{}, nil)

	d := g.ShouldDispatch(context.Background(), signal("0xA", "0xB"))
	assert.False(t, d.Emit)
	assert.Equal(t, ReasonMarketClosed, d.Reason)
}

func TestGate_Divergence(t *testing.T) {
	sig := signal("0xA", "0xB", "0xC")
	sig.WalletPrices = map[string]float64{"0xA": 0.30, "0xB": 0.55, "0xC": 0.50}

	d := newGate(openMarket(), priced(0.5), nil).ShouldDispatch(context.Background(), sig)
	assert.False(t, d.Emit)
	assert.Equal(t, ReasonPriceDivergence, d.Reason)

	// Only the first three wallets count.
	sig = signal("0xA", "0xB", "0xC", "0xD")
	sig.WalletPrices = map[string]float64{"0xA": 0.50, "0xB": 0.52, "0xC": 0.48, "0xD": 0.05}
	d = newGate(openMarket(), priced(0.5), nil).ShouldDispatch(context.Background(), sig)
	assert.True(t, d.Emit)
}

func TestGate_DivergenceDisabled(t *testing.T) {
	sig := signal("0xA", "0xB")
	sig.WalletPrices = map[string]float64{"0xA": 0.10, "0xB": 0.90}

	th := DefaultThresholds()
	th.CheckDivergence = false
	g := New(openMarket(), priced(0.5), ledger.NewMemory(100, time.Hour), th, discardLogger())

	d := g.ShouldDispatch(context.Background(), sig)
	assert.True(t, d.Emit)
}

func TestGate_DuplicateSuppression(t *testing.T) {
	led := ledger.NewMemory(100, time.Hour)
	g := newGate(openMarket(), priced(0.5), led)
	sig := signal("0xA", "0xB", "0xC")

	d := g.ShouldDispatch(context.Background(), sig)
	require.True(t, d.Emit)

	// The ledger is written by the dispatcher after a successful send.
	require.NoError(t, led.Record(context.Background(), domain.AlertRecord{
		ID: "1", Key: sig.DedupKey(), SentAt: time.Now(),
	}))

	d = g.ShouldDispatch(context.Background(), sig)
	assert.False(t, d.Emit)
	assert.Equal(t, ReasonDuplicate, d.Reason)

	// A fourth wallet joins: new key, alert fires again.
	grown := signal("0xA", "0xB", "0xC", "0xD")
	d = g.ShouldDispatch(context.Background(), grown)
	assert.True(t, d.Emit)
}
