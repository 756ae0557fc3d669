package detector

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysignal/walletwatch/internal/domain"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pos(wallet, market string, outcome int, dir domain.Direction, size, price float64, at time.Time) domain.Position {
	return domain.Position{
		Wallet:      wallet,
		MarketID:    market,
		MarketTitle: "Market " + market,
		OutcomeIdx:  outcome,
		Direction:   dir,
		Size:        size,
		Price:       price,
		ObservedAt:  at,
		TradeID:     fmt.Sprintf("%s-%s-%d", wallet, market, at.UnixNano()),
	}
}

func newTestDetector(window time.Duration, minConsensus int) (*Detector, *time.Time) {
	d := New(window, minConsensus)
	now := baseTime
	d.now = func() time.Time { return now }
	return d, &now
}

func TestDetector_ThreeWalletConsensus(t *testing.T) {
	d, now := newTestDetector(15*time.Minute, 3)

	d.Ingest(pos("0xA", "m1", 0, domain.DirectionBuy, 100, 0.5, now.Add(-3*time.Minute)))
	d.Ingest(pos("0xB", "m1", 0, domain.DirectionBuy, 200, 0.5, now.Add(-2*time.Minute)))
	assert.Empty(t, d.Evaluate(), "two wallets is below threshold")

	d.Ingest(pos("0xC", "m1", 0, domain.DirectionBuy, 300, 0.5, now.Add(-time.Minute)))
	signals := d.Evaluate()
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, []string{"0xA", "0xB", "0xC"}, sig.Wallets, "first-seen order")
	assert.InDelta(t, 600, sig.TotalUSD, 1e-9)
	assert.InDelta(t, 0.5, sig.AvgPrice, 1e-9)
	assert.Equal(t, domain.DirectionBuy, sig.Direction)
}

func TestDetector_DistinctWalletsNotTrades(t *testing.T) {
	d, now := newTestDetector(15*time.Minute, 3)

	// One wallet trading five times is still one voice.
	for i := 0; i < 5; i++ {
		d.Ingest(pos("0xA", "m1", 0, domain.DirectionBuy, 100, 0.5, now.Add(time.Duration(-i)*time.Minute)))
	}
	d.Ingest(pos("0xB", "m1", 0, domain.DirectionBuy, 100, 0.5, *now))
	assert.Empty(t, d.Evaluate())
}

func TestDetector_DirectionSplitsGroups(t *testing.T) {
	d, now := newTestDetector(15*time.Minute, 3)

	d.Ingest(pos("0xA", "m1", 0, domain.DirectionBuy, 100, 0.5, now.Add(-2*time.Minute)))
	d.Ingest(pos("0xB", "m1", 0, domain.DirectionBuy, 100, 0.5, now.Add(-time.Minute)))
	d.Ingest(pos("0xC", "m1", 0, domain.DirectionSell, 100, 0.5, *now))

	assert.Empty(t, d.Evaluate(), "2 buys + 1 sell never forms a consensus")
}

func TestDetector_WindowEviction(t *testing.T) {
	d, now := newTestDetector(15*time.Minute, 2)

	d.Ingest(pos("0xA", "m1", 0, domain.DirectionBuy, 100, 0.5, now.Add(-14*time.Minute)))
	d.Ingest(pos("0xB", "m1", 0, domain.DirectionBuy, 100, 0.5, now.Add(-time.Minute)))
	require.Len(t, d.Evaluate(), 1)

	// Two minutes later the first member has aged out of the window.
	*now = now.Add(2 * time.Minute)
	assert.Empty(t, d.Evaluate())
}

func TestDetector_EmptyGroupsCollected(t *testing.T) {
	d, now := newTestDetector(15*time.Minute, 2)

	d.Ingest(pos("0xA", "m1", 0, domain.DirectionBuy, 100, 0.5, *now))
	d.Ingest(pos("0xB", "m2", 1, domain.DirectionSell, 100, 0.5, *now))
	require.Equal(t, 2, d.GroupCount())

	*now = now.Add(time.Hour)
	d.Evaluate()
	assert.Equal(t, 0, d.GroupCount())
}

func TestDetector_EntryPricePerWallet(t *testing.T) {
	d, now := newTestDetector(15*time.Minute, 2)

	d.Ingest(pos("0xA", "m1", 0, domain.DirectionBuy, 100, 0.40, now.Add(-3*time.Minute)))
	d.Ingest(pos("0xA", "m1", 0, domain.DirectionBuy, 100, 0.60, now.Add(-2*time.Minute)))
	d.Ingest(pos("0xB", "m1", 0, domain.DirectionBuy, 100, 0.50, now.Add(-time.Minute)))

	signals := d.Evaluate()
	require.Len(t, signals, 1)
	assert.InDelta(t, 0.40, signals[0].WalletPrices["0xA"], 1e-9, "entry price is the wallet's first trade")
	assert.InDelta(t, 0.50, signals[0].WalletPrices["0xB"], 1e-9)
}

func TestDetector_OutOfOrderIngestKeepsTimeOrder(t *testing.T) {
	d, now := newTestDetector(15*time.Minute, 2)

	d.Ingest(pos("0xB", "m1", 0, domain.DirectionBuy, 100, 0.5, now.Add(-time.Minute)))
	d.Ingest(pos("0xA", "m1", 0, domain.DirectionBuy, 100, 0.5, now.Add(-5*time.Minute)))

	signals := d.Evaluate()
	require.Len(t, signals, 1)
	assert.Equal(t, now.Add(-5*time.Minute), signals[0].FirstSeen)
	assert.Equal(t, now.Add(-time.Minute), signals[0].LastSeen)
}
