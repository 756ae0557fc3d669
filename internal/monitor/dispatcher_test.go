package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/gate"
	"github.com/polysignal/walletwatch/internal/ledger"
)

func suppressedSignal(market string) domain.CandidateSignal {
	return domain.CandidateSignal{
		MarketID:   market,
		OutcomeIdx: 0,
		Direction:  domain.DirectionBuy,
		Wallets:    []string{"0xaaa1", "0xbbb2"},
	}
}

func TestDispatcher_OpsMapPrunedPastWindow(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	d := NewDispatcher(sender, ledger.NewMemory(10, time.Hour), 30*time.Minute, discardLogger())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		d.ReportSuppression(ctx, suppressedSignal(fmt.Sprintf("m%d", i)), gate.ReasonPriceExtreme)
	}
	require.Equal(t, 5, sender.count(EventOps))
	require.Len(t, d.opsSent, 5)

	// Inside the window the same signal stays quiet.
	d.ReportSuppression(ctx, suppressedSignal("m0"), gate.ReasonPriceExtreme)
	assert.Equal(t, 5, sender.count(EventOps))

	// Past the window aged entries are dropped instead of accumulating, and
	// the signal notifies again.
	now = now.Add(31 * time.Minute)
	d.ReportSuppression(ctx, suppressedSignal("m0"), gate.ReasonPriceExtreme)
	assert.Equal(t, 6, sender.count(EventOps))
	assert.Len(t, d.opsSent, 1, "entries older than the window must be pruned")
}
