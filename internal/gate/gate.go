// Package gate decides whether a candidate signal becomes an alert. Checks
// run in a fixed order and short-circuit on the first suppression; a
// suppression is a decision, never an error.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/pricing"
)

// Reason classifies why a signal was suppressed.
type Reason string

const (
	ReasonMarketClosed    Reason = "market-closed"
	ReasonResolved        Reason = "resolved"
	ReasonPriceExtreme    Reason = "price-extreme"
	ReasonPriceDivergence Reason = "price-divergence"
	ReasonDuplicate       Reason = "duplicate"
)

// Decision is the outcome of the gate for one signal.
type Decision struct {
	Emit   bool
	Reason Reason // set when Emit is false

	// Quote is the resolved price. PriceKnown is false on the fail-open
	// path, where the alert goes out with the price marked unavailable.
	Quote      domain.PriceQuote
	PriceKnown bool
}

// Thresholds holds the suppression cut-offs.
type Thresholds struct {
	// ResolvedEpsilon: price within epsilon of 0 or 1 means the market has
	// effectively resolved.
	ResolvedEpsilon float64
	// ExtremeLow/High suppress alerts with no payoff room left.
	ExtremeLow  float64
	ExtremeHigh float64
	// MaxDivergence is the allowed relative spread across the first
	// consensus wallets' entry prices. CheckDivergence toggles the check.
	MaxDivergence   float64
	CheckDivergence bool
}

// DefaultThresholds mirrors the service defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ResolvedEpsilon: 0.001,
		ExtremeLow:      0.02,
		ExtremeHigh:     0.98,
		MaxDivergence:   0.25,
		CheckDivergence: true,
	}
}

// MarketLookup supplies market lifecycle state.
type MarketLookup interface {
	GetMarket(ctx context.Context, conditionID string) (domain.Market, error)
	IsMarketActive(ctx context.Context, conditionID string) (bool, error)
}

// PriceResolver yields a current price for a signal when one exists.
type PriceResolver interface {
	Resolve(ctx context.Context, req pricing.Request) (domain.PriceQuote, bool)
}

// Gate runs the suppression checks. It reads the ledger but never writes it;
// recording happens after a successful dispatch so that transient suppressions
// retry naturally on later cycles.
type Gate struct {
	markets    MarketLookup
	prices     PriceResolver
	ledger     domain.AlertLedger
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Gate.
func New(markets MarketLookup, prices PriceResolver, ledger domain.AlertLedger, thresholds Thresholds, logger *slog.Logger) *Gate {
	return &Gate{
		markets:    markets,
		prices:     prices,
		ledger:     ledger,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "gate")),
		now:        time.Now,
	}
}

// ShouldDispatch evaluates the checks in order: market end time, resolved /
// extreme price (with the fail-open path on unknown price), entry-price
// divergence, and finally deduplication.
func (g *Gate) ShouldDispatch(ctx context.Context, sig domain.CandidateSignal) Decision {
	// 1. End time. A missing or unparseable end date never suppresses.
	if market, err := g.markets.GetMarket(ctx, sig.MarketID); err == nil {
		if market.IsPastEnd(g.now()) {
			return Decision{Reason: ReasonMarketClosed}
		}
	} else {
		g.logger.Debug("market lookup failed, treating as open",
			slog.String("market_id", sig.MarketID),
			slog.String("error", err.Error()))
	}

	// 2. Price state.
	quote, known := g.prices.Resolve(ctx, pricing.Request{
		MarketID:   sig.MarketID,
		OutcomeIdx: sig.OutcomeIdx,
		PeerPrices: sig.WalletPrices,
	})
	if known {
		p := quote.Value
		switch {
		case p <= g.thresholds.ResolvedEpsilon || p >= 1-g.thresholds.ResolvedEpsilon:
			return Decision{Reason: ReasonResolved, Quote: quote, PriceKnown: true}
		case p <= g.thresholds.ExtremeLow || p >= g.thresholds.ExtremeHigh:
			return Decision{Reason: ReasonPriceExtreme, Quote: quote, PriceKnown: true}
		}
	} else {
		// No price anywhere. Confirm the market is live before failing
		// open; an unconfirmable market is treated as closed.
		active, err := g.markets.IsMarketActive(ctx, sig.MarketID)
		if err != nil || !active {
			return Decision{Reason: ReasonMarketClosed}
		}
	}

	// 3. Entry-price divergence across the earliest consensus members.
	// Errors here must never block the alert, so the check only consumes
	// data the signal already carries.
	if g.thresholds.CheckDivergence && diverged(sig, g.thresholds.MaxDivergence) {
		return Decision{Reason: ReasonPriceDivergence, Quote: quote, PriceKnown: known}
	}

	// 4. Deduplication.
	seen, err := g.ledger.Seen(ctx, sig.DedupKey())
	if err != nil {
		g.logger.Warn("ledger lookup failed, allowing alert",
			slog.String("key", sig.DedupKey()),
			slog.String("error", err.Error()))
	} else if seen {
		return Decision{Reason: ReasonDuplicate, Quote: quote, PriceKnown: known}
	}

	return Decision{Emit: true, Quote: quote, PriceKnown: known}
}

// diverged checks the relative spread of entry prices among the first three
// distinct wallets. A spread above maxDivergence means the "consensus"
// entered at very different odds and is probably noise.
func diverged(sig domain.CandidateSignal, maxDivergence float64) bool {
	n := len(sig.Wallets)
	if n > 3 {
		n = 3
	}
	if n < 2 {
		return false
	}

	var min, max float64
	var have int
	for _, w := range sig.Wallets[:n] {
		p, ok := sig.WalletPrices[w]
		if !ok || p <= 0 {
			continue
		}
		if have == 0 || p < min {
			min = p
		}
		if have == 0 || p > max {
			max = p
		}
		have++
	}
	if have < 2 || max <= 0 {
		return false
	}
	return (max-min)/max > maxDivergence
}
