package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/feed"
	"github.com/polysignal/walletwatch/internal/platform/finfeed"
	"github.com/polysignal/walletwatch/internal/platform/hashdive"
	"github.com/polysignal/walletwatch/internal/platform/polymarket"
)

// tokenLookup resolves the CLOB token id for a market outcome. Satisfied by
// *polymarket.GammaClient; its response cache keeps repeated lookups cheap.
type tokenLookup interface {
	GetTokenIDs(ctx context.Context, conditionID string) ([]string, error)
}

func resolveToken(ctx context.Context, tokens tokenLookup, req Request) (string, error) {
	ids, err := tokens.GetTokenIDs(ctx, req.MarketID)
	if err != nil {
		return "", err
	}
	if req.OutcomeIdx < 0 || req.OutcomeIdx >= len(ids) {
		return "", fmt.Errorf("pricing: no token for outcome %d of %s", req.OutcomeIdx, req.MarketID)
	}
	return ids[req.OutcomeIdx], nil
}

// --------------------------------------------------------------------------
// 1. Primary exchange quote
// --------------------------------------------------------------------------

// ExchangeQuoteSource serves the order-book midpoint. The live WebSocket
// table is consulted first; the REST midpoint is the fallback. A nil CLOB
// client marks the source unconfigured.
type ExchangeQuoteSource struct {
	clob   *polymarket.ClobClient
	quotes *feed.QuoteFeed // may be nil
	tokens tokenLookup
}

func NewExchangeQuoteSource(clob *polymarket.ClobClient, quotes *feed.QuoteFeed, tokens tokenLookup) *ExchangeQuoteSource {
	return &ExchangeQuoteSource{clob: clob, quotes: quotes, tokens: tokens}
}

func (s *ExchangeQuoteSource) Name() domain.PriceSource { return domain.SourceExchangeQuote }

func (s *ExchangeQuoteSource) Quote(ctx context.Context, req Request) (float64, error) {
	if s.clob == nil {
		return 0, domain.ErrUnconfigured
	}
	tokenID, err := resolveToken(ctx, s.tokens, req)
	if err != nil {
		return 0, err
	}
	if s.quotes != nil {
		s.quotes.Track([]string{tokenID})
		if p, ok := s.quotes.Lookup(tokenID); ok {
			return p, nil
		}
	}
	return s.clob.Midpoint(ctx, tokenID)
}

// --------------------------------------------------------------------------
// 2. Aggregator quote
// --------------------------------------------------------------------------

// AggregatorQuoteSource reads the outcome price straight from market
// metadata.
type AggregatorQuoteSource struct {
	gamma *polymarket.GammaClient
}

func NewAggregatorQuoteSource(gamma *polymarket.GammaClient) *AggregatorQuoteSource {
	return &AggregatorQuoteSource{gamma: gamma}
}

func (s *AggregatorQuoteSource) Name() domain.PriceSource { return domain.SourceAggregatorQuote }

func (s *AggregatorQuoteSource) Quote(ctx context.Context, req Request) (float64, error) {
	m, err := s.gamma.GetMarket(ctx, req.MarketID)
	if err != nil {
		return 0, err
	}
	if req.OutcomeIdx < 0 || req.OutcomeIdx >= len(m.OutcomePrices) {
		return 0, fmt.Errorf("pricing: no outcome price %d for %s", req.OutcomeIdx, req.MarketID)
	}
	return m.OutcomePrices[req.OutcomeIdx], nil
}

// --------------------------------------------------------------------------
// 3. Trade-history average
// --------------------------------------------------------------------------

// TradeHistorySource averages recent market trades on the requested outcome.
// Trades older than staleness or priced outside (0.001, 0.999) are ignored;
// prices at the extremes are resolution artifacts, not market opinion.
type TradeHistorySource struct {
	data      *polymarket.DataClient
	limit     int
	staleness time.Duration
	now       func() time.Time
}

func NewTradeHistorySource(data *polymarket.DataClient, limit int, staleness time.Duration) *TradeHistorySource {
	return &TradeHistorySource{
		data:      data,
		limit:     limit,
		staleness: staleness,
		now:       time.Now,
	}
}

func (s *TradeHistorySource) Name() domain.PriceSource { return domain.SourceTradeHistory }

func (s *TradeHistorySource) Quote(ctx context.Context, req Request) (float64, error) {
	trades, err := s.data.MarketTrades(ctx, req.MarketID, s.limit)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.staleness)
	var sum float64
	var n int
	for _, t := range trades {
		if t.OutcomeIndex != req.OutcomeIdx {
			continue
		}
		if t.Timestamp.Before(cutoff) {
			continue
		}
		p := float64(t.Price)
		if p < 0.001 || p > 0.999 {
			continue
		}
		sum += p
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("pricing: no usable trades for %s outcome %d", req.MarketID, req.OutcomeIdx)
	}
	return sum / float64(n), nil
}

// --------------------------------------------------------------------------
// 4. Secondary quote provider
// --------------------------------------------------------------------------

// SecondaryQuoteSource serves the Hashdive last price. A nil client marks
// the source unconfigured.
type SecondaryQuoteSource struct {
	client *hashdive.Client
	tokens tokenLookup
}

func NewSecondaryQuoteSource(client *hashdive.Client, tokens tokenLookup) *SecondaryQuoteSource {
	return &SecondaryQuoteSource{client: client, tokens: tokens}
}

func (s *SecondaryQuoteSource) Name() domain.PriceSource { return domain.SourceSecondaryProvider }

func (s *SecondaryQuoteSource) Quote(ctx context.Context, req Request) (float64, error) {
	if s.client == nil {
		return 0, domain.ErrUnconfigured
	}
	tokenID, err := resolveToken(ctx, s.tokens, req)
	if err != nil {
		return 0, err
	}
	return s.client.LastPrice(ctx, tokenID)
}

// --------------------------------------------------------------------------
// 5. Tertiary quote provider
// --------------------------------------------------------------------------

// TertiaryQuoteSource serves the FinFeed quote. A nil client marks the
// source unconfigured.
type TertiaryQuoteSource struct {
	client *finfeed.Client
	tokens tokenLookup
}

func NewTertiaryQuoteSource(client *finfeed.Client, tokens tokenLookup) *TertiaryQuoteSource {
	return &TertiaryQuoteSource{client: client, tokens: tokens}
}

func (s *TertiaryQuoteSource) Name() domain.PriceSource { return domain.SourceTertiaryProvider }

func (s *TertiaryQuoteSource) Quote(ctx context.Context, req Request) (float64, error) {
	if s.client == nil {
		return 0, domain.ErrUnconfigured
	}
	tokenID, err := resolveToken(ctx, s.tokens, req)
	if err != nil {
		return 0, err
	}
	return s.client.Quote(ctx, tokenID)
}

// --------------------------------------------------------------------------
// 6. Peer-wallet average
// --------------------------------------------------------------------------

// PeerAverageSource is the last resort: the mean of the signal's own entry
// prices. Needs no network and only fails when no positive peer price exists.
type PeerAverageSource struct{}

func NewPeerAverageSource() *PeerAverageSource { return &PeerAverageSource{} }

func (s *PeerAverageSource) Name() domain.PriceSource { return domain.SourcePeerAverage }

func (s *PeerAverageSource) Quote(_ context.Context, req Request) (float64, error) {
	var sum float64
	var n int
	for _, p := range req.PeerPrices {
		if p > 0 {
			sum += p
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("pricing: no peer prices")
	}
	return sum / float64(n), nil
}

var (
	_ Source = (*ExchangeQuoteSource)(nil)
	_ Source = (*AggregatorQuoteSource)(nil)
	_ Source = (*TradeHistorySource)(nil)
	_ Source = (*SecondaryQuoteSource)(nil)
	_ Source = (*TertiaryQuoteSource)(nil)
	_ Source = (*PeerAverageSource)(nil)
)
