package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/polysignal/walletwatch/internal/cache/memory"
	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/httpx"
	"github.com/polysignal/walletwatch/internal/limiter"
)

// DataClient is the REST client for the Polymarket data-api, the source of
// raw trade activity per wallet and per market.
type DataClient struct {
	client *httpx.Client
}

// NewDataClient creates a data-api client.
//
// baseURL is the data-api root, e.g. "https://data-api.polymarket.com". The
// cache TTL should stay below the polling interval so each cycle sees fresh
// trades; the cache mainly absorbs the market-history price lookups.
func NewDataClient(baseURL string, lim *limiter.Limiter, cacheTTL time.Duration, logger *slog.Logger) *DataClient {
	return &DataClient{
		client: httpx.New(baseURL, logger,
			httpx.WithLimiter(lim),
			httpx.WithCache(memory.New(cacheTTL)),
		),
	}
}

// WalletTrades returns the most recent trades for a wallet, newest first.
func (d *DataClient) WalletTrades(ctx context.Context, wallet string, limit int) ([]domain.RawTrade, error) {
	params := url.Values{}
	params.Set("user", wallet)
	params.Set("limit", strconv.Itoa(limit))

	var trades []domain.RawTrade
	if err := d.client.GetJSON(ctx, "/trades", params, &trades); err != nil {
		return nil, fmt.Errorf("polymarket/data: wallet trades %s: %w", wallet, err)
	}
	return trades, nil
}

// MarketTrades returns the most recent trades on a market, newest first.
// Used by the trade-history price fallback.
func (d *DataClient) MarketTrades(ctx context.Context, conditionID string, limit int) ([]domain.RawTrade, error) {
	params := url.Values{}
	params.Set("market", conditionID)
	params.Set("limit", strconv.Itoa(limit))

	var trades []domain.RawTrade
	if err := d.client.GetJSON(ctx, "/trades", params, &trades); err != nil {
		return nil, fmt.Errorf("polymarket/data: market trades %s: %w", conditionID, err)
	}
	return trades, nil
}
