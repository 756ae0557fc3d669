package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/polysignal/walletwatch/internal/cache/memory"
	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/httpx"
	"github.com/polysignal/walletwatch/internal/limiter"
)

// GammaClient is the REST client for the Polymarket Gamma API, which provides
// market metadata: title, slug, end date, lifecycle flags, and outcome prices.
type GammaClient struct {
	client *httpx.Client
}

// NewGammaClient creates a Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
// Responses are cached; metadata moves slowly relative to the polling loop.
func NewGammaClient(baseURL string, lim *limiter.Limiter, cacheTTL time.Duration, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		client: httpx.New(baseURL, logger,
			httpx.WithLimiter(lim),
			httpx.WithCache(memory.New(cacheTTL)),
		),
	}
}

// GetMarket returns market metadata looked up by condition id.
func (g *GammaClient) GetMarket(ctx context.Context, conditionID string) (domain.Market, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)

	var apiMarkets []APIMarket
	if err := g.client.GetJSON(ctx, "/markets", params, &apiMarkets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", conditionID, err)
	}
	if len(apiMarkets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: condition_id=%s", domain.ErrNotFound, conditionID)
	}
	return apiMarkets[0].ToDomainMarket(), nil
}

// GetMarketBySlug returns market metadata looked up by URL slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	params := url.Values{}
	params.Set("slug", slug)

	var apiMarkets []APIMarket
	if err := g.client.GetJSON(ctx, "/markets", params, &apiMarkets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}
	if len(apiMarkets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}
	return apiMarkets[0].ToDomainMarket(), nil
}

// GetTokenIDs returns the CLOB token ids for a market, in outcome order.
func (g *GammaClient) GetTokenIDs(ctx context.Context, conditionID string) ([]string, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)

	var apiMarkets []APIMarket
	if err := g.client.GetJSON(ctx, "/markets", params, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get token ids %s: %w", conditionID, err)
	}
	if len(apiMarkets) == 0 {
		return nil, fmt.Errorf("polymarket/gamma: %w: condition_id=%s", domain.ErrNotFound, conditionID)
	}
	return apiMarkets[0].TokenIDs(), nil
}

// IsMarketActive reports whether a market is accepting trades: active and not
// closed. Used as the independent liveness check when no price can be
// resolved.
func (g *GammaClient) IsMarketActive(ctx context.Context, conditionID string) (bool, error) {
	m, err := g.GetMarket(ctx, conditionID)
	if err != nil {
		return false, err
	}
	return m.Active && !m.Closed, nil
}
