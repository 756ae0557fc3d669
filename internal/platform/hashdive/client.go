// Package hashdive implements the Hashdive on-chain analytics API client,
// used as a secondary price quote provider.
package hashdive

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/polysignal/walletwatch/internal/cache/memory"
	"github.com/polysignal/walletwatch/internal/httpx"
	"github.com/polysignal/walletwatch/internal/limiter"
)

// Client calls the Hashdive REST API. All endpoints require an API key sent
// in the x-api-key header.
type Client struct {
	client *httpx.Client
}

// New creates a Hashdive client rooted at baseURL, e.g.
// "https://api.hashdive.com".
func New(baseURL, apiKey string, lim *limiter.Limiter, cacheTTL time.Duration, logger *slog.Logger) *Client {
	return &Client{
		client: httpx.New(baseURL, logger,
			httpx.WithLimiter(lim),
			httpx.WithCache(memory.New(cacheTTL)),
			httpx.WithHeader("x-api-key", apiKey),
		),
	}
}

// LastPrice returns the latest observed price for a CLOB token id.
func (c *Client) LastPrice(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	var resp struct {
		LastPrice float64 `json:"last_price"`
	}
	if err := c.client.GetJSON(ctx, "/get_last_price", params, &resp); err != nil {
		return 0, fmt.Errorf("hashdive: last price %s: %w", tokenID, err)
	}
	return resp.LastPrice, nil
}
