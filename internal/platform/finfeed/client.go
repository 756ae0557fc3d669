// Package finfeed implements the FinFeed market-data API client, used as a
// tertiary price quote provider.
package finfeed

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

// Client calls the FinFeed REST API with key-based auth.
type Client struct {
	client *httpx.Client
}

// New creates a FinFeed client rooted at baseURL, e.g.
// "https://api.finfeedapi.com".
func New(baseURL, apiKey string, lim *limiter.Limiter, cacheTTL time.Duration, logger *slog.Logger) *Client {
	return &Client{
		client: httpx.New(baseURL, logger,
			httpx.WithLimiter(lim),
			httpx.WithCache(memory.New(cacheTTL)),
			httpx.WithHeader("Authorization", apiKey),
		),
	}
}

// Quote returns the current quote for a prediction-market token id.
func (c *Client) Quote(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	var resp struct {
		Price float64 `json:"price"`
	}
	if err := c.client.GetJSON(ctx, "/v1/prediction/quote", params, &resp); err != nil {
		return 0, fmt.Errorf("finfeed: quote %s: %w", tokenID, err)
	}
	return resp.Price, nil
}
