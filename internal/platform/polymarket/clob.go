package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/polysignal/walletwatch/internal/httpx"
	"github.com/polysignal/walletwatch/internal/limiter"
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit Order
// Book) API. Only the quote surface is used here; this service never places
// orders.
type ClobClient struct {
	client *httpx.Client
}

// NewClobClient creates a CLOB quote client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, lim *limiter.Limiter, logger *slog.Logger, opts ...httpx.Option) *ClobClient {
	all := append([]httpx.Option{httpx.WithLimiter(lim)}, opts...)
	return &ClobClient{
		client: httpx.New(baseURL, logger, all...),
	}
}

// Midpoint returns the order-book midpoint price for a token.
func (c *ClobClient) Midpoint(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	var resp struct {
		Mid string `json:"mid"`
	}
	if err := c.client.GetJSON(ctx, "/midpoint", params, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: midpoint %s: %w", tokenID, err)
	}

	mid, err := strconv.ParseFloat(resp.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: midpoint %s: parse %q: %w", tokenID, resp.Mid, err)
	}
	return mid, nil
}

// LastTradePrice returns the most recent trade price for a token.
func (c *ClobClient) LastTradePrice(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	var resp struct {
		Price string `json:"price"`
	}
	if err := c.client.GetJSON(ctx, "/last-trade-price", params, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: last trade price %s: %w", tokenID, err)
	}

	p, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: last trade price %s: parse %q: %w", tokenID, resp.Price, err)
	}
	return p, nil
}
