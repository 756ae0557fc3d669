// Package httpx provides the shared outbound HTTP client: a JSON GET helper
// with response caching, per-source rate limiting, and bounded retries.
//
// The layering is fixed: cache first (a hit consumes no quota and makes no
// network call), then the limiter, then the request itself. Transient network
// failures are retried with capped backoff; any HTTP status response is final
// here and surfaces immediately as a typed error.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/polysignal/walletwatch/internal/cache/memory"
	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/limiter"
)

const (
	maxAttempts    = 3
	baseBackoff    = time.Second
	maxBackoff     = 10 * time.Second
	defaultTimeout = 30 * time.Second
)

// Client wraps an http.Client with an optional limiter and response cache.
// Either may be nil, in which case that layer is skipped.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *limiter.Limiter
	cache      *memory.Cache
	headers    map[string]string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter attaches a rate limiter consulted before every network call.
func WithLimiter(l *limiter.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithCache attaches a TTL response cache.
func WithCache(cache *memory.Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithHeader adds a static header to every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// CallOption adjusts a single request.
type CallOption func(*callConfig)

type callConfig struct {
	cacheTTL time.Duration
}

// WithCacheTTL overrides the cache TTL for this call only. Ignored when the
// client has no cache.
func WithCacheTTL(d time.Duration) CallOption {
	return func(cc *callConfig) { cc.cacheTTL = d }
}

// New creates a Client rooted at baseURL.
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		headers:    make(map[string]string),
		logger:     logger.With(slog.String("component", "httpx")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON performs a GET against path with params and decodes the JSON
// response into out. Cached responses are served without touching the
// limiter or the network.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any, opts ...CallOption) error {
	body, err := c.Get(ctx, path, params, opts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpx: decode %s: %w", path, err)
	}
	return nil
}

// Get performs a GET and returns the raw response body.
func (c *Client) Get(ctx context.Context, path string, params url.Values, opts ...CallOption) ([]byte, error) {
	var cc callConfig
	for _, opt := range opts {
		opt(&cc)
	}

	key := memory.Fingerprint(path, params)

	if c.cache != nil {
		if body, ok := c.cache.Get(key); ok {
			return body, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Allow(); err != nil {
			var exceeded *limiter.ExceededError
			if errors.As(err, &exceeded) {
				return nil, fmt.Errorf("httpx: %s: %w: %v", path, domain.ErrRateLimited, exceeded)
			}
			return nil, fmt.Errorf("httpx: %s: limiter: %w", path, err)
		}
	}

	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	body, err := c.doWithRetry(ctx, target)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(key, body, cc.cacheTTL)
	}
	return body, nil
}

// doWithRetry attempts the request up to maxAttempts times. Only transient
// network failures are retried; once a status line comes back the result is
// final and mapped errors return immediately.
func (c *Client) doWithRetry(ctx context.Context, target string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := baseBackoff << (attempt - 2)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("httpx: %w: %w", domain.ErrContextDone, ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, retryable, err := c.doOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("request failed, retrying",
			slog.String("url", target),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return nil, fmt.Errorf("httpx: giving up after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, target string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("httpx: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("httpx: %w: %w", domain.ErrContextDone, ctx.Err())
		}
		return nil, true, fmt.Errorf("httpx: request: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("httpx: read response: %w", err)
	}

	if err := checkStatus(resp, body); err != nil {
		return nil, false, err
	}
	return body, false, nil
}

// checkStatus maps non-2xx responses to domain errors. 429 carries the
// server's Retry-After when present.
func checkStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, truncate(body))
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, truncate(body))
	case http.StatusTooManyRequests:
		if after := retryAfter(resp); after > 0 {
			return fmt.Errorf("%w: retry after %s", domain.ErrRateLimited, after)
		}
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, truncate(body))
	default:
		return fmt.Errorf("httpx: HTTP %d: %s", code, truncate(body))
	}
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
