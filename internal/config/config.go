// Package config defines the top-level configuration for the wallet monitor
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by WALLETWATCH_* environment
// variables.
type Config struct {
	Monitor    MonitorConfig    `toml:"monitor"`
	Gate       GateConfig       `toml:"gate"`
	Pricing    PricingConfig    `toml:"pricing"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Hashdive   ProviderConfig   `toml:"hashdive"`
	FinFeed    ProviderConfig   `toml:"finfeed"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Wallets    []WalletEntry    `toml:"wallets"`
	LogLevel   string           `toml:"log_level"`
}

// MonitorConfig holds the polling loop parameters.
type MonitorConfig struct {
	PollInterval  duration `toml:"poll_interval"`
	WindowSize    duration `toml:"window_size"`
	MinConsensus  int      `toml:"min_consensus"`
	FetchLimit    int      `toml:"fetch_limit"`
	MaxConcurrent int      `toml:"max_concurrent"`
	RosterRefresh duration `toml:"roster_refresh"`
}

// GateConfig holds the alert suppression thresholds.
type GateConfig struct {
	ResolvedEpsilon float64  `toml:"resolved_epsilon"`
	ExtremeLow      float64  `toml:"extreme_low"`
	ExtremeHigh     float64  `toml:"extreme_high"`
	MaxDivergence   float64  `toml:"max_divergence"`
	CheckDivergence bool     `toml:"check_divergence"`
	OpsWindow       duration `toml:"ops_window"`
}

// PricingConfig holds trade-history fallback parameters.
type PricingConfig struct {
	HistoryLimit     int      `toml:"history_limit"`
	HistoryStaleness duration `toml:"history_staleness"`
	QuoteFeedEnabled bool     `toml:"quote_feed_enabled"`
	QuoteMaxAge      duration `toml:"quote_max_age"`
}

// RateLimitConfig is one dual-window limit: short (burst) and long (quota).
type RateLimitConfig struct {
	ShortLimit  int      `toml:"short_limit"`
	ShortWindow duration `toml:"short_window"`
	LongLimit   int      `toml:"long_limit"`
	LongWindow  duration `toml:"long_window"`
}

// PolymarketConfig holds Polymarket API endpoints and per-API rate limits.
type PolymarketConfig struct {
	DataHost  string `toml:"data_host"`
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
	WsHost    string `toml:"ws_host"`

	DataRateLimit  RateLimitConfig `toml:"data_rate_limit"`
	GammaRateLimit RateLimitConfig `toml:"gamma_rate_limit"`
	ClobRateLimit  RateLimitConfig `toml:"clob_rate_limit"`

	GammaCacheTTL duration `toml:"gamma_cache_ttl"`
	DataCacheTTL  duration `toml:"data_cache_ttl"`
}

// ProviderConfig holds an external quote provider's endpoint and key. An
// empty base URL or API key disables the provider.
type ProviderConfig struct {
	BaseURL   string          `toml:"base_url"`
	APIKey    string          `toml:"api_key"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	CacheTTL  duration        `toml:"cache_ttl"`
}

// Enabled reports whether the provider is fully configured.
func (p ProviderConfig) Enabled() bool {
	return p.BaseURL != "" && p.APIKey != ""
}

// LedgerConfig bounds the alert deduplication ledger.
type LedgerConfig struct {
	Capacity int      `toml:"capacity"`
	TTL      duration `toml:"ttl"`
	// UseRedis switches to the Redis-backed ledger so deduplication
	// survives restarts.
	UseRedis bool `toml:"use_redis"`
}

// PostgresConfig holds the wallet roster database. Empty host and DSN means
// the static [[wallets]] roster is used instead.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether a database roster is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || p.Host != ""
}

// RedisConfig holds Redis connection parameters for the persistent ledger.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds the optional decision-audit archive target.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Prefix         string   `toml:"prefix"`
	FlushInterval  duration `toml:"flush_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// WalletEntry is one static roster member.
type WalletEntry struct {
	Address     string  `toml:"address"`
	DisplayName string  `toml:"display_name"`
	WinRate     float64 `toml:"win_rate"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "7s" or "15m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the service defaults. These match
// config.example.toml.
func Defaults() Config {
	return Config{
		Monitor: MonitorConfig{
			PollInterval:  duration{7 * time.Second},
			WindowSize:    duration{15 * time.Minute},
			MinConsensus:  2,
			FetchLimit:    50,
			MaxConcurrent: 10,
			RosterRefresh: duration{10 * time.Minute},
		},
		Gate: GateConfig{
			ResolvedEpsilon: 0.001,
			ExtremeLow:      0.02,
			ExtremeHigh:     0.98,
			MaxDivergence:   0.25,
			CheckDivergence: true,
			OpsWindow:       duration{30 * time.Minute},
		},
		Pricing: PricingConfig{
			HistoryLimit:     100,
			HistoryStaleness: duration{time.Hour},
			QuoteFeedEnabled: true,
			QuoteMaxAge:      duration{time.Minute},
		},
		Polymarket: PolymarketConfig{
			DataHost:  "https://data-api.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			DataRateLimit: RateLimitConfig{
				ShortLimit:  60,
				ShortWindow: duration{time.Minute},
				LongLimit:   20000,
				LongWindow:  duration{24 * time.Hour},
			},
			GammaRateLimit: RateLimitConfig{
				ShortLimit:  30,
				ShortWindow: duration{time.Minute},
				LongLimit:   10000,
				LongWindow:  duration{24 * time.Hour},
			},
			ClobRateLimit: RateLimitConfig{
				ShortLimit:  30,
				ShortWindow: duration{time.Minute},
				LongLimit:   10000,
				LongWindow:  duration{24 * time.Hour},
			},
			GammaCacheTTL: duration{30 * time.Second},
			DataCacheTTL:  duration{5 * time.Second},
		},
		Hashdive: ProviderConfig{
			BaseURL: "https://api.hashdive.com",
			RateLimit: RateLimitConfig{
				ShortLimit:  10,
				ShortWindow: duration{time.Minute},
				LongLimit:   1000,
				LongWindow:  duration{24 * time.Hour},
			},
			CacheTTL: duration{30 * time.Second},
		},
		FinFeed: ProviderConfig{
			BaseURL: "https://api.finfeedapi.com",
			RateLimit: RateLimitConfig{
				ShortLimit:  10,
				ShortWindow: duration{time.Minute},
				LongLimit:   500,
				LongWindow:  duration{24 * time.Hour},
			},
			CacheTTL: duration{30 * time.Second},
		},
		Ledger: LedgerConfig{
			Capacity: 100,
			TTL:      duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "walletwatch",
			User:          "walletwatch",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Prefix:         "audit",
			FlushInterval:  duration{time.Hour},
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"consensus", "ops"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Monitor
	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be > 0")
	}
	if c.Monitor.WindowSize.Duration <= 0 {
		errs = append(errs, "monitor: window_size must be > 0")
	}
	if c.Monitor.MinConsensus < 2 {
		errs = append(errs, fmt.Sprintf("monitor: min_consensus must be >= 2, got %d", c.Monitor.MinConsensus))
	}
	if c.Monitor.FetchLimit < 1 {
		errs = append(errs, "monitor: fetch_limit must be >= 1")
	}
	if c.Monitor.MaxConcurrent < 1 {
		errs = append(errs, "monitor: max_concurrent must be >= 1")
	}

	// Gate
	if c.Gate.ResolvedEpsilon <= 0 || c.Gate.ResolvedEpsilon >= 0.5 {
		errs = append(errs, "gate: resolved_epsilon must be in (0, 0.5)")
	}
	if c.Gate.ExtremeLow <= 0 || c.Gate.ExtremeHigh >= 1 || c.Gate.ExtremeLow >= c.Gate.ExtremeHigh {
		errs = append(errs, "gate: extreme_low/extreme_high must satisfy 0 < low < high < 1")
	}
	if c.Gate.CheckDivergence && (c.Gate.MaxDivergence <= 0 || c.Gate.MaxDivergence >= 1) {
		errs = append(errs, "gate: max_divergence must be in (0, 1) when check_divergence is set")
	}

	// Endpoints
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}

	// Ledger
	if c.Ledger.Capacity < 1 {
		errs = append(errs, "ledger: capacity must be >= 1")
	}
	if c.Ledger.UseRedis && c.Redis.Addr == "" {
		errs = append(errs, "ledger: redis.addr is required when use_redis is set")
	}

	// Roster: need either a database or at least one static wallet.
	if !c.Postgres.Enabled() && len(c.Wallets) == 0 {
		errs = append(errs, "wallets: configure postgres or at least one [[wallets]] entry")
	}
	for i, w := range c.Wallets {
		if strings.TrimSpace(w.Address) == "" {
			errs = append(errs, fmt.Sprintf("wallets[%d]: address must not be empty", i))
		}
		if w.WinRate < 0 || w.WinRate > 1 {
			errs = append(errs, fmt.Sprintf("wallets[%d]: win_rate must be in [0, 1]", i))
		}
	}

	// Notify: at least one channel, or alerts have nowhere to go.
	if c.Notify.TelegramToken == "" && c.Notify.DiscordWebhookURL == "" {
		errs = append(errs, "notify: configure telegram_token/telegram_chat_id or discord_webhook_url")
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required with telegram_token")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
