package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WALLETWATCH_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WALLETWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Monitor ──
	setDuration(&cfg.Monitor.PollInterval, "WALLETWATCH_MONITOR_POLL_INTERVAL")
	setDuration(&cfg.Monitor.WindowSize, "WALLETWATCH_MONITOR_WINDOW_SIZE")
	setInt(&cfg.Monitor.MinConsensus, "WALLETWATCH_MONITOR_MIN_CONSENSUS")
	setInt(&cfg.Monitor.FetchLimit, "WALLETWATCH_MONITOR_FETCH_LIMIT")
	setInt(&cfg.Monitor.MaxConcurrent, "WALLETWATCH_MONITOR_MAX_CONCURRENT")
	setDuration(&cfg.Monitor.RosterRefresh, "WALLETWATCH_MONITOR_ROSTER_REFRESH")

	// ── Gate ──
	setFloat64(&cfg.Gate.ResolvedEpsilon, "WALLETWATCH_GATE_RESOLVED_EPSILON")
	setFloat64(&cfg.Gate.ExtremeLow, "WALLETWATCH_GATE_EXTREME_LOW")
	setFloat64(&cfg.Gate.ExtremeHigh, "WALLETWATCH_GATE_EXTREME_HIGH")
	setFloat64(&cfg.Gate.MaxDivergence, "WALLETWATCH_GATE_MAX_DIVERGENCE")
	setBool(&cfg.Gate.CheckDivergence, "WALLETWATCH_GATE_CHECK_DIVERGENCE")
	setDuration(&cfg.Gate.OpsWindow, "WALLETWATCH_GATE_OPS_WINDOW")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.DataHost, "WALLETWATCH_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.GammaHost, "WALLETWATCH_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "WALLETWATCH_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "WALLETWATCH_POLYMARKET_WS_HOST")

	// ── Quote providers ──
	setStr(&cfg.Hashdive.BaseURL, "WALLETWATCH_HASHDIVE_BASE_URL")
	setStr(&cfg.Hashdive.APIKey, "WALLETWATCH_HASHDIVE_API_KEY")
	setStr(&cfg.FinFeed.BaseURL, "WALLETWATCH_FINFEED_BASE_URL")
	setStr(&cfg.FinFeed.APIKey, "WALLETWATCH_FINFEED_API_KEY")

	// ── Ledger ──
	setInt(&cfg.Ledger.Capacity, "WALLETWATCH_LEDGER_CAPACITY")
	setDuration(&cfg.Ledger.TTL, "WALLETWATCH_LEDGER_TTL")
	setBool(&cfg.Ledger.UseRedis, "WALLETWATCH_LEDGER_USE_REDIS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "WALLETWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "WALLETWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WALLETWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WALLETWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WALLETWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WALLETWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WALLETWATCH_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WALLETWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WALLETWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WALLETWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WALLETWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WALLETWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WALLETWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WALLETWATCH_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "WALLETWATCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "WALLETWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "WALLETWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WALLETWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "WALLETWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WALLETWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WALLETWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WALLETWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WALLETWATCH_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "WALLETWATCH_S3_PREFIX")
	setDuration(&cfg.S3.FlushInterval, "WALLETWATCH_S3_FLUSH_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WALLETWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WALLETWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WALLETWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WALLETWATCH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "WALLETWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
