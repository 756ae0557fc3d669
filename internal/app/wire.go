package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polysignal/walletwatch/internal/audit"
	s3blob "github.com/polysignal/walletwatch/internal/blob/s3"
	"github.com/polysignal/walletwatch/internal/cache/redis"
	"github.com/polysignal/walletwatch/internal/config"
	"github.com/polysignal/walletwatch/internal/detector"
	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/extractor"
	"github.com/polysignal/walletwatch/internal/feed"
	"github.com/polysignal/walletwatch/internal/gate"
	"github.com/polysignal/walletwatch/internal/ledger"
	"github.com/polysignal/walletwatch/internal/limiter"
	"github.com/polysignal/walletwatch/internal/monitor"
	"github.com/polysignal/walletwatch/internal/notify"
	"github.com/polysignal/walletwatch/internal/platform/finfeed"
	"github.com/polysignal/walletwatch/internal/platform/hashdive"
	"github.com/polysignal/walletwatch/internal/platform/polymarket"
	"github.com/polysignal/walletwatch/internal/pricing"
	"github.com/polysignal/walletwatch/internal/store"
	"github.com/polysignal/walletwatch/internal/store/postgres"
)

// Dependencies bundles everything the run loop needs. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Monitor *monitor.Monitor

	// Quotes is nil when the WebSocket quote feed is disabled.
	Quotes *feed.QuoteFeed

	// Audit is nil when S3 archiving is disabled.
	Audit *audit.Recorder

	Notifier *notify.Notifier
}

// newLimiter builds a dual-window limiter from config.
func newLimiter(cfg config.RateLimitConfig) *limiter.Limiter {
	return limiter.New(
		limiter.WindowConfig{Limit: cfg.ShortLimit, Span: cfg.ShortWindow.Duration},
		limiter.WindowConfig{Limit: cfg.LongLimit, Span: cfg.LongWindow.Duration},
	)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Polymarket API clients ---
	gamma := polymarket.NewGammaClient(
		cfg.Polymarket.GammaHost,
		newLimiter(cfg.Polymarket.GammaRateLimit),
		cfg.Polymarket.GammaCacheTTL.Duration,
		logger,
	)
	data := polymarket.NewDataClient(
		cfg.Polymarket.DataHost,
		newLimiter(cfg.Polymarket.DataRateLimit),
		cfg.Polymarket.DataCacheTTL.Duration,
		logger,
	)
	clob := polymarket.NewClobClient(
		cfg.Polymarket.ClobHost,
		newLimiter(cfg.Polymarket.ClobRateLimit),
		logger,
	)

	// --- WebSocket quote feed (optional) ---
	if cfg.Pricing.QuoteFeedEnabled && cfg.Polymarket.WsHost != "" {
		ws := polymarket.NewWSClient(cfg.Polymarket.WsHost)
		deps.Quotes = feed.NewQuoteFeed(ws, cfg.Pricing.QuoteMaxAge.Duration, logger)
		closers = append(closers, func() { _ = deps.Quotes.Close() })
	}

	// --- External quote providers (nil when unconfigured) ---
	var hd *hashdive.Client
	if cfg.Hashdive.Enabled() {
		hd = hashdive.New(
			cfg.Hashdive.BaseURL,
			cfg.Hashdive.APIKey,
			newLimiter(cfg.Hashdive.RateLimit),
			cfg.Hashdive.CacheTTL.Duration,
			logger,
		)
	}
	var ff *finfeed.Client
	if cfg.FinFeed.Enabled() {
		ff = finfeed.New(
			cfg.FinFeed.BaseURL,
			cfg.FinFeed.APIKey,
			newLimiter(cfg.FinFeed.RateLimit),
			cfg.FinFeed.CacheTTL.Duration,
			logger,
		)
	}

	// --- Price resolution chain, strongest source first ---
	resolver := pricing.NewResolver(logger,
		pricing.NewExchangeQuoteSource(clob, deps.Quotes, gamma),
		pricing.NewAggregatorQuoteSource(gamma),
		pricing.NewTradeHistorySource(data, cfg.Pricing.HistoryLimit, cfg.Pricing.HistoryStaleness.Duration),
		pricing.NewSecondaryQuoteSource(hd, gamma),
		pricing.NewTertiaryQuoteSource(ff, gamma),
		pricing.NewPeerAverageSource(),
	)

	// --- Alert ledger ---
	var alertLedger domain.AlertLedger
	if cfg.Ledger.UseRedis {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		alertLedger = redis.NewAlertLedger(redisClient, cfg.Ledger.Capacity, cfg.Ledger.TTL.Duration)
	} else {
		alertLedger = ledger.NewMemory(cfg.Ledger.Capacity, cfg.Ledger.TTL.Duration)
	}

	// --- Suppression gate ---
	g := gate.New(gamma, resolver, alertLedger, gate.Thresholds{
		ResolvedEpsilon: cfg.Gate.ResolvedEpsilon,
		ExtremeLow:      cfg.Gate.ExtremeLow,
		ExtremeHigh:     cfg.Gate.ExtremeHigh,
		MaxDivergence:   cfg.Gate.MaxDivergence,
		CheckDivergence: cfg.Gate.CheckDivergence,
	}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if deps.Notifier.SenderCount() == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("wire: no notification channel configured")
	}

	// --- Wallet roster ---
	var walletStore domain.WalletStore
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		walletStore = postgres.NewWalletStore(pgClient.Pool())
	} else {
		wallets := make([]domain.WatchedWallet, 0, len(cfg.Wallets))
		for _, w := range cfg.Wallets {
			wallets = append(wallets, domain.WatchedWallet{
				Address:     extractor.NormalizeWallet(w.Address),
				DisplayName: w.DisplayName,
				WinRate:     w.WinRate,
			})
		}
		walletStore = store.NewStaticWalletStore(wallets)
	}

	// --- S3 decision audit (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Audit = audit.NewRecorder(
			s3blob.NewWriter(s3Client),
			cfg.S3.FlushInterval.Duration,
			cfg.S3.Prefix,
			logger,
		)
	}

	// --- Monitor ---
	det := detector.New(cfg.Monitor.WindowSize.Duration, cfg.Monitor.MinConsensus)
	disp := monitor.NewDispatcher(deps.Notifier, alertLedger, cfg.Gate.OpsWindow.Duration, logger)

	var auditor monitor.Auditor
	if deps.Audit != nil {
		auditor = deps.Audit
	}
	deps.Monitor = monitor.New(monitor.Config{
		PollInterval:  cfg.Monitor.PollInterval.Duration,
		WindowSize:    cfg.Monitor.WindowSize.Duration,
		MinConsensus:  cfg.Monitor.MinConsensus,
		FetchLimit:    cfg.Monitor.FetchLimit,
		MaxConcurrent: cfg.Monitor.MaxConcurrent,
		RosterRefresh: cfg.Monitor.RosterRefresh.Duration,
	}, walletStore, data, det, g, disp, auditor, logger)

	return deps, cleanup, nil
}
