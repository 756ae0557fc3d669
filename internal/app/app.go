// Package app provides the top-level application lifecycle management for the
// wallet monitor. It wires together all dependencies (API clients, price
// resolution, the suppression gate, the alert ledger, notifications, and the
// optional audit archive) and runs the polling loop until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/polysignal/walletwatch/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the monitor
// and its supporting goroutines, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting wallet monitor",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Int("min_consensus", a.cfg.Monitor.MinConsensus),
		slog.Duration("poll_interval", a.cfg.Monitor.PollInterval.Duration),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// The quote feed is best effort; the price chain falls through to REST
	// sources when it is down.
	if deps.Quotes != nil {
		if err := deps.Quotes.Start(ctx); err != nil {
			a.logger.Warn("quote feed unavailable, continuing without it",
				slog.String("error", err.Error()))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Monitor.Run(gctx)
	})
	if deps.Audit != nil {
		g.Go(func() error {
			return deps.Audit.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("app: run: %w", err)
	}
	a.logger.Info("clean shutdown")
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
