// Package pricing resolves a current market price for a signal through an
// ordered chain of sources. Resolution never fails outward: each source's
// error is contained, and a chain with no answer reports absence, not error.
package pricing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/polysignal/walletwatch/internal/domain"
)

// Request identifies the price being asked for. PeerPrices feeds the
// last-resort source; everything else keys off market and outcome.
type Request struct {
	MarketID   string
	OutcomeIdx int
	// PeerPrices maps wallet -> entry price from the signal's own members.
	PeerPrices map[string]float64
}

// Source is one step of the chain. A source that is not configured returns
// domain.ErrUnconfigured and is skipped without logging noise.
type Source interface {
	Name() domain.PriceSource
	Quote(ctx context.Context, req Request) (float64, error)
}

// Resolver walks its sources in priority order and returns the first
// well-formed price in (0, 1].
type Resolver struct {
	sources []Source
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver creates a Resolver over sources, which are consulted strictly
// in the order given.
func NewResolver(logger *slog.Logger, sources ...Source) *Resolver {
	return &Resolver{
		sources: sources,
		logger:  logger.With(slog.String("component", "pricing")),
		now:     time.Now,
	}
}

// Resolve returns the first usable quote and its source tag. ok is false
// when every source came up empty; that is an answer, not an error.
func (r *Resolver) Resolve(ctx context.Context, req Request) (domain.PriceQuote, bool) {
	for _, src := range r.sources {
		value, err := src.Quote(ctx, req)
		if err != nil {
			if !errors.Is(err, domain.ErrUnconfigured) {
				r.logger.Debug("price source failed",
					slog.String("source", string(src.Name())),
					slog.String("market_id", req.MarketID),
					slog.String("error", err.Error()))
			}
			continue
		}
		if value <= 0 || value > 1 {
			r.logger.Debug("price source returned out-of-range value",
				slog.String("source", string(src.Name())),
				slog.Float64("value", value))
			continue
		}
		return domain.PriceQuote{
			Value:      value,
			Source:     src.Name(),
			ResolvedAt: r.now(),
		}, true
	}
	return domain.PriceQuote{}, false
}
