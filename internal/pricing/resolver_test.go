package pricing

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysignal/walletwatch/internal/domain"
)

type stubSource struct {
	name  domain.PriceSource
	value float64
	err   error
	calls int
}

func (s *stubSource) Name() domain.PriceSource { return s.name }

func (s *stubSource) Quote(context.Context, Request) (float64, error) {
	s.calls++
	return s.value, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestResolver_FirstSourceWins(t *testing.T) {
	first := &stubSource{name: domain.SourceExchangeQuote, value: 0.55}
	second := &stubSource{name: domain.SourceAggregatorQuote, value: 0.60}

	r := NewResolver(discardLogger(), first, second)
	quote, ok := r.Resolve(context.Background(), Request{MarketID: "m1"})

	require.True(t, ok)
	assert.InDelta(t, 0.55, quote.Value, 1e-9)
	assert.Equal(t, domain.SourceExchangeQuote, quote.Source)
	assert.Equal(t, 0, second.calls, "later sources must not be consulted")
}

func TestResolver_FallsThroughFailuresAndUnconfigured(t *testing.T) {
	r := NewResolver(discardLogger(),
		&stubSource{name: domain.SourceExchangeQuote, err: domain.ErrUnconfigured},
		&stubSource{name: domain.SourceAggregatorQuote, err: errors.New("gamma down")},
		&stubSource{name: domain.SourceTradeHistory, value: 1.7}, // out of range
		&stubSource{name: domain.SourceSecondaryProvider, value: 0},
		&stubSource{name: domain.SourceTertiaryProvider, value: 0.31},
	)

	quote, ok := r.Resolve(context.Background(), Request{MarketID: "m1"})
	require.True(t, ok)
	assert.Equal(t, domain.SourceTertiaryProvider, quote.Source)
	assert.InDelta(t, 0.31, quote.Value, 1e-9)
}

func TestResolver_AllSourcesEmptyIsAbsenceNotError(t *testing.T) {
	r := NewResolver(discardLogger(),
		&stubSource{name: domain.SourceExchangeQuote, err: errors.New("boom")},
		&stubSource{name: domain.SourceAggregatorQuote, err: errors.New("boom")},
	)

	quote, ok := r.Resolve(context.Background(), Request{MarketID: "m1"})
	assert.False(t, ok)
	assert.Zero(t, quote)
}

func TestPeerAverageSource(t *testing.T) {
	src := NewPeerAverageSource()

	v, err := src.Quote(context.Background(), Request{
		PeerPrices: map[string]float64{"0xA": 0.4, "0xB": 0.6, "0xC": 0},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-9, "zero entries are excluded from the mean")

	_, err = src.Quote(context.Background(), Request{PeerPrices: map[string]float64{}})
	assert.Error(t, err)
}
