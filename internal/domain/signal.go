package domain

import (
	"fmt"
	"time"
)

// PriceSource tags which step of the resolution chain produced a quote.
type PriceSource string

const (
	SourceExchangeQuote     PriceSource = "primary-exchange-quote"
	SourceAggregatorQuote   PriceSource = "aggregator-quote"
	SourceTradeHistory      PriceSource = "trade-history-average"
	SourceSecondaryProvider PriceSource = "secondary-quote-provider"
	SourceTertiaryProvider  PriceSource = "tertiary-quote-provider"
	SourcePeerAverage       PriceSource = "peer-wallet-average"
)

// PriceQuote is the result of the price resolution chain. It is consumed once
// per suppression decision and never persisted.
type PriceQuote struct {
	Value      float64
	Source     PriceSource
	ResolvedAt time.Time
}

// CandidateSignal is a consensus group that crossed the distinct-wallet
// threshold. It exists only for the evaluation cycle that produced it.
type CandidateSignal struct {
	MarketID    string
	MarketTitle string
	MarketSlug  string
	OutcomeIdx  int
	Direction   Direction

	// Wallets holds the distinct wallets in order of first appearance.
	Wallets []string
	// WalletPrices maps wallet -> entry price, for the peer-average price
	// fallback and the divergence check.
	WalletPrices map[string]float64

	TotalUSD  float64
	AvgPrice  float64
	FirstSeen time.Time
	LastSeen  time.Time
}

// GroupKey identifies the consensus bucket: market, outcome, and direction.
// Direction is part of the key; opposite sides of the same outcome are never
// one consensus.
func GroupKey(marketID string, outcomeIdx int, dir Direction) string {
	return fmt.Sprintf("%s|%d|%s", marketID, outcomeIdx, dir)
}

// DedupKey is the alert deduplication key. Including the wallet count lets a
// grown consensus (more wallets joining) alert again.
func (s CandidateSignal) DedupKey() string {
	return fmt.Sprintf("%s|%d|%s|%d", s.MarketID, s.OutcomeIdx, s.Direction, len(s.Wallets))
}
