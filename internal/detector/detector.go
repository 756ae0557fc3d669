// Package detector implements consensus detection over a rolling time
// window. Positions are bucketed by (market, outcome, direction); a bucket
// whose distinct-wallet count reaches the threshold produces a candidate
// signal.
package detector

import (
	"time"

	"github.com/polysignal/walletwatch/internal/domain"
)

// Detector accumulates positions in keyed groups and evaluates them against
// the consensus threshold. It is not safe for concurrent use; the polling
// loop feeds it single-threaded.
type Detector struct {
	window       time.Duration
	minConsensus int

	groups map[string]*group

	now func() time.Time
}

type group struct {
	// members stay in observation time order; eviction trims the head.
	members []domain.Position
}

// New creates a Detector with the rolling window and the minimum number of
// distinct wallets that constitutes consensus.
func New(window time.Duration, minConsensus int) *Detector {
	return &Detector{
		window:       window,
		minConsensus: minConsensus,
		groups:       make(map[string]*group),
		now:          time.Now,
	}
}

// Ingest adds a position to its group, evicting members that have aged out
// of the window first. Eviction is lazy; there are no background timers.
func (d *Detector) Ingest(pos domain.Position) {
	key := domain.GroupKey(pos.MarketID, pos.OutcomeIdx, pos.Direction)
	g, ok := d.groups[key]
	if !ok {
		g = &group{}
		d.groups[key] = g
	}

	g.evict(d.now().Add(-d.window))

	// Keep time order; out-of-order arrivals are inserted, not appended.
	i := len(g.members)
	for i > 0 && g.members[i-1].ObservedAt.After(pos.ObservedAt) {
		i--
	}
	g.members = append(g.members, domain.Position{})
	copy(g.members[i+1:], g.members[i:])
	g.members[i] = pos
}

// Evaluate evicts every group against the window, garbage-collects the empty
// ones, and returns a candidate signal per group whose distinct-wallet count
// meets the threshold.
func (d *Detector) Evaluate() []domain.CandidateSignal {
	cutoff := d.now().Add(-d.window)

	var signals []domain.CandidateSignal
	for key, g := range d.groups {
		g.evict(cutoff)
		if len(g.members) == 0 {
			delete(d.groups, key)
			continue
		}
		if sig, ok := g.signal(d.minConsensus); ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

// GroupCount reports the number of live groups, for diagnostics.
func (d *Detector) GroupCount() int {
	return len(d.groups)
}

func (g *group) evict(cutoff time.Time) {
	i := 0
	for i < len(g.members) && g.members[i].ObservedAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		g.members = append(g.members[:0], g.members[i:]...)
	}
}

// signal builds a CandidateSignal when the group's distinct wallets meet the
// threshold. Distinct wallets count, not trades: one wallet trading five
// times is one voice.
func (g *group) signal(minConsensus int) (domain.CandidateSignal, bool) {
	seen := make(map[string]struct{}, len(g.members))
	var wallets []string
	prices := make(map[string]float64)

	var totalUSD, priceSum float64
	for _, m := range g.members {
		totalUSD += m.Size
		priceSum += m.Price
		if _, ok := seen[m.Wallet]; !ok {
			seen[m.Wallet] = struct{}{}
			wallets = append(wallets, m.Wallet)
			// First trade per wallet sets its entry price.
			prices[m.Wallet] = m.Price
		}
	}

	if len(wallets) < minConsensus {
		return domain.CandidateSignal{}, false
	}

	first := g.members[0]
	last := g.members[len(g.members)-1]
	return domain.CandidateSignal{
		MarketID:     first.MarketID,
		MarketTitle:  first.MarketTitle,
		MarketSlug:   first.MarketSlug,
		OutcomeIdx:   first.OutcomeIdx,
		Direction:    first.Direction,
		Wallets:      wallets,
		WalletPrices: prices,
		TotalUSD:     totalUSD,
		AvgPrice:     priceSum / float64(len(g.members)),
		FirstSeen:    first.ObservedAt,
		LastSeen:     last.ObservedAt,
	}, true
}
