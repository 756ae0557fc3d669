// Package monitor runs the polling loop: fetch recent trades for every
// wallet on the roster, extract positions, feed the consensus detector, and
// push surviving signals through the gate to the dispatcher.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polysignal/walletwatch/internal/detector"
	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/extractor"
	"github.com/polysignal/walletwatch/internal/gate"
)

// TradeFetcher fetches a wallet's recent trades, newest first. Satisfied by
// *polymarket.DataClient.
type TradeFetcher interface {
	WalletTrades(ctx context.Context, wallet string, limit int) ([]domain.RawTrade, error)
}

// Auditor records every gate decision. Optional; see the audit package.
type Auditor interface {
	RecordDecision(sig domain.CandidateSignal, dec gate.Decision)
}

// Config holds the monitor's loop parameters.
type Config struct {
	PollInterval  time.Duration
	WindowSize    time.Duration
	MinConsensus  int
	FetchLimit    int
	MaxConcurrent int
	RosterRefresh time.Duration
}

// Monitor owns the cycle state: the roster snapshot, per-wallet cursors, and
// the detector. Ingest and evaluation run single-threaded; only the trade
// fetch fans out.
type Monitor struct {
	cfg        Config
	store      domain.WalletStore
	trades     TradeFetcher
	detector   *detector.Detector
	gate       *gate.Gate
	dispatcher *Dispatcher
	audit      Auditor // may be nil
	logger     *slog.Logger

	roster    map[string]domain.WatchedWallet
	rosterAge time.Time
	// cursors maps wallet -> the most recent trade id already processed.
	cursors map[string]string

	now func() time.Time
}

// New creates a Monitor.
func New(cfg Config, store domain.WalletStore, trades TradeFetcher, det *detector.Detector, g *gate.Gate, disp *Dispatcher, audit Auditor, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:        cfg,
		store:      store,
		trades:     trades,
		detector:   det,
		gate:       g,
		dispatcher: disp,
		audit:      audit,
		logger:     logger.With(slog.String("component", "monitor")),
		roster:     make(map[string]domain.WatchedWallet),
		cursors:    make(map[string]string),
		now:        time.Now,
	}
}

// Run loads the roster, announces startup, and polls until ctx is done. Only
// an unloadable initial roster is fatal; everything later is scoped to its
// cycle.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.refreshRoster(ctx); err != nil {
		return err
	}

	m.dispatcher.AnnounceStartup(ctx, len(m.roster), m.cfg.MinConsensus, m.cfg.WindowSize, m.cfg.PollInterval)
	m.logger.Info("monitor started",
		slog.Int("roster", len(m.roster)),
		slog.Duration("poll_interval", m.cfg.PollInterval),
		slog.Int("min_consensus", m.cfg.MinConsensus))

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// runCycle is one poll: concurrent fetch, then single-threaded ingest,
// evaluate, gate, dispatch.
func (m *Monitor) runCycle(ctx context.Context) {
	if m.cfg.RosterRefresh > 0 && m.now().Sub(m.rosterAge) >= m.cfg.RosterRefresh {
		if err := m.refreshRoster(ctx); err != nil {
			m.logger.Warn("roster refresh failed, keeping previous roster",
				slog.String("error", err.Error()))
		}
	}

	positions := m.fetchAll(ctx)
	for _, pos := range positions {
		m.detector.Ingest(pos)
	}

	for _, sig := range m.detector.Evaluate() {
		dec := m.gate.ShouldDispatch(ctx, sig)
		if m.audit != nil {
			m.audit.RecordDecision(sig, dec)
		}
		if !dec.Emit {
			m.dispatcher.ReportSuppression(ctx, sig, dec.Reason)
			continue
		}
		if err := m.dispatcher.DispatchAlert(ctx, sig, dec, m.roster); err != nil {
			m.logger.Error("dispatch failed", slog.String("error", err.Error()))
		}
	}
}

// fetchAll fans the trade fetch out across the roster with a bounded group.
// Each wallet's failure is isolated; the barrier is g.Wait. Results come back
// through a channel so cursor updates stay in this goroutine's hands after
// the barrier.
func (m *Monitor) fetchAll(ctx context.Context) []domain.Position {
	type fetchResult struct {
		wallet string
		fresh  []domain.Position
		newest string
	}

	results := make(chan fetchResult, len(m.roster))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrent)

	for addr := range m.roster {
		g.Go(func() error {
			raws, err := m.trades.WalletTrades(gctx, addr, m.cfg.FetchLimit)
			if err != nil {
				m.logger.Warn("trade fetch failed",
					slog.String("wallet", shortAddr(addr)),
					slog.String("error", err.Error()))
				return nil // wallet failures never abort the cycle
			}
			fresh, newest := m.extractFresh(addr, raws)
			if len(fresh) > 0 || newest != "" {
				results <- fetchResult{wallet: addr, fresh: fresh, newest: newest}
			}
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	var all []domain.Position
	for res := range results {
		if res.newest != "" {
			m.cursors[res.wallet] = res.newest
		}
		all = append(all, res.fresh...)
	}
	return all
}

// extractFresh walks a wallet's trades newest-first, stops at the cursor,
// and returns the unseen positions oldest-first along with the new cursor.
func (m *Monitor) extractFresh(wallet string, raws []domain.RawTrade) ([]domain.Position, string) {
	cursor := m.cursors[wallet]

	var fresh []domain.Position
	var newest string
	for _, raw := range raws {
		if raw.TxHash != "" && raw.TxHash == cursor {
			break
		}
		// The cursor advances over malformed trades too, so they are not
		// re-walked every cycle.
		if newest == "" && raw.TxHash != "" {
			newest = raw.TxHash
		}
		pos, ok := extractor.Extract(raw, wallet)
		if !ok {
			continue
		}
		fresh = append(fresh, pos)
	}

	// Reverse to oldest-first so the detector sees time order.
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	return fresh, newest
}

func (m *Monitor) refreshRoster(ctx context.Context) error {
	wallets, err := m.store.ListActive(ctx)
	if err != nil {
		return err
	}

	roster := make(map[string]domain.WatchedWallet, len(wallets))
	for _, w := range wallets {
		addr := extractor.NormalizeWallet(w.Address)
		w.Address = addr
		roster[addr] = w
	}
	m.roster = roster
	m.rosterAge = m.now()

	m.logger.Info("roster loaded", slog.Int("wallets", len(roster)))
	return nil
}
