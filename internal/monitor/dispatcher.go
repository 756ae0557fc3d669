package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/gate"
)

// Event types used for notifier filtering.
const (
	EventConsensus = "consensus"
	EventOps       = "ops"
)

// AlertSender delivers a formatted message on a named event. Satisfied by
// *notify.Notifier.
type AlertSender interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Dispatcher turns gate decisions into outgoing messages. Alerts go to the
// consensus event; suppressions are mirrored to the ops event, rate-limited
// per (market, outcome, direction, reason) so a persistently suppressed
// signal does not flood the channel.
type Dispatcher struct {
	sender    AlertSender
	ledger    domain.AlertLedger
	opsWindow time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	opsSent map[string]time.Time

	now func() time.Time
}

// NewDispatcher creates a Dispatcher. opsWindow spaces repeated suppression
// notes for the same signal and reason.
func NewDispatcher(sender AlertSender, ledger domain.AlertLedger, opsWindow time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		ledger:    ledger,
		opsWindow: opsWindow,
		logger:    logger.With(slog.String("component", "dispatcher")),
		opsSent:   make(map[string]time.Time),
		now:       time.Now,
	}
}

// DispatchAlert formats and sends the consensus alert, then records the
// dedup key. The record is written only after a successful send so a failed
// delivery retries on the next cycle.
func (d *Dispatcher) DispatchAlert(ctx context.Context, sig domain.CandidateSignal, dec gate.Decision, roster map[string]domain.WatchedWallet) error {
	title, body := formatAlert(sig, dec, roster)

	if err := d.sender.Notify(ctx, EventConsensus, title, body); err != nil {
		return fmt.Errorf("monitor: dispatch alert %s: %w", sig.DedupKey(), err)
	}

	rec := domain.AlertRecord{
		ID:          uuid.NewString(),
		Key:         sig.DedupKey(),
		WalletCount: len(sig.Wallets),
		SentAt:      d.now(),
	}
	if err := d.ledger.Record(ctx, rec); err != nil {
		// The alert is already out; a ledger failure only risks a duplicate.
		d.logger.Warn("ledger record failed",
			slog.String("key", rec.Key),
			slog.String("error", err.Error()))
	}

	d.logger.Info("alert dispatched",
		slog.String("market_id", sig.MarketID),
		slog.String("direction", string(sig.Direction)),
		slog.Int("wallets", len(sig.Wallets)),
		slog.Float64("total_usd", sig.TotalUSD))
	return nil
}

// ReportSuppression logs a suppression and mirrors it to the ops channel at
// most once per window per signal/reason. Duplicate suppressions are
// expected every cycle and stay log-only.
func (d *Dispatcher) ReportSuppression(ctx context.Context, sig domain.CandidateSignal, reason gate.Reason) {
	d.logger.Info("alert suppressed",
		slog.String("market_id", sig.MarketID),
		slog.Int("outcome", sig.OutcomeIdx),
		slog.String("direction", string(sig.Direction)),
		slog.String("reason", string(reason)))

	if reason == gate.ReasonDuplicate {
		return
	}

	key := fmt.Sprintf("%s|%d|%s|%s", sig.MarketID, sig.OutcomeIdx, sig.Direction, reason)

	d.mu.Lock()
	now := d.now()
	// Aged-out entries would never suppress again; drop them so the map
	// stays bounded by the set of currently suppressed signals.
	for k, sent := range d.opsSent {
		if now.Sub(sent) >= d.opsWindow {
			delete(d.opsSent, k)
		}
	}
	if last, ok := d.opsSent[key]; ok && now.Sub(last) < d.opsWindow {
		d.mu.Unlock()
		return
	}
	d.opsSent[key] = now
	d.mu.Unlock()

	title, body := formatSuppression(sig, reason)
	if err := d.sender.Notify(ctx, EventOps, title, body); err != nil {
		d.logger.Warn("ops notification failed", slog.String("error", err.Error()))
	}
}

// AnnounceStartup sends the startup summary to the ops channel.
func (d *Dispatcher) AnnounceStartup(ctx context.Context, rosterSize, minConsensus int, window, pollInterval time.Duration) {
	title, body := formatStartupSummary(rosterSize, minConsensus, window, pollInterval)
	if err := d.sender.Notify(ctx, EventOps, title, body); err != nil {
		d.logger.Warn("startup notification failed", slog.String("error", err.Error()))
	}
}
