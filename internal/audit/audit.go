// Package audit keeps a buffer of gate decisions and periodically archives
// them as CSV to object storage. The archive is an operations aid; a failed
// upload never affects alerting.
package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/gate"
)

// maxBuffered caps the in-memory buffer; if uploads fall behind, the oldest
// rows are dropped.
const maxBuffered = 10000

// row is one recorded gate decision.
type row struct {
	ID          string
	At          time.Time
	MarketID    string
	MarketTitle string
	OutcomeIdx  int
	Direction   domain.Direction
	Wallets     int
	TotalUSD    float64
	Emitted     bool
	Reason      gate.Reason
	Price       float64
	PriceSource domain.PriceSource
	PriceKnown  bool
}

// Uploader stores one archive object. Satisfied by *s3blob.Writer.
type Uploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Recorder buffers decisions and flushes them on an interval. Keys are laid
// out per day: audit/2026-03-01/walletwatch-150405.csv.
type Recorder struct {
	uploader Uploader
	interval time.Duration
	prefix   string
	logger   *slog.Logger

	mu   sync.Mutex
	rows []row

	now func() time.Time
}

// NewRecorder creates a Recorder flushing to uploader every interval.
func NewRecorder(uploader Uploader, interval time.Duration, prefix string, logger *slog.Logger) *Recorder {
	if prefix == "" {
		prefix = "audit"
	}
	return &Recorder{
		uploader: uploader,
		interval: interval,
		prefix:   strings.TrimSuffix(prefix, "/"),
		logger:   logger.With(slog.String("component", "audit")),
		now:      time.Now,
	}
}

// RecordDecision appends a decision to the buffer.
func (r *Recorder) RecordDecision(sig domain.CandidateSignal, dec gate.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows = append(r.rows, row{
		ID:          uuid.NewString(),
		At:          r.now().UTC(),
		MarketID:    sig.MarketID,
		MarketTitle: sig.MarketTitle,
		OutcomeIdx:  sig.OutcomeIdx,
		Direction:   sig.Direction,
		Wallets:     len(sig.Wallets),
		TotalUSD:    sig.TotalUSD,
		Emitted:     dec.Emit,
		Reason:      dec.Reason,
		Price:       dec.Quote.Value,
		PriceSource: dec.Quote.Source,
		PriceKnown:  dec.PriceKnown,
	})
	if len(r.rows) > maxBuffered {
		r.rows = r.rows[len(r.rows)-maxBuffered:]
	}
}

// Run flushes the buffer on the interval until ctx is done, with a final
// flush on shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("audit recorder started", slog.Duration("flush_interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			r.flush(flushCtx)
			cancel()
			r.logger.Info("audit recorder stopped")
			return ctx.Err()
		case <-ticker.C:
			r.flush(ctx)
		}
	}
}

// flush renders the buffered rows as CSV and uploads them. On upload failure
// the rows go back to the front of the buffer for the next attempt.
func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	pending := r.rows
	r.rows = nil
	r.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	data, err := renderCSV(pending)
	if err != nil {
		r.logger.Error("audit csv render failed", slog.String("error", err.Error()))
		return
	}

	now := r.now().UTC()
	key := fmt.Sprintf("%s/%s/walletwatch-%s.csv",
		r.prefix, now.Format("2006-01-02"), now.Format("150405"))

	if err := r.uploader.Put(ctx, key, data, "text/csv"); err != nil {
		r.logger.Warn("audit upload failed, will retry",
			slog.String("key", key),
			slog.Int("rows", len(pending)),
			slog.String("error", err.Error()))
		r.mu.Lock()
		r.rows = append(pending, r.rows...)
		if len(r.rows) > maxBuffered {
			r.rows = r.rows[len(r.rows)-maxBuffered:]
		}
		r.mu.Unlock()
		return
	}

	r.logger.Info("audit archive uploaded", slog.String("key", key), slog.Int("rows", len(pending)))
}

func renderCSV(rows []row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "recorded_at", "market_id", "market_title", "outcome_index",
		"direction", "wallets", "total_usd", "emitted", "reason",
		"price", "price_source", "price_known",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, r := range rows {
		record := []string{
			r.ID,
			r.At.Format(time.RFC3339),
			r.MarketID,
			r.MarketTitle,
			strconv.Itoa(r.OutcomeIdx),
			string(r.Direction),
			strconv.Itoa(r.Wallets),
			strconv.FormatFloat(r.TotalUSD, 'f', 2, 64),
			strconv.FormatBool(r.Emitted),
			string(r.Reason),
			strconv.FormatFloat(r.Price, 'f', -1, 64),
			string(r.PriceSource),
			strconv.FormatBool(r.PriceKnown),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}
