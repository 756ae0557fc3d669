package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/gate"
)

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	data [][]byte
	err  error
}

func (f *fakeUploader) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.data = append(f.data, data)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testSignal() domain.CandidateSignal {
	return domain.CandidateSignal{
		MarketID:    "m1",
		MarketTitle: "Will it rain?",
		OutcomeIdx:  1,
		Direction:   domain.DirectionBuy,
		Wallets:     []string{"0xa", "0xb", "0xc"},
		TotalUSD:    420.5,
	}
}

func TestRecorder_FlushWritesCSV(t *testing.T) {
	up := &fakeUploader{}
	r := NewRecorder(up, time.Hour, "audit", testLogger())
	r.now = func() time.Time { return time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC) }

	r.RecordDecision(testSignal(), gate.Decision{
		Emit:       true,
		Quote:      domain.PriceQuote{Value: 0.42, Source: domain.SourceTradeHistory},
		PriceKnown: true,
	})
	r.RecordDecision(testSignal(), gate.Decision{Reason: gate.ReasonDuplicate})

	r.flush(context.Background())

	require.Len(t, up.keys, 1)
	assert.Equal(t, "audit/2026-03-01/walletwatch-150405.csv", up.keys[0])

	lines := strings.Split(strings.TrimSpace(string(up.data[0])), "\n")
	require.Len(t, lines, 3, "header plus two rows")
	assert.Contains(t, lines[1], "Will it rain?")
	assert.Contains(t, lines[1], "trade-history-average")
	assert.Contains(t, lines[2], "duplicate")
}

func TestRecorder_UploadFailureKeepsRows(t *testing.T) {
	up := &fakeUploader{err: context.DeadlineExceeded}
	r := NewRecorder(up, time.Hour, "audit", testLogger())

	r.RecordDecision(testSignal(), gate.Decision{Emit: true})
	r.flush(context.Background())

	up.mu.Lock()
	up.err = nil
	up.mu.Unlock()

	r.flush(context.Background())
	require.Len(t, up.keys, 1, "rows survive a failed upload and flush later")
}

func TestRecorder_EmptyBufferSkipsUpload(t *testing.T) {
	up := &fakeUploader{}
	r := NewRecorder(up, time.Hour, "", testLogger())
	r.flush(context.Background())
	assert.Empty(t, up.keys)
}
