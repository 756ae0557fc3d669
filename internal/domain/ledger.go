package domain

import (
	"context"
	"time"
)

// AlertRecord is one entry of the deduplication ledger, written only after a
// successful dispatch.
type AlertRecord struct {
	ID          string // uuid
	Key         string // dedup key, see CandidateSignal.DedupKey
	WalletCount int
	SentAt      time.Time
}

// AlertLedger is the deduplication ledger. Implementations are bounded: at
// most one live record per key, capacity-evicted FIFO, entries expiring by
// age.
type AlertLedger interface {
	// Seen reports whether an unexpired record exists for the key.
	Seen(ctx context.Context, key string) (bool, error)
	// Record stores a new record for rec.Key.
	Record(ctx context.Context, rec AlertRecord) error
}
