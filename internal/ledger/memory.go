// Package ledger provides the default in-memory alert deduplication ledger.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/polysignal/walletwatch/internal/domain"
)

// Memory is a bounded in-process alert ledger. Insertion order is kept in a
// FIFO queue; past capacity the oldest record is evicted regardless of
// expiry. Expired records count as unseen.
type Memory struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration

	records map[string]domain.AlertRecord
	order   []string

	now func() time.Time
}

// NewMemory creates a Memory ledger. capacity <= 0 falls back to 100; a
// ttl <= 0 means records never expire, only capacity evicts them.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	return &Memory{
		capacity: capacity,
		ttl:      ttl,
		records:  make(map[string]domain.AlertRecord),
		now:      time.Now,
	}
}

// Seen reports whether an unexpired record exists for key.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return false, nil
	}
	if m.ttl > 0 && m.now().Sub(rec.SentAt) >= m.ttl {
		return false, nil
	}
	return true, nil
}

// Record stores rec, replacing any previous record for the same key and
// evicting the oldest entries past capacity.
func (m *Memory) Record(_ context.Context, rec domain.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.Key]; !exists {
		m.order = append(m.order, rec.Key)
	}
	m.records[rec.Key] = rec

	for len(m.order) > m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.records, oldest)
	}
	return nil
}

// Len reports the number of live records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var _ domain.AlertLedger = (*Memory)(nil)
