package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polysignal/walletwatch/internal/domain"
)

// AlertLedger implements domain.AlertLedger on Redis so deduplication
// survives restarts. Each dedup key becomes a TTL'd string key
// "alert:{key}"; a capped list "alerts:recent" mirrors insertion order and
// evicts the oldest keys past capacity, matching the in-memory ledger's FIFO
// behavior.
type AlertLedger struct {
	rdb      *redis.Client
	capacity int64
	ttl      time.Duration
}

const recentKey = "alerts:recent"

// NewAlertLedger creates an AlertLedger backed by the given Client.
func NewAlertLedger(c *Client, capacity int, ttl time.Duration) *AlertLedger {
	return &AlertLedger{
		rdb:      c.Underlying(),
		capacity: int64(capacity),
		ttl:      ttl,
	}
}

func alertKey(key string) string {
	return "alert:" + key
}

// Seen reports whether an unexpired record exists for the dedup key.
func (l *AlertLedger) Seen(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, alertKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: seen %s: %w", key, err)
	}
	return n > 0, nil
}

// Record stores the alert record and enforces the capacity by evicting the
// oldest ledger entries.
func (l *AlertLedger) Record(ctx context.Context, rec domain.AlertRecord) error {
	pipe := l.rdb.TxPipeline()
	pipe.Set(ctx, alertKey(rec.Key), rec.ID, l.ttl)
	pipe.LPush(ctx, recentKey, rec.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: record %s: %w", rec.Key, err)
	}

	// Trim overflow and drop the evicted keys' dedup entries.
	for {
		n, err := l.rdb.LLen(ctx, recentKey).Result()
		if err != nil {
			return fmt.Errorf("redis: ledger length: %w", err)
		}
		if n <= l.capacity {
			return nil
		}
		evicted, err := l.rdb.RPop(ctx, recentKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("redis: evict oldest: %w", err)
		}
		if err := l.rdb.Del(ctx, alertKey(evicted)).Err(); err != nil {
			return fmt.Errorf("redis: delete evicted %s: %w", evicted, err)
		}
	}
}

var _ domain.AlertLedger = (*AlertLedger)(nil)
