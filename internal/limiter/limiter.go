// Package limiter implements a dual sliding-window rate limiter for outbound
// API calls. Each data source gets its own Limiter instance; window state is
// process-local.
package limiter

import (
	"fmt"
	"sync"
	"time"
)

// ExceededError is returned when a window is at its ceiling. It is an
// expected, frequent condition: callers skip the call for this cycle and try
// again after Wait.
type ExceededError struct {
	Scope string // "short" or "long"
	Wait  time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s window), retry in %s", e.Scope, e.Wait.Round(time.Millisecond))
}

// WindowConfig is one sliding window: at most Limit admitted calls per Span.
type WindowConfig struct {
	Limit int
	Span  time.Duration
}

// Limiter tracks exact timestamps of admitted calls in two independent
// sliding windows (typically per-minute and per-day). A call is admitted only
// when both windows are under their ceiling after evicting aged entries.
type Limiter struct {
	mu    sync.Mutex
	short window
	long  window
	now   func() time.Time
}

type window struct {
	cfg   WindowConfig
	calls []time.Time // time-ordered queue of admitted call timestamps
}

// New creates a Limiter with the given short and long windows. A window with
// Limit <= 0 is unlimited.
func New(short, long WindowConfig) *Limiter {
	return &Limiter{
		short: window{cfg: short},
		long:  window{cfg: long},
		now:   time.Now,
	}
}

// Allow checks both windows and records the call when admitted. On denial it
// returns an *ExceededError naming the tighter window and how long until its
// oldest entry ages out; no call is recorded.
func (l *Limiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.short.evict(now)
	l.long.evict(now)

	if wait, ok := l.short.full(now); ok {
		return &ExceededError{Scope: "short", Wait: wait}
	}
	if wait, ok := l.long.full(now); ok {
		return &ExceededError{Scope: "long", Wait: wait}
	}

	l.short.record(now)
	l.long.record(now)
	return nil
}

// Status returns the current usage of both windows, after eviction.
func (l *Limiter) Status() (shortUsed, shortLimit, longUsed, longLimit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.short.evict(now)
	l.long.evict(now)
	return len(l.short.calls), l.short.cfg.Limit, len(l.long.calls), l.long.cfg.Limit
}

func (w *window) evict(now time.Time) {
	if w.cfg.Limit <= 0 {
		return
	}
	i := 0
	for i < len(w.calls) && now.Sub(w.calls[i]) > w.cfg.Span {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

func (w *window) full(now time.Time) (time.Duration, bool) {
	if w.cfg.Limit <= 0 || len(w.calls) < w.cfg.Limit {
		return 0, false
	}
	wait := w.cfg.Span - now.Sub(w.calls[0])
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func (w *window) record(now time.Time) {
	if w.cfg.Limit <= 0 {
		return
	}
	w.calls = append(w.calls, now)
}
