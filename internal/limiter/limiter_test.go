package limiter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(short, long WindowConfig) (*Limiter, *time.Time) {
	l := New(short, long)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_ShortWindowBoundedness(t *testing.T) {
	l, now := newTestLimiter(
		WindowConfig{Limit: 3, Span: time.Minute},
		WindowConfig{Limit: 100, Span: 24 * time.Hour},
	)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(), "call %d should be admitted", i)
	}

	err := l.Allow()
	require.Error(t, err, "call past the ceiling must be denied")

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, "short", exceeded.Scope)
	assert.Greater(t, exceeded.Wait, time.Duration(0))

	// Once the oldest admitted call ages past the window, the ceiling resets.
	*now = now.Add(time.Minute + time.Second)
	assert.NoError(t, l.Allow())
}

func TestLimiter_LongWindowIndependent(t *testing.T) {
	l, now := newTestLimiter(
		WindowConfig{Limit: 100, Span: time.Minute},
		WindowConfig{Limit: 5, Span: time.Hour},
	)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow())
		*now = now.Add(2 * time.Minute) // keep the short window empty
	}

	err := l.Allow()
	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, "long", exceeded.Scope)
}

func TestLimiter_DenialDoesNotRecord(t *testing.T) {
	l, now := newTestLimiter(
		WindowConfig{Limit: 1, Span: time.Minute},
		WindowConfig{Limit: 0, Span: 0}, // unlimited
	)

	require.NoError(t, l.Allow())
	require.Error(t, l.Allow())
	require.Error(t, l.Allow(), "denied calls must not consume quota")

	*now = now.Add(61 * time.Second)
	assert.NoError(t, l.Allow(), "exactly one slot should free up")

	used, limit, _, _ := l.Status()
	assert.Equal(t, 1, used)
	assert.Equal(t, 1, limit)
}

func TestLimiter_UnlimitedWindows(t *testing.T) {
	l, _ := newTestLimiter(WindowConfig{}, WindowConfig{})
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Allow())
	}
}
