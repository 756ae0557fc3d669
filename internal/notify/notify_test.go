package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeSender struct {
	name  string
	errs  []error // error per attempt; nil past the end
	calls int
}

func (f *fakeSender) Send(context.Context, string, string) error {
	defer func() { f.calls++ }()
	if f.calls < len(f.errs) {
		return f.errs[f.calls]
	}
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifier_RetriesOnlyRateLimits(t *testing.T) {
	limited := &RateLimitedError{Sender: "fake", RetryAfter: time.Millisecond}

	s := &fakeSender{name: "fake", errs: []error{limited, limited}}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.NotifyAll(context.Background(), "t", "m"))
	assert.Equal(t, 3, s.calls, "two rate limits then success")

	// A plain delivery error is final.
	s = &fakeSender{name: "fake", errs: []error{errors.New("boom")}}
	n = NewNotifier([]Sender{s}, nil, discardLogger())
	require.Error(t, n.NotifyAll(context.Background(), "t", "m"))
	assert.Equal(t, 1, s.calls)
}

func TestNotifier_GivesUpAfterMaxAttempts(t *testing.T) {
	limited := &RateLimitedError{Sender: "fake", RetryAfter: time.Millisecond}
	s := &fakeSender{name: "fake", errs: []error{limited, limited, limited, limited}}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Equal(t, maxSendAttempts, s.calls)
}

func TestNotifier_EventFilter(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"consensus"}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "ops", "t", "m"))
	assert.Equal(t, 0, s.calls, "filtered event never reaches senders")

	require.NoError(t, n.Notify(context.Background(), "consensus", "t", "m"))
	assert.Equal(t, 1, s.calls)
}

func TestNotifier_SenderIsolation(t *testing.T) {
	bad := &fakeSender{name: "bad", errs: []error{errors.New("down")}}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Equal(t, 1, good.calls, "healthy sender still delivers")
}

func TestTelegramSender_ParsesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"ok":false,"error_code":429,"parameters":{"retry_after":17}}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("token", "chat")
	s.baseURL = srv.URL

	err := s.Send(context.Background(), "t", "m")
	var limited *RateLimitedError
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, 17*time.Second, limited.RetryAfter)
	assert.Equal(t, "telegram", limited.Sender)
}

func TestDiscordSender_ParsesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"You are being rate limited.","retry_after":2.5}`))
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)

	err := s.Send(context.Background(), "t", "m")
	var limited *RateLimitedError
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, 2500*time.Millisecond, limited.RetryAfter)
}
