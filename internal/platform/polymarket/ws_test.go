package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysignal/walletwatch/internal/domain"
)

var testUpgrader = websocket.Upgrader{}

func awaitSubscribe(t *testing.T, subs <-chan string) string {
	t.Helper()
	select {
	case msg := <-subs:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subscribe command")
		return ""
	}
}

func TestWSClient_ReconnectRestoresSubscription(t *testing.T) {
	subs := make(chan string, 8)
	var connCount int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		n := atomic.AddInt32(&connCount, 1)

		_, msg, err := conn.ReadMessage()
		if err == nil {
			subs <- string(msg)
		}
		if n == 1 {
			// Drop the first connection to force a reconnect.
			conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewWSClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	c.reconnectDelay = 10 * time.Millisecond
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Subscribe([]string{"tok1"}))

	assert.Contains(t, awaitSubscribe(t, subs), "tok1")

	// The replacement connection must resubscribe on its own; exactly one
	// set of loops serves it (the first connection's loops were retired).
	assert.Contains(t, awaitSubscribe(t, subs), "tok1")
	assert.EqualValues(t, 2, atomic.LoadInt32(&connCount))
}

func TestWSClient_RetiredConnectionStopsPinging(t *testing.T) {
	c := NewWSClient("ws://unused")

	// A ping on a connection that is no longer current must fail instead of
	// writing, which terminates the old connection's ping loop.
	err := c.writePing(&websocket.Conn{})
	require.ErrorIs(t, err, domain.ErrWSDisconnect)
}
