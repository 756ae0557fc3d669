package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polysignal/walletwatch/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// defaultReconnectDelay is the base delay before attempting to reconnect.
	defaultReconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// QuoteHandler receives a live price for a CLOB token id. Book snapshots
// deliver the midpoint; last-trade messages deliver the trade price.
type QuoteHandler func(tokenID string, price float64)

// WSClient is a WebSocket client for the CLOB market channel. It keeps the
// connection alive, restores subscriptions on reconnect, and forwards quote
// updates to registered handlers.
//
// All writes go through w.mu: gorilla connections do not tolerate concurrent
// writers. Each connection gets its own stop channel so the loops of a dead
// connection terminate before the replacement starts writing.
type WSClient struct {
	wsURL string

	mu       sync.Mutex
	conn     *websocket.Conn
	connStop chan struct{} // closed when the current connection is retired
	closed   bool

	// Token ids to resubscribe on reconnect.
	assets []string

	handlerMu sync.RWMutex
	handlers  []QuoteHandler

	reconnectDelay time.Duration

	done chan struct{}
}

// NewWSClient creates a client for the given WebSocket endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL:          wsURL,
		reconnectDelay: defaultReconnectDelay,
		done:           make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Previously subscribed assets are resubscribed.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	stop := make(chan struct{})
	w.conn = conn
	w.connStop = stop

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop(conn, stop)
	go w.pingLoop(conn, stop)

	if len(w.assets) > 0 {
		if err := w.sendSubscribe(w.assets); err != nil {
			// Retire inline (w.mu is held); the loops see a stale
			// connection and exit without reconnecting themselves.
			w.conn = nil
			w.connStop = nil
			close(stop)
			_ = conn.Close()
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe adds token ids to the market-channel subscription.
func (w *WSClient) Subscribe(assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	if err := w.sendSubscribe(assetIDs); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}

	known := make(map[string]struct{}, len(w.assets))
	for _, a := range w.assets {
		known[a] = struct{}{}
	}
	for _, a := range assetIDs {
		if _, ok := known[a]; !ok {
			w.assets = append(w.assets, a)
		}
	}
	return nil
}

// OnQuote registers a handler for live quote updates.
func (w *WSClient) OnQuote(h QuoteHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Close shuts down the connection and stops the loops.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendSubscribe writes a market-channel subscribe command. Caller holds w.mu.
func (w *WSClient) sendSubscribe(assetIDs []string) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(wsCommand{AssetIDs: assetIDs, Type: "market"})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// retire tears down conn and releases its loops. It reports whether conn was
// still current; only that one caller closes the stop channel and owns the
// follow-up reconnect.
func (w *WSClient) retire(conn *websocket.Conn, stop chan struct{}) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != conn {
		return false
	}
	w.conn = nil
	w.connStop = nil
	close(stop)
	_ = conn.Close()
	return true
}

// writePing pings conn unless it has been replaced since the loop started.
func (w *WSClient) writePing(conn *websocket.Conn) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != conn {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// readLoop reads messages from conn until it fails, then retires it and
// reconnects with backoff.
func (w *WSClient) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !w.retire(conn, stop) {
				return // already retired elsewhere, not ours to reconnect
			}
			select {
			case <-w.done:
				return
			default:
			}
			w.reconnect()
			return // a fresh readLoop starts from reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings on conn until the connection is retired.
func (w *WSClient) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := w.writePing(conn); err != nil {
				return
			}
		}
	}
}

// handleMessage routes a raw frame by event type. The market channel may
// batch messages into a JSON array.
func (w *WSClient) handleMessage(raw []byte) {
	if len(raw) > 0 && raw[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			return
		}
		for _, item := range batch {
			w.handleMessage(item)
		}
		return
	}

	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // silently drop unparseable frames
	}

	switch envelope.EventType {
	case "book":
		var book wsBookMessage
		if err := json.Unmarshal(raw, &book); err != nil {
			return
		}
		if mid, ok := bookMidpoint(&book); ok {
			w.dispatch(book.AssetID, mid)
		}

	case "last_trade_price":
		var ltp wsLastTradeMessage
		if err := json.Unmarshal(raw, &ltp); err != nil {
			return
		}
		if p, err := strconv.ParseFloat(ltp.Price, 64); err == nil {
			w.dispatch(ltp.AssetID, p)
		}
	}
}

func (w *WSClient) dispatch(tokenID string, price float64) {
	if tokenID == "" {
		return
	}
	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(tokenID, price)
	}
}

// bookMidpoint computes the mid of best bid and best ask. Levels arrive
// sorted away from the touch, so the best levels are the last entries.
func bookMidpoint(book *wsBookMessage) (float64, bool) {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0, false
	}
	bid, err1 := strconv.ParseFloat(book.Bids[len(book.Bids)-1].Price, 64)
	ask, err2 := strconv.ParseFloat(book.Asks[len(book.Asks)-1].Price, 64)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// reconnect re-establishes the connection with exponential backoff. It blocks
// until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := w.reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
