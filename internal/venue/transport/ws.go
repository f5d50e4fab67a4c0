// Package transport holds the reconnecting WebSocket client shared by
// every venue's DataClient/ExecutionClient: a connect/ping/read-deadline/
// exponential-backoff shape generalized from a venue's two hardcoded
// channels (market/user, asset IDs/condition IDs) into a single
// reconnecting socket that publishes raw frames to a Dispatch callback,
// leaving venue-specific decoding to the adapter that owns it.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// Dispatch is called with every raw inbound frame; decoding into a venue's
// own wire types is the caller's responsibility.
type Dispatch func(data []byte)

// Resubscribe is invoked once after every successful (re)connect, so the
// caller can replay whatever subscription messages it needs via SendJSON.
type Resubscribe func(ws *WS) error

// WS is a single reconnecting WebSocket connection. Run blocks, dialing,
// reading, and auto-reconnecting with exponential backoff (1s -> 30s)
// until ctx is canceled.
type WS struct {
	url         string
	dispatch    Dispatch
	resubscribe Resubscribe
	logger      *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

// New builds a WS client. dispatch decodes and routes inbound frames;
// resubscribe replays subscriptions after every (re)connect.
func New(url string, dispatch Dispatch, resubscribe Resubscribe, logger *slog.Logger) *WS {
	if logger == nil {
		logger = slog.Default()
	}
	return &WS{url: url, dispatch: dispatch, resubscribe: resubscribe, logger: logger}
}

// Run connects and maintains the connection until ctx is done, reconnecting
// with exponential backoff on any read/dial failure.
func (w *WS) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := w.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (w *WS) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()

	defer func() {
		w.connMu.Lock()
		conn.Close()
		w.conn = nil
		w.connMu.Unlock()
	}()

	if w.resubscribe != nil {
		if err := w.resubscribe(w); err != nil {
			return fmt.Errorf("resubscribe: %w", err)
		}
	}

	w.logger.Info("websocket connected", "url", w.url)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go w.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		w.dispatch(msg)
	}
}

func (w *WS) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// SendJSON writes v as a JSON text frame, used by Resubscribe callbacks
// and outbound order/cancel commands over venues that speak WS.
func (w *WS) SendJSON(v interface{}) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(v)
}

// WriteMessage writes a raw frame of the given websocket message type.
func (w *WS) WriteMessage(msgType int, data []byte) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(msgType, data)
}

// Close shuts down the active connection, if any.
func (w *WS) Close() error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}
