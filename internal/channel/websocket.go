// Package channel provides the push transport behind the sync core. The
// websocket implementation keeps redialing on its own; room membership does
// not survive a reconnect, so consumers re-join on every connected event.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"recruitdesk/internal/common"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("channel not connected")

// EndpointURL turns the backend base URL into the notifications
// websocket endpoint.
func EndpointURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = "/ws/notifications"
	return u.String(), nil
}

// Websocket implements common.Channel over a single websocket connection.
// Events are delivered in the order they arrive on the wire; transport
// transitions are interleaved as EventConnected/EventDisconnected frames.
type Websocket struct {
	url           string
	header        http.Header
	reconnectWait time.Duration
	log           *zap.SugaredLogger

	events chan common.PushEvent
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closed  bool

	writeMu sync.Mutex
}

func NewWebsocket(endpoint, authToken string, reconnectWait time.Duration, log *zap.SugaredLogger) *Websocket {
	header := http.Header{}
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}
	if reconnectWait <= 0 {
		reconnectWait = 5 * time.Second
	}

	return &Websocket{
		url:           endpoint,
		header:        header,
		reconnectWait: reconnectWait,
		log:           log,
		events:        make(chan common.PushEvent, 64),
		done:          make(chan struct{}),
	}
}

// Connect starts the dial loop. It returns immediately; the first
// EventConnected frame on Events signals the transport is live.
func (w *Websocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("channel already closed")
	}
	if w.started {
		return errors.New("channel already connected")
	}
	w.started = true

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// JoinRoom subscribes the current connection to the user's room.
func (w *Websocket) JoinRoom(userID string) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(userID)
	if err != nil {
		return fmt.Errorf("encode join payload: %w", err)
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := conn.WriteJSON(common.PushEvent{Event: common.EventJoinRoom, Data: data}); err != nil {
		return fmt.Errorf("send join frame: %w", err)
	}
	return nil
}

func (w *Websocket) Events() <-chan common.PushEvent {
	return w.events
}

// Close tears the channel down. The events channel is closed once the
// dial loop has fully stopped.
func (w *Websocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	conn := w.conn
	close(w.done)
	w.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if started {
		w.wg.Wait()
	} else {
		close(w.events)
	}
	return nil
}

func (w *Websocket) run(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.events)

	for {
		if w.isDone(ctx) {
			return
		}

		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, w.url, w.header)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			if w.isDone(ctx) {
				return
			}
			w.log.Warnw("websocket dial failed", "url", w.url, "error", err)
			if !w.wait(ctx) {
				return
			}
			continue
		}

		w.setConn(conn)
		w.emit(common.PushEvent{Event: common.EventConnected})

		w.readLoop(conn)

		w.setConn(nil)
		conn.Close()

		if w.isDone(ctx) {
			return
		}
		w.emit(common.PushEvent{Event: common.EventDisconnected})

		if !w.wait(ctx) {
			return
		}
	}
}

func (w *Websocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var ev common.PushEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			w.log.Warnw("dropping malformed push frame", "error", err)
			continue
		}
		if ev.Event == "" {
			continue
		}

		w.emit(ev)
	}
}

func (w *Websocket) emit(ev common.PushEvent) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *Websocket) wait(ctx context.Context) bool {
	select {
	case <-time.After(w.reconnectWait):
		return true
	case <-w.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *Websocket) setConn(conn *websocket.Conn) {
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
}

func (w *Websocket) isDone(ctx context.Context) bool {
	select {
	case <-w.done:
		return true
	default:
	}
	return ctx.Err() != nil
}
