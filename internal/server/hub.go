package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"recruitdesk/internal/common"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub manages websocket clients and per-user notification rooms. A client
// receives nothing until it joins a room; membership is per connection and
// gone once the connection drops, which is why clients re-join after every
// reconnect.
type Hub struct {
	log *zap.SugaredLogger

	mu    sync.RWMutex
	rooms map[string]map[*hubClient]bool
}

type hubClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan common.PushEvent

	mu   sync.Mutex
	room string
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:   log,
		rooms: make(map[string]map[*hubClient]bool),
	}
}

// ServeWS upgrades the request and runs the connection until it drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &hubClient{
		hub:  h,
		conn: conn,
		send: make(chan common.PushEvent, 64),
	}

	go c.writePump()
	c.readPump()
}

// PublishNotification fans a freshly created notification out to the
// recipient's room.
func (h *Hub) PublishNotification(n common.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.log.Errorw("encode notification event", "error", err)
		return
	}
	h.publish(n.RecipientID, common.PushEvent{Event: common.EventNewNotification, Data: data})
}

// PublishCount pushes the authoritative unread count to the user's room.
func (h *Hub) PublishCount(userID string, count int64) {
	data, err := json.Marshal(common.CountSyncPayload{UnreadCount: int(count)})
	if err != nil {
		h.log.Errorw("encode count-sync event", "error", err)
		return
	}
	h.publish(userID, common.PushEvent{Event: common.EventCountSync, Data: data})
}

func (h *Hub) publish(room string, ev common.PushEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- ev:
		default:
			// slow consumer, drop rather than block the publisher
		}
	}
}

func (h *Hub) join(c *hubClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	previous := c.room
	c.room = room
	c.mu.Unlock()

	if previous != "" {
		delete(h.rooms[previous], c)
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*hubClient]bool)
	}
	h.rooms[room][c] = true
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	room := c.room
	c.mu.Unlock()

	if room != "" {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (c *hubClient) readPump() {
	defer func() {
		c.hub.remove(c)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var ev common.PushEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.hub.log.Warnw("dropping malformed client frame", "error", err)
			continue
		}

		if ev.Event != common.EventJoinRoom {
			continue
		}

		var userID string
		if err := json.Unmarshal(ev.Data, &userID); err != nil || userID == "" {
			c.hub.log.Warnw("invalid join payload", "error", err)
			continue
		}

		c.hub.join(c, userID)

		ack, err := json.Marshal(common.JoinedRoomPayload{Room: userID})
		if err != nil {
			continue
		}
		select {
		case c.send <- common.PushEvent{Event: common.EventJoinedRoom, Data: ack}:
		default:
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
