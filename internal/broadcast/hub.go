package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 5 * time.Second
	sendQueue    = 64
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to every connected overlay. Each client has its own
// queue and writer, so Broadcast never waits on the network; a client whose
// queue is full is dropped.
type Hub struct {
	log       *logrus.Logger
	clients   map[*client]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // overlays run inside OBS browser sources
			},
		},
	}
}

// ServeWS upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("failed to upgrade websocket")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendQueue)}

	h.clientsMu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.clientsMu.Unlock()

	h.log.WithFields(logrus.Fields{
		"remote":  r.RemoteAddr,
		"clients": total,
	}).Info("display surface connected")

	go h.writePump(c)
	go func() {
		defer h.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.WithError(err).Debug("dropping display surface")
			h.remove(c)
			// drain until remove closes the queue
			for range c.send {
			}
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
		time.Now().Add(time.Second))
}

func (h *Hub) Broadcast(channel string, data any) {
	payload, err := json.Marshal(Message{Channel: channel, Data: data, Timestamp: time.Now()})
	if err != nil {
		h.log.WithError(err).WithField("channel", channel).Error("failed to encode broadcast")
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.WithField("channel", channel).Warn("display surface too slow, dropping it")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.clientsMu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.clientsMu.Unlock()
}
