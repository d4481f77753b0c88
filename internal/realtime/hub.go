package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/example/carecircle/internal/metrics"
	"github.com/example/carecircle/internal/models"
	"github.com/example/carecircle/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Event is one frame of the realtime feed.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	accountID string
	role      models.Role
	conn      *websocket.Conn
	send      chan []byte
}

// Hub fans notifications and chat messages out to connected websocket clients.
type Hub struct {
	secret string
	log    logrus.FieldLogger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub that authenticates clients with JWTs signed by secret.
func NewHub(secret string, logger logrus.FieldLogger) *Hub {
	return &Hub{
		secret:  secret,
		log:     logger.WithField("component", "realtime"),
		clients: make(map[*client]struct{}),
	}
}

// Router serves the websocket feed, metrics and a health check.
func (h *Hub) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", h.ServeWS).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	return r
}

// ServeWS upgrades an authenticated request into a feed subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	session, err := utils.ParseToken(h.secret, r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &client{
		accountID: session.AccountID,
		role:      session.Role,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	metrics.RealtimeClientConnected()
	h.log.WithFields(logrus.Fields{"account_id": c.accountID, "role": c.role}).Debug("client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.RealtimeClientDisconnected()
	}
	h.mu.Unlock()
}

// readPump only keeps the connection alive; clients do not send commands.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) broadcast(event Event, match func(*client) bool) {
	frame, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("encode realtime event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.log.WithField("account_id", c.accountID).Warn("client too slow, dropping event")
		}
	}
}

// Deliver pushes a notification to every client of the receiving role. A
// notification addressed to one account only reaches that account.
func (h *Hub) Deliver(n models.Notification) {
	h.broadcast(Event{Type: "notification", Payload: n}, func(c *client) bool {
		if c.role != n.ReceiverRole {
			return false
		}
		return n.ReceiverID == "" || n.ReceiverID == c.accountID
	})
}

// PublishMessage pushes a chat message to the listed accounts.
func (h *Hub) PublishMessage(msg models.Message, recipients []string) {
	set := make(map[string]bool, len(recipients))
	for _, id := range recipients {
		set[id] = true
	}
	h.broadcast(Event{Type: "message", Payload: msg}, func(c *client) bool {
		return set[c.accountID]
	})
}

// ClientCount reports how many feeds are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		metrics.RealtimeClientDisconnected()
	}
}
