// Package realtime pushes per-user events to browser clients over websockets.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Event is the JSON frame sent to clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type envelope struct {
	userID  uint
	payload []byte
}

// Hub routes events to every connection of a user. Run must be running for Push to deliver.
type Hub struct {
	clients    map[uint]map[*Client]struct{}
	deliver    chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	log        *zap.Logger
}

// Client is one websocket connection of one user.
type Client struct {
	hub    *Hub
	userID uint
	conn   *websocket.Conn
	send   chan []byte
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[uint]map[*Client]struct{}),
		deliver:    make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.Named("hub"),
	}
}

// Run dispatches until Stop is called, then closes every connection.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			conns := h.clients[c.userID]
			if conns == nil {
				conns = make(map[*Client]struct{})
				h.clients[c.userID] = conns
			}
			conns[c] = struct{}{}
			h.log.Debug("client connected", zap.Uint("user_id", c.userID), zap.Int("connections", len(conns)))

		case c := <-h.unregister:
			h.drop(c)

		case env := <-h.deliver:
			for c := range h.clients[env.userID] {
				select {
				case c.send <- env.payload:
				default:
					// slow consumer
					h.drop(c)
				}
			}

		case <-h.done:
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
				}
			}
			h.clients = map[uint]map[*Client]struct{}{}
			return
		}
	}
}

func (h *Hub) drop(c *Client) {
	conns, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
}

// Stop ends Run. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Push queues an event for userID. It never blocks on a stopped or saturated hub.
func (h *Hub) Push(userID uint, event string, data interface{}) {
	payload, err := json.Marshal(Event{Type: event, Data: data})
	if err != nil {
		h.log.Warn("encode event", zap.String("type", event), zap.Error(err))
		return
	}
	select {
	case h.deliver <- envelope{userID: userID, payload: payload}:
	case <-h.done:
	default:
		h.log.Warn("event dropped, hub queue full", zap.Uint("user_id", userID), zap.String("type", event))
	}
}

// Serve upgrades the request and attaches the connection to userID.
func (h *Hub) Serve(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, userID uint) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{hub: h, userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return nil
	}
	go c.writePump()
	go c.readPump()
	return nil
}

// readPump only keeps the connection alive; clients never send commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("websocket write error", zap.Error(err))
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
