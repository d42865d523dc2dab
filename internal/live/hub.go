package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/orrn/printfarm/internal/core"
	"github.com/orrn/printfarm/internal/logging"
	"github.com/orrn/printfarm/internal/notify"
)

const (
	MessagePrintStatus  = "print_status"
	MessageNotification = "notification"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 64
)

// Message is the envelope written to every dashboard connection.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans live print status snapshots and operator notifications out to
// connected websocket dashboards. The run loop owns every client's send
// channel.
type Hub struct {
	clients    map[*client]bool
	mu         sync.Mutex
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	stopOnce   sync.Once
	upgrader   websocket.Upgrader
	log        *logrus.Entry
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logging.Component("live"),
	}
}

func (h *Hub) Start() {
	go h.run()
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{"client_id": c.id, "clients": total}).Info("dashboard connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{"client_id": c.id, "clients": total}).Info("dashboard disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.WithField("client_id", c.id).Warn("dropping slow dashboard")
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) publish(msgType string, data interface{}) error {
	payload, err := json.Marshal(Message{Type: msgType, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- payload:
	default:
		h.log.WithField("type", msgType).Warn("live broadcast queue full, dropping message")
	}
	return nil
}

// BroadcastStatus pushes a tracker snapshot to every dashboard.
func (h *Hub) BroadcastStatus(snap *core.LiveStatus) {
	if err := h.publish(MessagePrintStatus, snap); err != nil {
		h.log.WithError(err).WithField("status_id", snap.StatusID).Error("encode live status")
	}
}

func (h *Hub) Name() string {
	return "live"
}

// Deliveries forwards operator notifications to the dashboards. Customer
// notifications never reach this shared feed.
func (h *Hub) Deliveries(_ context.Context, n *notify.Notification) ([]notify.Delivery, error) {
	if n.Audience != notify.AudienceAdmin {
		return nil, nil
	}
	return []notify.Delivery{{
		Target: "websocket",
		Send: func(context.Context) error {
			return h.publish(MessageNotification, n)
		},
	}}, nil
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump only watches for the connection going away.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.WithError(err).WithField("client_id", c.id).Warn("write to dashboard")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
