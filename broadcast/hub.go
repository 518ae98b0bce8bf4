package broadcast

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"whatsapp-branch-bot/types"
	"whatsapp-branch-bot/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

// Event names on the dashboard channel.
const (
	EventStatus  = "estado"
	EventQR      = "qr"
	EventMessage = "mensaje"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
	qrImageSize    = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotSource supplies the current state of every initiated branch.
type SnapshotSource interface {
	Snapshot() []types.SessionSnapshot
}

// Envelope is the JSON frame exchanged with dashboards.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type StatusPayload struct {
	Branch string       `json:"branch"`
	Status types.Status `json:"status"`
}

type QRPayload struct {
	Branch string `json:"branch"`
	QR     string `json:"qr"`
	// Image is a PNG data URL of QR, empty if rendering failed.
	Image string `json:"image,omitempty"`
}

// Hub fans session events out to every connected dashboard. New clients get
// the current snapshot before any live event.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	source  SnapshotSource
	log     zerolog.Logger
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log.With().Str("component", "hub").Logger(),
	}
}

// SetSource sets where late joiners read the current state from.
func (h *Hub) SetSource(src SnapshotSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = src
}

func (h *Hub) Status(branch string, status types.Status) {
	h.publish(EventStatus, StatusPayload{Branch: branch, Status: status})
}

func (h *Hub) QR(branch, code string) {
	h.publish(EventQR, h.qrPayload(branch, code))
}

func (h *Hub) Message(msg types.FeedMessage) {
	h.publish(EventMessage, msg)
}

func (h *Hub) qrPayload(branch, code string) QRPayload {
	p := QRPayload{Branch: branch, QR: code}
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		h.log.Warn().Err(err).Str("branch", branch).Msg("failed to render QR image")
		return p
	}
	p.Image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	return p
}

func (h *Hub) publish(event string, data interface{}) {
	frame, err := encode(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	h.broadcast(frame)
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.log.Warn().Str("client", c.id).Msg("client buffer full, dropping event")
		}
	}
}

func encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// register queues the current snapshot for c and adds it to the client set
// under one lock, so no live event can slip in between.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.source != nil {
		for _, s := range h.source.Snapshot() {
			h.queue(c, EventStatus, StatusPayload{Branch: s.Branch, Status: s.Status})
			if s.Status == types.StatusAwaitingScan && s.QR != "" {
				h.queue(c, EventQR, h.qrPayload(s.Branch, s.QR))
			}
		}
	}
	h.clients[c] = struct{}{}
	utils.IncrementDashboardClients()
	h.log.Info().Str("client", c.id).Int("clients", len(h.clients)).Msg("dashboard connected")
}

func (h *Hub) queue(c *client, event string, data interface{}) {
	frame, err := encode(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		utils.DecrementDashboardClients()
		h.log.Info().Str("client", c.id).Int("clients", len(h.clients)).Msg("dashboard disconnected")
	}
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every dashboard.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		utils.DecrementDashboardClients()
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

// readPump rebroadcasts mensaje frames from the dashboard to every client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("client", c.id).Msg("websocket read error")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.hub.log.Debug().Err(err).Str("client", c.id).Msg("invalid frame from dashboard")
			continue
		}
		if env.Event != EventMessage {
			continue
		}
		c.hub.broadcast(message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
