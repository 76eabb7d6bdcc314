package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/infrastructure/config"
	"github.com/nerrad567/spimrig/internal/infrastructure/logging"
	"github.com/nerrad567/spimrig/internal/setup"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// eventTypes lists the rig events a client may filter on.
var eventTypes = []setup.EventType{
	setup.EventBind,
	setup.EventUnbind,
	setup.EventMove,
	setup.EventHome,
	setup.EventVelocity,
	setup.EventLaser,
	setup.EventSnap,
}

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType setup.EventType `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   any             `json:"payload,omitempty"`
}

// WSSubscribePayload selects the rig events a client receives. An empty
// list matches everything, so {} subscribes to all events of all slots.
type WSSubscribePayload struct {
	Events []setup.EventType `json:"events,omitempty"`
	Slots  []device.Slot     `json:"slots,omitempty"`
}

// WSSubscribeResponse confirms a subscription and carries the current state
// of the slots it covers.
type WSSubscribeResponse struct {
	Events []setup.EventType  `json:"events"`
	Slots  []device.Slot      `json:"slots"`
	Status []setup.SlotStatus `json:"status,omitempty"`
}

// eventFilter matches rig events by type and slot.
type eventFilter struct {
	types map[setup.EventType]struct{}
	slots map[device.Slot]struct{}
}

// newEventFilter validates p and builds its filter.
func newEventFilter(p WSSubscribePayload) (*eventFilter, error) {
	f := &eventFilter{}
	if len(p.Events) > 0 {
		f.types = make(map[setup.EventType]struct{}, len(p.Events))
		for _, t := range p.Events {
			if !slices.Contains(eventTypes, t) {
				return nil, fmt.Errorf("unknown event type %q", t)
			}
			f.types[t] = struct{}{}
		}
	}
	if len(p.Slots) > 0 {
		f.slots = make(map[device.Slot]struct{}, len(p.Slots))
		for _, s := range p.Slots {
			if _, err := device.ParseSlot(string(s)); err != nil {
				return nil, err
			}
			f.slots[s] = struct{}{}
		}
	}
	return f, nil
}

func (f *eventFilter) matches(e setup.Event) bool {
	if f.types != nil {
		if _, ok := f.types[e.Type]; !ok {
			return false
		}
	}
	if f.slots != nil {
		if _, ok := f.slots[e.Slot]; !ok {
			return false
		}
	}
	return true
}

func (f *eventFilter) coversSlot(s device.Slot) bool {
	if f.slots == nil {
		return true
	}
	_, ok := f.slots[s]
	return ok
}

// Hub pushes rig events to WebSocket clients.
//
// Each client holds at most one filter. Clients without a filter receive
// nothing but responses to their own requests.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	status  func() []setup.SlotStatus
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	filter *eventFilter
	mu     sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. status, when set, supplies the slot snapshot sent
// with each subscribe response.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, status func() []setup.SlotStatus) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		status:  status,
		clients: make(map[*WSClient]struct{}),
	}
}

// newClient creates a client of h without a filter.
func (h *Hub) newClient(conn *websocket.Conn) *WSClient {
	return &WSClient{hub: h, conn: conn, send: make(chan []byte, wsSendBufferSize)}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the caller that removes it from the map
// closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify implements setup.Observer. The event is encoded once and queued
// for every client whose filter matches it.
func (h *Hub) Notify(e setup.Event) {
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(e) {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: e.Type,
		Timestamp: e.Time.UTC().Format(time.RFC3339Nano),
		Payload:   e,
	})
	if err != nil {
		h.logger.Error("failed to marshal rig event", "error", err)
		return
	}
	for _, c := range clients {
		c.trySend(data)
	}
	h.logger.Debug("rig event pushed", "type", e.Type, "slot", e.Slot, "recipients", len(clients))
}

// closeAll disconnects all clients and closes their send channels so the
// write pumps exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := s.hub.newClient(conn)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) wants(e setup.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter != nil && c.filter.matches(e)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	}
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	c.conn.SetPongHandler(extend)
	_ = extend("")

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any message counts.
		_ = extend("")
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if write(websocket.TextMessage, message) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg struct {
		Type    string             `json:"type"`
		ID      string             `json:"id"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid message: "+err.Error())
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg.ID, msg.Payload)
	case WSTypeUnsubscribe:
		c.mu.Lock()
		c.filter = nil
		c.mu.Unlock()
		c.sendResponse(msg.ID, WSTypeResponse, nil)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// subscribe replaces the client's filter and answers with the state of the
// slots it covers.
func (c *WSClient) subscribe(id string, p WSSubscribePayload) {
	f, err := newEventFilter(p)
	if err != nil {
		c.sendError(id, err.Error())
		return
	}

	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
	c.hub.logger.Debug("websocket client subscribed", "events", p.Events, "slots", p.Slots)

	resp := WSSubscribeResponse{Events: p.Events, Slots: p.Slots}
	if c.hub.status != nil {
		for _, st := range c.hub.status() {
			if f.coversSlot(st.Slot) {
				resp.Status = append(resp.Status, st)
			}
		}
	}
	c.sendResponse(id, WSTypeResponse, resp)
}

// trySend queues data unless the client is gone or its buffer is full.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}

var _ setup.Observer = (*Hub)(nil)
