package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/irbridge/core/internal/device"
	"github.com/irbridge/core/internal/dispatch"
	"github.com/irbridge/core/internal/infrastructure/config"
	"github.com/irbridge/core/internal/infrastructure/logging"
	"github.com/irbridge/core/internal/requestpool"
)

// HandlePrefix is the channel-handle prefix owned by the WebSocket hub.
// Register the hub on the dispatch mux under this prefix.
const HandlePrefix = "ws"

// wsSendBufferSize is the per-connection outbound message buffer size.
const wsSendBufferSize = 256

// Hub tracks live WebSocket connections by channel handle. Every
// connection, client or device, is issued a fresh "ws:<uuid>" handle on
// upgrade; the handle is the address the dispatch engine pushes to, so
// Hub implements dispatch.PushChannel.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	conns  map[string]*wsConn
	mu     sync.RWMutex
}

// wsConn is one live WebSocket connection.
type wsConn struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	handle string

	// deviceID is set for bridge-device connections and empty for
	// client connections. It decides which frames the read pump accepts.
	deviceID string
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]*wsConn),
	}
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Push delivers a payload to the connection holding the handle. It
// fails when the handle is stale: pushes are never queued for an
// absent receiver.
func (h *Hub) Push(_ context.Context, handle string, payload []byte) error {
	if !strings.HasPrefix(handle, HandlePrefix+":") {
		return fmt.Errorf("%w: %q", dispatch.ErrUnknownChannel, handle)
	}

	h.mu.RLock()
	c, ok := h.conns[handle]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no connection for %q", dispatch.ErrUnknownChannel, handle)
	}

	if !c.trySend(payload) {
		return fmt.Errorf("%w: send buffer full for %q", dispatch.ErrUnknownChannel, handle)
	}
	return nil
}

// register adds a connection under its handle.
func (h *Hub) register(c *wsConn) {
	h.mu.Lock()
	h.conns[c.handle] = c
	h.mu.Unlock()
	h.logger.Debug("websocket connected", "handle", c.handle, "device", c.deviceID, "connections", h.ConnCount())
}

// unregister removes a connection. Only the goroutine that successfully
// removes the connection from the map closes the send channel,
// preventing double-close panics during shutdown.
func (h *Hub) unregister(c *wsConn) {
	h.mu.Lock()
	_, existed := h.conns[c.handle]
	delete(h.conns, c.handle)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	h.logger.Debug("websocket disconnected", "handle", c.handle, "connections", h.ConnCount())
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// closeAll disconnects all connections and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for handle, c := range h.conns {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.conns, handle)
	}
}

// trySend attempts a non-blocking send to the connection's buffer.
// Recovers from sends on a channel closed by a concurrent unregister.
func (c *wsConn) trySend(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// handleWebSocket upgrades the HTTP connection to a WebSocket.
//
// Two kinds of caller connect here. Clients authenticate with a
// single-use ticket from POST /auth/ws-ticket. Bridge devices
// authenticate with their hardware ID and pairing secret; a successful
// upgrade marks the device online with this connection as its push
// channel.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")

	var dev *device.Device
	if deviceID != "" {
		d, err := s.authenticateDevice(r.Context(), deviceID, r.URL.Query().Get("secret"))
		if err != nil {
			writeUnauthorized(w, "device authentication failed")
			return
		}
		dev = d
	} else {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		if !s.tickets.Validate(ticket) {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		handle: HandlePrefix + ":" + uuid.NewString(),
	}
	if dev != nil {
		c.deviceID = dev.ID
	}

	s.hub.register(c)

	if dev != nil {
		if err := s.devices.SetConnection(r.Context(), dev.ID, c.handle); err != nil {
			s.logger.Error("failed to mark device online", "device", dev.ID, "error", err)
		}
	}

	go c.writePump(s.wsCfg)
	go s.readPump(c)
}

// authenticateDevice looks up a device and verifies its pairing secret.
func (s *Server) authenticateDevice(ctx context.Context, id, secret string) (*device.Device, error) {
	normalized, err := device.NormalizeMAC(id)
	if err != nil {
		return nil, err
	}
	dev, err := s.devices.GetByID(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if err := device.Pair(secret, dev); err != nil {
		return nil, err
	}
	return dev, nil
}

// readPump reads frames from the connection and routes them into the
// dispatch engine until the connection drops.
func (s *Server) readPump(c *wsConn) {
	defer func() {
		s.hub.unregister(c)
		c.conn.Close()
		if c.deviceID != "" {
			// Scoped to this handle: a reconnect that already claimed a
			// fresh handle is not knocked offline by the old pump dying.
			if err := s.devices.ClearConnection(context.Background(), c.deviceID, c.handle); err != nil &&
				!errors.Is(err, device.ErrDeviceNotFound) {
				s.logger.Warn("failed to clear device connection", "device", c.deviceID, "error", err)
			}
		}
	}()

	c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "handle", c.handle, "error", err)
			} else {
				s.logger.Debug("websocket closed", "handle", c.handle, "error", err)
			}
			return
		}
		// Any message resets the read deadline (keeps the connection
		// alive even if the peer doesn't answer protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.handleFrame(c, message)
	}
}

// writePump writes buffered messages and pings to the connection.
func (c *wsConn) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// queuedFrame tells a client its command was accepted and which request
// ID its eventual acknowledgement will carry.
type queuedFrame struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId"`
}

// handleFrame routes one inbound frame. Device connections may only
// acknowledge; client connections may only issue commands.
func (s *Server) handleFrame(c *wsConn, data []byte) {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.trySend(dispatch.EncodeErrorFrame("invalid JSON frame"))
		return
	}

	switch {
	case envelope.Action == dispatch.ActionAck && c.deviceID != "":
		s.handleDeviceAck(c, data)
	case envelope.Action == dispatch.ActionCmd && c.deviceID == "":
		s.handleClientCommand(c, data)
	default:
		c.trySend(dispatch.EncodeErrorFrame("unexpected action: " + envelope.Action))
	}
}

// handleDeviceAck feeds a device acknowledgement into the ack router.
func (s *Server) handleDeviceAck(c *wsConn, data []byte) {
	var ack dispatch.DeviceAck
	if err := json.Unmarshal(data, &ack); err != nil {
		c.trySend(dispatch.EncodeErrorFrame("invalid ack frame"))
		return
	}
	if ack.RequestID == "" {
		c.trySend(dispatch.EncodeErrorFrame("ack is missing requestId"))
		return
	}

	err := s.router.HandleAck(context.Background(), ack)
	switch {
	case err == nil:
	case errors.Is(err, dispatch.ErrStaleRequest):
		// Duplicate or expired; the device retried into a settled request.
		s.logger.Debug("stale acknowledgement ignored", "device", c.deviceID, "request_id", ack.RequestID)
	default:
		s.logger.Error("acknowledgement failed", "device", c.deviceID, "request_id", ack.RequestID, "error", err)
	}
}

// handleClientCommand dispatches a client command frame. Failures are
// reported back on the same connection; on success the client receives
// a queued frame now and an ack or error frame when the device answers.
func (s *Server) handleClientCommand(c *wsConn, data []byte) {
	var frame dispatch.ClientCommand
	if err := json.Unmarshal(data, &frame); err != nil {
		c.trySend(dispatch.EncodeErrorFrame("invalid command frame"))
		return
	}

	cmd := requestpool.Command{
		Kind:        frame.Cmd,
		RemoteName:  frame.RemoteName,
		ButtonName:  frame.ButtonName,
		ButtonState: frame.ButtonState,
	}
	requestID, err := s.dispatcher.Dispatch(context.Background(), cmd, requestpool.ClientOrigin(c.handle))
	if err != nil {
		s.logger.Warn("command dispatch failed", "handle", c.handle, "remote", frame.RemoteName, "error", err)
		c.trySend(dispatch.EncodeErrorFrame(err.Error()))
		return
	}

	payload, err := json.Marshal(queuedFrame{Action: "queued", RequestID: requestID})
	if err != nil {
		return
	}
	c.trySend(payload)
}
