package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSEvent is the envelope for all WebSocket messages sent to clients.
type WSEvent struct {
	Type        string `json:"type"`
	SessionCode string `json:"session_code"`
	Data        any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client. The
// action field selects the operation; the rest of the fields are read as
// that operation needs them.
type ClientMessage struct {
	Action      string `json:"action"`
	SessionCode string `json:"session_code"`

	// initialize / announce
	Players []string `json:"players,omitempty"`
	Colors  []string `json:"colors,omitempty"`

	// game actions
	Player        string `json:"player,omitempty"`
	Territory     string `json:"territory,omitempty"`
	Source        string `json:"source,omitempty"`
	Target        string `json:"target,omitempty"`
	Armies        int    `json:"armies,omitempty"`
	AttackerAfter int    `json:"attacker_after,omitempty"`
	DefenderAfter int    `json:"defender_after,omitempty"`
}

// WSConn wraps a WebSocket connection with its identity and outbound queue.
// The connection ID is what session bindings are keyed on.
type WSConn struct {
	conn   *websocket.Conn
	id     string
	userID string
	send   chan []byte
}

// newConnID generates a random connection identifier.
func newConnID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		log.Error().Err(err).Msg("Failed to generate connection ID")
	}
	return hex.EncodeToString(buf)
}

// Hub manages WebSocket connections and session-channel subscriptions.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	byID        map[string]*WSConn
	sessions    map[string]map[*WSConn]bool // session code -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		byID:        make(map[string]*WSConn),
		sessions:    make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
	h.byID[c.id] = c
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
	delete(h.byID, c.id)
	for code, conns := range h.sessions {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.sessions, code)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a session channel.
func (h *Hub) Subscribe(c *WSConn, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[code] == nil {
		h.sessions[code] = make(map[*WSConn]bool)
	}
	h.sessions[code][c] = true
}

// Unsubscribe removes a connection from a session channel.
func (h *Hub) Unsubscribe(c *WSConn, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.sessions[code]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.sessions, code)
		}
	}
}

// BroadcastToSession sends an event to all connections subscribed to a
// session.
func (h *Hub) BroadcastToSession(code string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("sessionCode", code).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.sessions[code] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("connId", c.id).Str("sessionCode", code).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// SendToConnection sends an event to a single connection by ID.
func (h *Hub) SendToConnection(connID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("connId", connID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.byID[connID]
	if !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("connId", connID).Msg("Dropping WebSocket message, buffer full")
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionSubscriberCount returns the number of connections subscribed to a
// session.
func (h *Hub) SessionSubscriberCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[code])
}
