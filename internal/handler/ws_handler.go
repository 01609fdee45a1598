package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gorilla/websocket"
	"github.com/warfront-game/api/internal/auth"
	"github.com/warfront-game/api/internal/service"
	"github.com/warfront-game/api/pkg/risk"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256

	// actionTimeout bounds how long one inbound message may hold the
	// session lock waiting on storage.
	actionTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware; tighten in production
	},
}

// WSHandler handles WebSocket connections and dispatches client messages
// into the session registry.
type WSHandler struct {
	hub      *Hub
	jwtMgr   *auth.JWTManager
	registry *service.Registry
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, registry *service.Registry) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, registry: registry}
}

// ServeWS handles GET /api/v1/ws — upgrades to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn:   conn,
		id:     newConnID(),
		userID: claims.UserID,
		send:   make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)

	// Send a welcome message carrying the connection ID so the client can
	// confirm the connection is live.
	welcome, _ := json.Marshal(WSEvent{
		Type: "connected",
		Data: map[string]any{"conn_id": client.id},
	})
	client.send <- welcome

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("userId", claims.UserID).Str("connId", client.id).
		Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.registry.Disconnect(c.id)
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID).Str("connId", c.id).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connId", c.id).Msg("WebSocket unexpected close")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.dispatch(c, msg)
	}
}

// dispatch routes one client message. Errors go back to the sender only;
// accepted actions fan out through the registry's broadcasts.
func (h *WSHandler) dispatch(c *WSConn, msg ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch msg.Action {
	case "subscribe":
		if msg.SessionCode != "" {
			h.hub.Subscribe(c, msg.SessionCode)
		}
	case "unsubscribe":
		if msg.SessionCode != "" {
			h.hub.Unsubscribe(c, msg.SessionCode)
		}
	case "initialize":
		// Subscribe first so the initialized broadcast reaches the creator.
		h.hub.Subscribe(c, msg.SessionCode)
		if _, err := h.registry.Initialize(ctx, msg.SessionCode, msg.Players, msg.Colors); err != nil {
			h.hub.Unsubscribe(c, msg.SessionCode)
			h.sendError(c, msg.SessionCode, err)
		}
	case "announce":
		h.hub.Subscribe(c, msg.SessionCode)
		if err := h.registry.Announce(ctx, msg.SessionCode, c.id, msg.Players); err != nil {
			h.sendError(c, msg.SessionCode, err)
		}
	case "resync":
		if err := h.registry.Resync(ctx, msg.SessionCode, c.id); err != nil {
			h.sendError(c, msg.SessionCode, err)
		}
	case "deploy", "attack", "fortify", "advance_phase":
		action := risk.Action{
			Type:          risk.ActionType(msg.Action),
			Player:        msg.Player,
			Territory:     msg.Territory,
			Source:        msg.Source,
			Target:        msg.Target,
			Armies:        msg.Armies,
			AttackerAfter: msg.AttackerAfter,
			DefenderAfter: msg.DefenderAfter,
		}
		if err := h.registry.Submit(ctx, msg.SessionCode, c.id, action); err != nil {
			h.sendError(c, msg.SessionCode, err)
		}
	default:
		h.sendError(c, msg.SessionCode, &risk.Rejection{
			Code:    risk.CodeUnknownAction,
			Message: "unknown action " + msg.Action,
		})
	}
}

// sendError delivers a rejection to the submitting connection only. Known
// rejections keep their code; everything else is mapped to a generic one.
func (h *WSHandler) sendError(c *WSConn, code string, err error) {
	rej := risk.AsRejection(err)
	if rej == nil {
		switch {
		case errors.Is(err, service.ErrSessionExists):
			rej = &risk.Rejection{Code: risk.CodeSessionExists, Message: err.Error()}
		case errors.Is(err, service.ErrUnknownPlayer):
			rej = &risk.Rejection{Code: risk.CodeUnauthorizedClient, Message: err.Error()}
		default:
			log.Error().Err(err).Str("sessionCode", code).Str("connId", c.id).Msg("Action failed")
			rej = &risk.Rejection{Code: risk.CodePersistenceUnavailable, Message: "internal error"}
		}
	}
	h.hub.SendConnectionEvent(c.id, code, service.EventActionRejected, map[string]any{
		"code":    rej.Code,
		"message": rej.Message,
	})
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
