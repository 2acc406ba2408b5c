package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"card-arena/internal/engine"
	"card-arena/internal/hub"
	"card-arena/internal/middleware"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

type WebSocketHandler struct {
	hub      *hub.Hub
	engine   *engine.Engine
	upgrader websocket.Upgrader
}

// NewWebSocketHandler accepts upgrades from allowedOrigin. An empty origin
// allows any, which is what local development wants.
func NewWebSocketHandler(h *hub.Hub, eng *engine.Engine, allowedOrigin string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    h,
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// client pairs a socket with its hub registration.
type client struct {
	handler *WebSocketHandler
	conn    *websocket.Conn
	hubConn *hub.Conn
}

// HandleWebSocket upgrades an authenticated request. The identity comes
// from RequireAuth; one live connection per user, a newer one replaces it.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		handler: h,
		conn:    conn,
		hubConn: hub.NewConn(identity.UserID, identity.Username),
	}
	if replaced := h.hub.Register(c.hubConn); replaced != nil {
		log.Printf("Replaced existing connection for %s", identity.UserID)
	}
	log.Printf("Client connected: %s", identity.UserID)

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	userID := c.hubConn.UserID
	defer func() {
		// A replaced connection must not tear down the user's state.
		if c.handler.hub.Unregister(c.hubConn) {
			c.handler.engine.Disconnect(userID)
			log.Printf("Client disconnected: %s", userID)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sender := engine.Client{UserID: userID, Username: c.hubConn.Username}
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for %s: %v", userID, err)
			}
			return
		}
		c.handler.engine.HandleEvent(context.Background(), sender, message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	outbound := c.hubConn.Outbound()
	for {
		select {
		case message, ok := <-outbound:
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
