package hub

import (
	"log"
	"sync"
	"time"

	"card-arena/internal/protocol"
)

// SendBuffer is the number of outbound frames a connection may queue
// before further frames are dropped.
const SendBuffer = 256

// Conn is one live connection of an authenticated user.
type Conn struct {
	UserID      string
	Username    string
	ConnectedAt time.Time

	send      chan []byte
	closeOnce sync.Once
}

func NewConn(userID, username string) *Conn {
	return &Conn{
		UserID:      userID,
		Username:    username,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, SendBuffer),
	}
}

// Outbound is drained by the transport's write pump. It is closed when the
// connection is unregistered or replaced.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub tracks which users hold a live connection. At most one connection
// per user: a new registration replaces the old one.
type Hub struct {
	conns map[string]*Conn
	mu    sync.RWMutex
}

func New() *Hub {
	return &Hub{conns: make(map[string]*Conn)}
}

// Register makes c the user's live connection and returns the connection it
// replaced, if any. The replaced connection's outbound channel is closed.
func (h *Hub) Register(c *Conn) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.conns[c.UserID]
	h.conns[c.UserID] = c
	if old != nil && old != c {
		old.close()
		log.Printf("Connection replaced: user=%s", c.UserID)
	} else {
		log.Printf("Client registered: user=%s", c.UserID)
	}
	if old == c {
		return nil
	}
	return old
}

// Unregister removes c if it is still the user's live connection. A stale
// connection that was already replaced leaves the registry untouched.
func (h *Hub) Unregister(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.conns[c.UserID]
	if !ok || current != c {
		c.close()
		return false
	}
	delete(h.conns, c.UserID)
	c.close()
	log.Printf("Client unregistered: user=%s", c.UserID)
	return true
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[userID]
	return ok
}

// Get returns the user's live connection.
func (h *Hub) Get(userID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[userID]
	return c, ok
}

// Send encodes and queues an event for the user. It never blocks: when the
// user is offline or their buffer is full the frame is dropped.
func (h *Hub) Send(userID, event string, payload interface{}) bool {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("Failed to marshal %s for %s: %v", event, userID, err)
		return false
	}
	return h.SendRaw(userID, msg)
}

// SendRaw queues an already encoded frame.
func (h *Hub) SendRaw(userID string, msg []byte) bool {
	// Closing happens under the write lock, so the send below never hits a closed channel.
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.conns[userID]
	if !ok {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		log.Printf("Dropping frame for %s: send buffer full", userID)
		return false
	}
}

// Count returns the number of connected users
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		c.close()
		delete(h.conns, id)
	}
}
