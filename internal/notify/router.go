package notify

import (
	"log"
	"time"

	"card-arena/internal/hub"
	"card-arena/internal/protocol"
)

// Relay forwards frames to users held by another instance.
type Relay interface {
	PublishUserFrame(userID string, message []byte)
}

// Router is the single outlet for server-initiated events. Session engines
// use Emit; out-of-band collaborators use Notify.
type Router struct {
	hub   *hub.Hub
	relay Relay
}

// NewRouter creates a router. relay may be nil for single-instance deployments.
func NewRouter(h *hub.Hub, relay Relay) *Router {
	return &Router{hub: h, relay: relay}
}

func (r *Router) IsOnline(userID string) bool {
	return r.hub.IsOnline(userID)
}

// Emit sends an event to a locally connected user. Session participants are
// always local, so Emit never consults the relay.
func (r *Router) Emit(userID, event string, payload interface{}) bool {
	return r.hub.Send(userID, event, payload)
}

// Broadcast emits the same event to every listed user.
func (r *Router) Broadcast(userIDs []string, event string, payload interface{}) {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("Failed to marshal %s: %v", event, err)
		return
	}
	for _, id := range userIDs {
		r.hub.SendRaw(id, msg)
	}
}

// Notify pushes a one-shot notification. Users not connected here are
// reached through the relay when one is configured.
func (r *Router) Notify(userID, message, notificationType, requestID string) bool {
	payload := protocol.NotificationPayload{
		Message: message,
		Data: protocol.NotificationData{
			RequestID: requestID,
			Type:      notificationType,
			Timestamp: time.Now().UnixMilli(),
		},
	}
	msg, err := protocol.Encode(protocol.Notification, payload)
	if err != nil {
		log.Printf("Failed to marshal notification for %s: %v", userID, err)
		return false
	}
	if r.hub.SendRaw(userID, msg) {
		return true
	}
	if r.relay != nil && !r.hub.IsOnline(userID) {
		r.relay.PublishUserFrame(userID, msg)
	}
	return false
}

// DeliverLocal hands a relayed frame to a local connection.
func (r *Router) DeliverLocal(userID string, message []byte) bool {
	return r.hub.SendRaw(userID, message)
}
