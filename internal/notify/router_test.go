package notify

import (
	"encoding/json"
	"testing"

	"card-arena/internal/hub"
	"card-arena/internal/protocol"
)

type fakeRelay struct {
	published []string
}

func (f *fakeRelay) PublishUserFrame(userID string, message []byte) {
	f.published = append(f.published, userID)
}

func TestNotifyLocalUser(t *testing.T) {
	h := hub.New()
	c := hub.NewConn("u1", "alice")
	h.Register(c)
	relay := &fakeRelay{}
	r := NewRouter(h, relay)

	if !r.Notify("u1", "friend request from bob", "friend_request", "req-1") {
		t.Fatal("Notify() = false, want true")
	}
	var frame struct {
		Event string                       `json:"event"`
		Data  protocol.NotificationPayload `json:"data"`
	}
	if err := json.Unmarshal(<-c.Outbound(), &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Event != protocol.Notification {
		t.Fatalf("event = %s, want notification", frame.Event)
	}
	if frame.Data.Data.RequestID != "req-1" || frame.Data.Data.Type != "friend_request" {
		t.Fatalf("data = %+v", frame.Data.Data)
	}
	if frame.Data.Data.Timestamp == 0 {
		t.Fatal("timestamp not set")
	}
	if len(relay.published) != 0 {
		t.Fatalf("relay used for local user: %v", relay.published)
	}
}

func TestNotifyRemoteUserGoesThroughRelay(t *testing.T) {
	relay := &fakeRelay{}
	r := NewRouter(hub.New(), relay)

	if r.Notify("elsewhere", "hello", "generic", "") {
		t.Fatal("Notify() = true for non-local user")
	}
	if len(relay.published) != 1 || relay.published[0] != "elsewhere" {
		t.Fatalf("published = %v, want [elsewhere]", relay.published)
	}
}

func TestBroadcastReachesEveryListedUser(t *testing.T) {
	h := hub.New()
	a := hub.NewConn("a", "a")
	b := hub.NewConn("b", "b")
	h.Register(a)
	h.Register(b)
	r := NewRouter(h, nil)

	r.Broadcast([]string{"a", "b", "offline"}, protocol.ConfirmationUpdated, protocol.ConfirmationUpdatedPayload{ExchangeID: "x"})
	if len(a.Outbound()) != 1 || len(b.Outbound()) != 1 {
		t.Fatalf("queued a=%d b=%d, want 1 each", len(a.Outbound()), len(b.Outbound()))
	}
}
