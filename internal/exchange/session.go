package exchange

import (
	"sync"
	"time"

	"card-arena/internal/models"

	"github.com/google/uuid"
)

type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateRejected  State = "rejected"
)

// Cancellation reasons
const (
	ReasonCancelled    = "cancelled"
	ReasonExpired      = "expired"
	ReasonDisconnected = "disconnected"
)

var exchangeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("card-arena/exchange"))

// ExchangeID derives the exchange id from the ordered (initiator, target) pair.
func ExchangeID(initiatorID, targetID string) string {
	return uuid.NewSHA1(exchangeNamespace, []byte(initiatorID+"\x00"+targetID)).String()
}

type Participant struct {
	UserID   string
	Username string
}

// Session is one trade negotiation. All fields below mu are guarded by it.
type Session struct {
	ID        string
	RoomID    string
	Initiator Participant
	Target    Participant
	CreatedAt time.Time

	mu        sync.Mutex
	state     State
	selected  map[string]models.Card
	confirmed map[string]bool
}

func newSession(initiator, target Participant) *Session {
	id := ExchangeID(initiator.UserID, target.UserID)
	return &Session{
		ID:        id,
		RoomID:    "exchange_" + id,
		Initiator: initiator,
		Target:    target,
		CreatedAt: time.Now(),
		state:     StatePending,
		selected:  make(map[string]models.Card, 2),
		confirmed: make(map[string]bool, 2),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Members returns the room's subscriber list.
func (s *Session) Members() []string {
	return []string{s.Initiator.UserID, s.Target.UserID}
}

func (s *Session) isParticipant(userID string) bool {
	return userID == s.Initiator.UserID || userID == s.Target.UserID
}

func (s *Session) other(userID string) string {
	if userID == s.Initiator.UserID {
		return s.Target.UserID
	}
	return s.Initiator.UserID
}

// confirmations copies the confirmation map; callers hold mu.
func (s *Session) confirmations() map[string]bool {
	out := map[string]bool{
		s.Initiator.UserID: s.confirmed[s.Initiator.UserID],
		s.Target.UserID:    s.confirmed[s.Target.UserID],
	}
	return out
}

// bothConfirmed reports whether the barrier is met; callers hold mu.
func (s *Session) bothConfirmed() bool {
	return s.confirmed[s.Initiator.UserID] && s.confirmed[s.Target.UserID]
}
