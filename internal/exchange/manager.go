package exchange

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"card-arena/internal/audit"
	"card-arena/internal/errs"
	"card-arena/internal/models"
	"card-arena/internal/protocol"
	"card-arena/internal/store"
	"card-arena/internal/telemetry"
	"card-arena/internal/turntimer"

	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultInviteTimeout = 60 * time.Second

	swapTimeout = 10 * time.Second
)

// Notifier delivers events to connected users.
type Notifier interface {
	Emit(userID, event string, payload interface{}) bool
	Broadcast(userIDs []string, event string, payload interface{})
	IsOnline(userID string) bool
}

// Manager owns every live exchange. A user takes part in at most one
// pending or active exchange at a time.
type Manager struct {
	store         store.Store
	notifier      Notifier
	timers        *turntimer.Service
	audit         *audit.Logger
	inviteTimeout time.Duration

	sessions map[string]*Session
	byUser   map[string]*Session
	mu       sync.Mutex
}

func NewManager(st store.Store, notifier Notifier, timers *turntimer.Service, auditLog *audit.Logger, inviteTimeout time.Duration) *Manager {
	if inviteTimeout <= 0 {
		inviteTimeout = DefaultInviteTimeout
	}
	return &Manager{
		store:         st,
		notifier:      notifier,
		timers:        timers,
		audit:         auditLog,
		inviteTimeout: inviteTimeout,
		sessions:      make(map[string]*Session),
		byUser:        make(map[string]*Session),
	}
}

// Request invites targetID to trade. The target must be connected.
func (m *Manager) Request(ctx context.Context, from Participant, targetID string) (*Session, error) {
	if targetID == "" {
		return nil, errs.Validation("receptorId is required")
	}
	if targetID == from.UserID {
		return nil, errs.Validation("cannot trade with yourself")
	}
	if !m.notifier.IsOnline(targetID) {
		return nil, errs.Validation("user is not online")
	}

	s := newSession(from, Participant{UserID: targetID})

	m.mu.Lock()
	if m.byUser[from.UserID] != nil {
		m.mu.Unlock()
		return nil, errs.Conflict("you already have an exchange in progress")
	}
	if m.byUser[targetID] != nil {
		m.mu.Unlock()
		return nil, errs.Conflict("user is busy with another exchange")
	}
	m.sessions[s.ID] = s
	m.byUser[from.UserID] = s
	m.byUser[targetID] = s
	m.mu.Unlock()

	m.timers.Start(m.timerKey(s.ID), m.inviteTimeout, func() { m.expire(s) })

	m.notifier.Emit(targetID, protocol.RequestExchangeReceived, protocol.ExchangeReceivedPayload{
		ExchangeID:          s.ID,
		SolicitanteID:       from.UserID,
		SolicitanteUsername: from.Username,
		Timestamp:           s.CreatedAt.UnixMilli(),
	})
	log.Printf("[Exchange] %s invited %s (exchange %s)", from.UserID, targetID, s.ID)
	return s, nil
}

// Accept moves a pending invitation to active. Only the target may accept.
func (m *Manager) Accept(ctx context.Context, target Participant, exchangeID string) error {
	s, err := m.lookup(exchangeID, target.UserID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if target.UserID != s.Target.UserID {
		return errs.Authorization("only the invited user can accept")
	}
	if s.state != StatePending {
		return errs.Conflict("exchange is not pending")
	}
	m.timers.Stop(m.timerKey(s.ID))

	s.state = StateActive
	s.Target.Username = target.Username
	s.selected = make(map[string]models.Card, 2)
	s.confirmed = make(map[string]bool, 2)

	m.notifier.Broadcast(s.Members(), protocol.ExchangeAccepted, protocol.ExchangeAcceptedPayload{
		ExchangeID: s.ID,
		RoomID:     s.RoomID,
		Usernames: map[string]string{
			s.Initiator.UserID: s.Initiator.Username,
			s.Target.UserID:    s.Target.Username,
		},
	})
	return nil
}

// Reject declines a pending invitation. Only the target may reject.
func (m *Manager) Reject(ctx context.Context, userID, exchangeID string) error {
	s, err := m.lookup(exchangeID, userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID != s.Target.UserID {
		return errs.Authorization("only the invited user can reject")
	}
	if s.state != StatePending {
		return errs.Conflict("exchange is not pending")
	}
	s.state = StateRejected
	m.destroy(s)

	m.notifier.Broadcast(s.Members(), protocol.ExchangeRejected, protocol.ExchangeRef{ExchangeID: s.ID})
	return nil
}

// SelectCard sets the user's offered card. A new pick clears the user's
// own confirmation.
func (m *Manager) SelectCard(ctx context.Context, userID, exchangeID, cardID string) error {
	s, err := m.lookup(exchangeID, userID)
	if err != nil {
		return err
	}
	if cardID == "" {
		return errs.Validation("cardId is required")
	}

	qty, err := m.store.CardQuantity(ctx, userID, cardID)
	if err != nil {
		return errs.Infrastructure("failed to check collection", err)
	}
	if qty < 1 {
		return errs.Validation("you do not own this card")
	}
	card, err := m.store.Card(ctx, cardID)
	if errors.Is(err, store.ErrNotFound) {
		return errs.Validation("unknown card")
	}
	if err != nil {
		return errs.Infrastructure("failed to load card", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return errs.Conflict("exchange is not active")
	}

	s.selected[userID] = *card
	s.confirmed[userID] = false

	members := s.Members()
	m.notifier.Broadcast(members, protocol.CardsSelected, protocol.CardsSelectedPayload{
		ExchangeID: s.ID,
		UserID:     userID,
		Card:       *card,
	})
	m.notifier.Broadcast(members, protocol.ConfirmationUpdated, protocol.ConfirmationUpdatedPayload{
		ExchangeID:    s.ID,
		Confirmations: s.confirmations(),
	})
	return nil
}

// Confirm toggles the user's confirmation. When both sides are confirmed
// the swap runs; its outcome is announced to the room rather than returned.
func (m *Manager) Confirm(ctx context.Context, userID, exchangeID string) error {
	s, err := m.lookup(exchangeID, userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return errs.Conflict("exchange is not active")
	}
	if _, ok := s.selected[userID]; !ok {
		return errs.Validation("select a card first")
	}
	s.confirmed[userID] = !s.confirmed[userID]
	m.notifier.Broadcast(s.Members(), protocol.ConfirmationUpdated, protocol.ConfirmationUpdatedPayload{
		ExchangeID:    s.ID,
		Confirmations: s.confirmations(),
	})

	if s.bothConfirmed() {
		// Commit point: no edit is accepted past this line.
		s.state = StateCompleted
		m.commit(s)
	}
	return nil
}

// CancelConfirmation forces the user's confirmation to false.
func (m *Manager) CancelConfirmation(ctx context.Context, userID, exchangeID string) error {
	s, err := m.lookup(exchangeID, userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return errs.Conflict("exchange is not active")
	}
	s.confirmed[userID] = false
	m.notifier.Broadcast(s.Members(), protocol.ConfirmationUpdated, protocol.ConfirmationUpdatedPayload{
		ExchangeID:    s.ID,
		Confirmations: s.confirmations(),
	})
	return nil
}

// Cancel tears down a pending or active exchange without touching inventory.
func (m *Manager) Cancel(ctx context.Context, userID, exchangeID string) error {
	s, err := m.lookup(exchangeID, userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending && s.state != StateActive {
		return errs.Conflict("exchange already closed")
	}
	m.cancelLocked(s, userID, ReasonCancelled)
	return nil
}

// LeaveAll cancels whatever exchange the user is part of. Called on disconnect.
func (m *Manager) LeaveAll(userID string) {
	m.mu.Lock()
	s := m.byUser[userID]
	m.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePending || s.state == StateActive {
		m.cancelLocked(s, userID, ReasonDisconnected)
	}
}

// ActiveFor returns the exchange the user is part of.
func (m *Manager) ActiveFor(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	return s, ok
}

// Get returns a live exchange by id.
func (m *Manager) Get(exchangeID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[exchangeID]
	return s, ok
}

// Count returns the number of live exchanges
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) timerKey(exchangeID string) string {
	return "exchange:" + exchangeID
}

// lookup finds an exchange the user participates in.
func (m *Manager) lookup(exchangeID, userID string) (*Session, error) {
	if exchangeID == "" {
		return nil, errs.Validation("exchangeId is required")
	}
	m.mu.Lock()
	s, ok := m.sessions[exchangeID]
	m.mu.Unlock()
	if !ok {
		return nil, errs.NotFound("exchange not found")
	}
	if !s.isParticipant(userID) {
		return nil, errs.Authorization("not a participant of this exchange")
	}
	return s, nil
}

func (m *Manager) expire(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return
	}
	log.Printf("[Exchange] Invitation %s expired", s.ID)
	m.cancelLocked(s, "", ReasonExpired)
}

// cancelLocked closes the session and tells the room; callers hold s.mu.
func (m *Manager) cancelLocked(s *Session, by, reason string) {
	s.state = StateCancelled
	m.destroy(s)
	m.notifier.Broadcast(s.Members(), protocol.ExchangeCancelled, protocol.ExchangeCancelledPayload{
		ExchangeID:  s.ID,
		CancelledBy: by,
		Reason:      reason,
	})
}

// commit performs the swap; callers hold s.mu and have set StateCompleted.
// The session is destroyed whatever the outcome.
func (m *Manager) commit(s *Session) {
	defer m.destroy(s)

	initCard := s.selected[s.Initiator.UserID]
	targetCard := s.selected[s.Target.UserID]

	ctx, cancel := context.WithTimeout(context.Background(), swapTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "exchange.swap")
	defer span.End()
	span.SetAttributes(
		attribute.String("exchange.id", s.ID),
		attribute.String("exchange.initiator_card", initCard.ID),
		attribute.String("exchange.target_card", targetCard.ID),
	)

	err := m.store.SwapCards(ctx,
		models.Offer{UserID: s.Initiator.UserID, CardID: initCard.ID},
		models.Offer{UserID: s.Target.UserID, CardID: targetCard.ID},
	)
	detail := fmt.Sprintf("%s gives %s, %s gives %s",
		s.Initiator.UserID, initCard.ID, s.Target.UserID, targetCard.ID)

	if err != nil {
		span.RecordError(err)
		s.state = StateCancelled
		message := "exchange failed"
		if errors.Is(err, store.ErrInsufficientCards) {
			message = "a selected card is no longer available"
		}
		log.Printf("[Exchange] Swap %s failed: %v", s.ID, err)
		m.audit.Record(audit.EventTradeFailed, s.Initiator.UserID, s.ID, detail+": "+err.Error())
		m.notifier.Broadcast(s.Members(), protocol.ExchangeError, protocol.ExchangeErrorPayload{
			ExchangeID: s.ID,
			Message:    message,
		})
		return
	}

	log.Printf("[Exchange] Swap %s completed: %s", s.ID, detail)
	m.audit.Record(audit.EventTradeCompleted, s.Initiator.UserID, s.ID, detail)
	m.notifier.Broadcast(s.Members(), protocol.ExchangeCompleted, protocol.ExchangeCompletedPayload{
		ExchangeID: s.ID,
		User1ID:    s.Initiator.UserID,
		User1Card:  initCard.ID,
		User2ID:    s.Target.UserID,
		User2Card:  targetCard.ID,
	})
}

// destroy unregisters the session and its invite timer.
func (m *Manager) destroy(s *Session) {
	m.timers.Stop(m.timerKey(s.ID))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.ID] == s {
		delete(m.sessions, s.ID)
	}
	for _, id := range s.Members() {
		if m.byUser[id] == s {
			delete(m.byUser, id)
		}
	}
}
