package duel

import (
	"context"
	"log"
	"sync"
	"time"

	"card-arena/internal/errs"
	"card-arena/internal/models"
	"card-arena/internal/protocol"
	"card-arena/internal/services"
	"card-arena/internal/store"
	"card-arena/internal/turntimer"

	"github.com/google/uuid"
)

const (
	DefaultTurnTimeout  = 30 * time.Second
	DefaultWinningScore = 6
	DefaultMaxRounds    = 11

	storeTimeout = 5 * time.Second
)

// Notifier delivers events to connected players.
type Notifier interface {
	Emit(userID, event string, payload interface{}) bool
}

// Settler closes a finished match and returns rating deltas per user.
type Settler interface {
	Settle(ctx context.Context, st services.Settlement) (map[string]int, error)
}

type Options struct {
	TurnTimeout  time.Duration
	WinningScore int
	MaxRounds    int
}

func (o Options) withDefaults() Options {
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = DefaultTurnTimeout
	}
	if o.WinningScore <= 0 {
		o.WinningScore = DefaultWinningScore
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
	return o
}

// Manager owns every live duel in this process.
type Manager struct {
	store    store.Store
	notifier Notifier
	settler  Settler
	timers   *turntimer.Service
	opts     Options

	onEnded func(matchID string)

	sessions map[string]*Session
	byUser   map[string]*Session
	mu       sync.RWMutex
}

func NewManager(st store.Store, notifier Notifier, settler Settler, timers *turntimer.Service, opts Options) *Manager {
	return &Manager{
		store:    st,
		notifier: notifier,
		settler:  settler,
		timers:   timers,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
		byUser:   make(map[string]*Session),
	}
}

// SetEndHandler registers a callback run once per destroyed session.
func (m *Manager) SetEndHandler(fn func(matchID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnded = fn
}

// NoLoadoutError names the player who could not be seated for lack of an
// active loadout.
type NoLoadoutError struct {
	UserID string
}

func (e *NoLoadoutError) Error() string {
	return "player " + e.UserID + " has no active loadout"
}

// Create starts a duel between two paired players. player1 starts round one.
// The session is registered before the match row is written, so two
// concurrent creates for the same player never both reach the store.
func (m *Manager) Create(ctx context.Context, player1ID, player2ID string) (*Session, error) {
	if player1ID == player2ID {
		return nil, errs.Validation("cannot duel yourself")
	}
	if m.InMatch(player1ID) || m.InMatch(player2ID) {
		return nil, errs.Conflict("player already in a match")
	}

	states := make([]*playerState, 0, 2)
	for _, id := range []string{player1ID, player2ID} {
		loadout, err := m.store.ActiveLoadout(ctx, id)
		if err != nil {
			return nil, errs.Infrastructure("failed to load loadout", err)
		}
		if len(loadout) == 0 {
			return nil, errs.Wrap(errs.CodeValidation, "no active loadout", &NoLoadoutError{UserID: id})
		}
		rating, err := m.store.Rating(ctx, id)
		if err != nil {
			return nil, errs.Infrastructure("failed to load rating", err)
		}
		states = append(states, newPlayerState(id, rating, loadout))
	}

	match := &models.Match{
		ID:            uuid.NewString(),
		Player1ID:     player1ID,
		Player2ID:     player2ID,
		Player1Rating: states[0].rating,
		Player2Rating: states[1].rating,
		Status:        models.MatchStatusActive,
		StartedAt:     time.Now(),
	}
	s := newSession(m, match, states[0], states[1])

	m.mu.Lock()
	if m.byUser[player1ID] != nil || m.byUser[player2ID] != nil {
		m.mu.Unlock()
		return nil, errs.Conflict("player already in a match")
	}
	m.sessions[s.MatchID] = s
	m.byUser[player1ID] = s
	m.byUser[player2ID] = s
	m.mu.Unlock()

	if err := m.store.CreateMatch(ctx, match); err != nil {
		m.unregister(s)
		close(s.done)
		return nil, errs.Infrastructure("failed to create match", err)
	}

	log.Printf("[Duel] Match %s created: %s (%d) vs %s (%d)",
		s.MatchID, player1ID, states[0].rating, player2ID, states[1].rating)

	ratings := map[string]int{player1ID: states[0].rating, player2ID: states[1].rating}
	for _, p := range s.players {
		m.notifier.Emit(p.userID, protocol.MatchFound, protocol.MatchFoundPayload{
			MatchID:         s.MatchID,
			RoomID:          s.RoomID,
			OpponentID:      s.opponent(p.userID).userID,
			OpponentRatings: ratings,
		})
	}
	s.beginRound(1, player1ID)
	go s.run()
	return s, nil
}

// SubmitSelection routes a starter's move to the user's duel.
func (m *Manager) SubmitSelection(ctx context.Context, userID, cardID, skill string) error {
	s, ok := m.sessionFor(userID)
	if !ok {
		return errs.Authorization("not in an active match")
	}
	return s.do(ctx, command{kind: cmdSelect, userID: userID, cardID: cardID, skill: skill})
}

// SubmitResponse routes a responder's move to the user's duel.
func (m *Manager) SubmitResponse(ctx context.Context, userID, cardID, skill string) error {
	s, ok := m.sessionFor(userID)
	if !ok {
		return errs.Authorization("not in an active match")
	}
	return s.do(ctx, command{kind: cmdRespond, userID: userID, cardID: cardID, skill: skill})
}

// Forfeit ends the user's duel in the opponent's favour. Returns false if
// the user was not in a match.
func (m *Manager) Forfeit(userID string) bool {
	s, ok := m.sessionFor(userID)
	if !ok {
		return false
	}
	err := s.do(context.Background(), command{kind: cmdForfeit, userID: userID})
	return err == nil
}

func (m *Manager) InMatch(userID string) bool {
	_, ok := m.sessionFor(userID)
	return ok
}

// Session returns a live duel by match id.
func (m *Manager) Session(matchID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[matchID]
	return s, ok
}

// ActiveCount returns the number of live duels
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops every duel without settling it. The match rows stay
// active and are later closed by the stale match cleanup.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	for _, s := range live {
		_ = s.do(context.Background(), command{kind: cmdShutdown})
	}
}

func (m *Manager) sessionFor(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byUser[userID]
	return s, ok
}

func (m *Manager) remove(s *Session) {
	m.unregister(s)

	m.mu.RLock()
	onEnded := m.onEnded
	m.mu.RUnlock()
	if onEnded != nil {
		onEnded(s.MatchID)
	}
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.MatchID] == s {
		delete(m.sessions, s.MatchID)
	}
	for _, p := range s.players {
		if m.byUser[p.userID] == s {
			delete(m.byUser, p.userID)
		}
	}
}
