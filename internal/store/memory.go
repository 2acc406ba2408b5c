package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"card-arena/internal/models"
)

type collectionKey struct {
	userID string
	cardID string
}

// MemoryStore keeps everything in process. Used for local development and tests.
type MemoryStore struct {
	mu          sync.Mutex
	cards       map[string]models.Card
	players     map[string]*models.Player
	collections map[collectionKey]int
	loadouts    map[string][]string
	matches     map[string]*models.Match
	rounds      map[string][]models.Round
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:       make(map[string]models.Card),
		players:     make(map[string]*models.Player),
		collections: make(map[collectionKey]int),
		loadouts:    make(map[string][]string),
		matches:     make(map[string]*models.Match),
		rounds:      make(map[string][]models.Round),
	}
}

// PutCard adds or replaces a card definition.
func (s *MemoryStore) PutCard(card models.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = card
}

// PutPlayer sets a user's rating.
func (s *MemoryStore) PutPlayer(userID string, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[userID] = &models.Player{ID: userID, Rating: rating, UpdatedAt: time.Now()}
}

// GrantCard adds quantity copies of a card to the user's collection.
func (s *MemoryStore) GrantCard(userID, cardID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collectionKey{userID, cardID}] += quantity
}

// SetLoadout replaces the user's active loadout.
func (s *MemoryStore) SetLoadout(userID string, cardIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadouts[userID] = append([]string(nil), cardIDs...)
}

// Match returns a copy of a persisted match.
func (s *MemoryStore) Match(matchID string) (models.Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return models.Match{}, false
	}
	return *m, true
}

// CountMatches returns how many persisted matches have the given status.
func (s *MemoryStore) CountMatches(status models.MatchStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.matches {
		if m.Status == status {
			n++
		}
	}
	return n
}

// Rounds returns the persisted rounds of a match in insertion order.
func (s *MemoryStore) Rounds(matchID string) []models.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Round(nil), s.rounds[matchID]...)
}

// Collection returns the user's card quantities.
func (s *MemoryStore) Collection(userID string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for k, q := range s.collections {
		if k.userID == userID {
			out[k.cardID] = q
		}
	}
	return out
}

func (s *MemoryStore) ActiveLoadout(ctx context.Context, userID string) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.loadouts[userID]
	cards := make([]models.Card, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.cards[id]; ok {
			cards = append(cards, c)
		}
	}
	return cards, nil
}

func (s *MemoryStore) Card(ctx context.Context, cardID string) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[cardID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) Rating(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[userID]
	if !ok {
		p = &models.Player{ID: userID, Rating: models.DefaultRating, UpdatedAt: time.Now()}
		s.players[userID] = p
	}
	return p.Rating, nil
}

func (s *MemoryStore) AdjustRating(ctx context.Context, userID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[userID]
	if !ok {
		p = &models.Player{ID: userID, Rating: models.DefaultRating}
		s.players[userID] = p
	}
	p.Rating += delta
	p.UpdatedAt = time.Now()
	return p.Rating, nil
}

func (s *MemoryStore) CreateMatch(ctx context.Context, match *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *match
	s.matches[match.ID] = &m
	return nil
}

func (s *MemoryStore) InsertRound(ctx context.Context, round *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[round.MatchID]; !ok {
		return ErrNotFound
	}
	s.rounds[round.MatchID] = append(s.rounds[round.MatchID], *round)
	return nil
}

func (s *MemoryStore) FinishMatch(ctx context.Context, result models.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[result.MatchID]
	if !ok {
		return ErrNotFound
	}
	if m.Status != models.MatchStatusActive {
		return ErrMatchClosed
	}
	for userID := range result.RatingDeltas {
		if _, ok := s.players[userID]; !ok {
			return ErrNotFound
		}
	}

	now := time.Now()
	for userID, delta := range result.RatingDeltas {
		p := s.players[userID]
		p.Rating += delta
		p.UpdatedAt = now
	}
	m.Player1Score = result.Scores[m.Player1ID]
	m.Player2Score = result.Scores[m.Player2ID]
	m.WinnerID = result.WinnerID
	m.EndReason = result.EndReason
	m.Status = models.MatchStatusFinished
	finished := result.FinishedAt
	m.FinishedAt = &finished
	return nil
}

func (s *MemoryStore) AbortStaleMatches(ctx context.Context, startedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.matches {
		if m.Status == models.MatchStatusActive && m.StartedAt.Before(startedBefore) {
			m.Status = models.MatchStatusAborted
			m.EndReason = models.EndReasonAborted
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CardQuantity(ctx context.Context, userID, cardID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[collectionKey{userID, cardID}], nil
}

func (s *MemoryStore) SwapCards(ctx context.Context, a, b models.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ka := collectionKey{a.UserID, a.CardID}
	kb := collectionKey{b.UserID, b.CardID}
	if s.collections[ka] < 1 || s.collections[kb] < 1 {
		return ErrInsufficientCards
	}

	s.take(ka)
	s.take(kb)
	s.collections[collectionKey{a.UserID, b.CardID}]++
	s.collections[collectionKey{b.UserID, a.CardID}]++
	return nil
}

// take removes one copy, deleting the entry rather than leaving it at zero.
func (s *MemoryStore) take(k collectionKey) {
	if s.collections[k] <= 1 {
		delete(s.collections, k)
		return
	}
	s.collections[k]--
}

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// Fixtures is the JSON shape accepted by LoadFixtures.
type Fixtures struct {
	Cards   []models.Card `json:"cards"`
	Players []struct {
		ID     string `json:"id"`
		Rating int    `json:"rating"`
	} `json:"players"`
	Collections []models.CollectionEntry `json:"collections"`
	Loadouts    map[string][]string      `json:"loadouts"`
}

// LoadFixtures seeds the store from a JSON file.
func (s *MemoryStore) LoadFixtures(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixtures %s: %w", path, err)
	}
	var fx Fixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("failed to parse fixtures: %w", err)
	}
	for _, c := range fx.Cards {
		s.PutCard(c)
	}
	for _, p := range fx.Players {
		s.PutPlayer(p.ID, p.Rating)
	}
	for _, e := range fx.Collections {
		s.GrantCard(e.UserID, e.CardID, e.Quantity)
	}
	for userID, cardIDs := range fx.Loadouts {
		s.SetLoadout(userID, cardIDs...)
	}
	return nil
}
