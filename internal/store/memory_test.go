package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"card-arena/internal/models"
)

func TestSwapCardsMovesOneCopyEachWay(t *testing.T) {
	s := NewMemoryStore()
	s.GrantCard("alice", "dragon", 2)
	s.GrantCard("bob", "golem", 1)

	err := s.SwapCards(context.Background(),
		models.Offer{UserID: "alice", CardID: "dragon"},
		models.Offer{UserID: "bob", CardID: "golem"})
	if err != nil {
		t.Fatalf("SwapCards() error = %v", err)
	}

	alice := s.Collection("alice")
	if alice["dragon"] != 1 || alice["golem"] != 1 {
		t.Fatalf("alice collection = %v, want dragon:1 golem:1", alice)
	}
	bob := s.Collection("bob")
	if _, ok := bob["golem"]; ok {
		t.Fatalf("bob still holds a golem entry: %v", bob)
	}
	if bob["dragon"] != 1 {
		t.Fatalf("bob dragon = %d, want 1", bob["dragon"])
	}
}

func TestSwapCardsIsAllOrNothing(t *testing.T) {
	s := NewMemoryStore()
	s.GrantCard("alice", "dragon", 1)

	err := s.SwapCards(context.Background(),
		models.Offer{UserID: "alice", CardID: "dragon"},
		models.Offer{UserID: "bob", CardID: "golem"})
	if !errors.Is(err, ErrInsufficientCards) {
		t.Fatalf("SwapCards() error = %v, want ErrInsufficientCards", err)
	}
	if got := s.Collection("alice")["dragon"]; got != 1 {
		t.Fatalf("alice dragon = %d, want 1 (unchanged)", got)
	}
	if got := len(s.Collection("bob")); got != 0 {
		t.Fatalf("bob collection size = %d, want 0", got)
	}
}

func TestConcurrentSwapsOfLastCopySucceedOnce(t *testing.T) {
	s := NewMemoryStore()
	s.GrantCard("alice", "dragon", 1)
	s.GrantCard("bob", "golem", 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.SwapCards(context.Background(),
				models.Offer{UserID: "alice", CardID: "dragon"},
				models.Offer{UserID: "bob", CardID: "golem"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("successful swaps = %d, want 1", succeeded)
	}
	if got := s.Collection("bob")["golem"]; got != 4 {
		t.Fatalf("bob golem = %d, want 4", got)
	}
}

func TestRatingCreatesDefaultRecord(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r, err := s.Rating(ctx, "newcomer")
	if err != nil {
		t.Fatalf("Rating() error = %v", err)
	}
	if r != models.DefaultRating {
		t.Fatalf("Rating() = %d, want %d", r, models.DefaultRating)
	}
	got, _ := s.AdjustRating(ctx, "newcomer", -16)
	if got != 984 {
		t.Fatalf("AdjustRating() = %d, want 984", got)
	}
}

func TestAbortStaleMatches(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.CreateMatch(ctx, &models.Match{ID: "old", Status: models.MatchStatusActive, StartedAt: now.Add(-2 * time.Hour)})
	_ = s.CreateMatch(ctx, &models.Match{ID: "fresh", Status: models.MatchStatusActive, StartedAt: now})

	n, err := s.AbortStaleMatches(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("AbortStaleMatches() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("aborted = %d, want 1", n)
	}
	if m, _ := s.Match("old"); m.Status != models.MatchStatusAborted {
		t.Fatalf("old status = %s, want aborted", m.Status)
	}
	if m, _ := s.Match("fresh"); m.Status != models.MatchStatusActive {
		t.Fatalf("fresh status = %s, want active", m.Status)
	}
}

func TestLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.json")
	data := `{
		"cards": [{"id": "c1", "name": "Dragon", "ataque": 9, "control": 4, "defensa": 2}],
		"players": [{"id": "u1", "rating": 1200}],
		"collections": [{"userId": "u1", "cardId": "c1", "quantity": 3}],
		"loadouts": {"u1": ["c1"]}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewMemoryStore()
	if err := s.LoadFixtures(path); err != nil {
		t.Fatalf("LoadFixtures() error = %v", err)
	}
	ctx := context.Background()
	cards, _ := s.ActiveLoadout(ctx, "u1")
	if len(cards) != 1 || cards[0].Attack != 9 {
		t.Fatalf("ActiveLoadout() = %+v, want one card with ataque 9", cards)
	}
	if q, _ := s.CardQuantity(ctx, "u1", "c1"); q != 3 {
		t.Fatalf("CardQuantity() = %d, want 3", q)
	}
	if r, _ := s.Rating(ctx, "u1"); r != 1200 {
		t.Fatalf("Rating() = %d, want 1200", r)
	}
}

func TestLockOrderIsStable(t *testing.T) {
	a := models.Offer{UserID: "zed", CardID: "x"}
	b := models.Offer{UserID: "amy", CardID: "y"}
	f1, s1 := lockOrder(a, b)
	f2, s2 := lockOrder(b, a)
	if f1 != f2 || s1 != s2 {
		t.Fatalf("lockOrder not symmetric: (%v,%v) vs (%v,%v)", f1, s1, f2, s2)
	}
	if f1.UserID != "amy" {
		t.Fatalf("first = %s, want amy", f1.UserID)
	}
}
