package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"card-arena/internal/models"
	"card-arena/internal/store"
)

func startMatch(t *testing.T, st *store.MemoryStore, id string, startedAt time.Time) {
	t.Helper()
	err := st.CreateMatch(context.Background(), &models.Match{
		ID: id, Player1ID: "a", Player2ID: "b",
		Player1Rating: 1000, Player2Rating: 1000,
		Status: models.MatchStatusActive, StartedAt: startedAt,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSettleAppliesDeltasFromStartRatings(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutPlayer("a", 1000)
	st.PutPlayer("b", 1000)
	startMatch(t, st, "m1", time.Now())

	// Live rating drifted mid-match; settlement must still use 1000 vs 1000.
	st.PutPlayer("a", 1200)

	winner := "a"
	svc := NewMatchCompletionService(st, nil)
	deltas, err := svc.Settle(context.Background(), Settlement{
		Result: models.MatchResult{
			MatchID:    "m1",
			Scores:     map[string]int{"a": 6, "b": 2},
			WinnerID:   &winner,
			EndReason:  models.EndReasonScore,
			FinishedAt: time.Now(),
		},
		Player1ID: "a", Player2ID: "b",
		Player1Rating: 1000, Player2Rating: 1000,
	})
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if deltas["a"] != 16 || deltas["b"] != -16 {
		t.Fatalf("deltas = %v, want a:+16 b:-16", deltas)
	}
	if r, _ := st.Rating(context.Background(), "a"); r != 1216 {
		t.Fatalf("rating a = %d, want 1216", r)
	}
	if r, _ := st.Rating(context.Background(), "b"); r != 984 {
		t.Fatalf("rating b = %d, want 984", r)
	}

	m, _ := st.Match("m1")
	if m.Status != models.MatchStatusFinished || m.Player1Score != 6 || m.Player2Score != 2 {
		t.Fatalf("match = %+v", m)
	}
}

func TestSettleDrawIsZeroForEqualRatings(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutPlayer("a", 1000)
	st.PutPlayer("b", 1000)
	startMatch(t, st, "m1", time.Now())

	svc := NewMatchCompletionService(st, nil)
	deltas, err := svc.Settle(context.Background(), Settlement{
		Result:    models.MatchResult{MatchID: "m1", Scores: map[string]int{"a": 3, "b": 3}, EndReason: models.EndReasonRounds},
		Player1ID: "a", Player2ID: "b", Player1Rating: 1000, Player2Rating: 1000,
	})
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if deltas["a"] != 0 || deltas["b"] != 0 {
		t.Fatalf("deltas = %v, want zero", deltas)
	}
}

func TestSettleUnknownMatchFails(t *testing.T) {
	svc := NewMatchCompletionService(store.NewMemoryStore(), nil)
	_, err := svc.Settle(context.Background(), Settlement{
		Result:    models.MatchResult{MatchID: "missing"},
		Player1ID: "a", Player2ID: "b",
	})
	if err == nil {
		t.Fatal("Settle() error = nil, want not found")
	}
}

func TestSettleFailureWritesNothing(t *testing.T) {
	winner := "a"
	settlement := Settlement{
		Result: models.MatchResult{
			MatchID:   "m1",
			Scores:    map[string]int{"a": 6, "b": 0},
			WinnerID:  &winner,
			EndReason: models.EndReasonScore,
		},
		Player1ID: "a", Player2ID: "b",
		Player1Rating: 1000, Player2Rating: 1000,
	}

	tests := []struct {
		name  string
		setup func(st *store.MemoryStore)
	}{
		{"second player missing", func(st *store.MemoryStore) {
			st.PutPlayer("a", 1000)
			startMatch(t, st, "m1", time.Now())
		}},
		{"match already aborted", func(st *store.MemoryStore) {
			st.PutPlayer("a", 1000)
			st.PutPlayer("b", 1000)
			startMatch(t, st, "m1", time.Now().Add(-time.Hour))
			st.AbortStaleMatches(context.Background(), time.Now())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			tt.setup(st)
			before, _ := st.Match("m1")

			svc := NewMatchCompletionService(st, nil)
			if _, err := svc.Settle(context.Background(), settlement); err == nil {
				t.Fatal("Settle() error = nil, want failure")
			}
			if r, _ := st.Rating(context.Background(), "a"); r != 1000 {
				t.Fatalf("rating a = %d, want 1000 untouched", r)
			}
			if m, _ := st.Match("m1"); m.Status != before.Status || m.WinnerID != nil {
				t.Fatalf("match = %+v, want unchanged %s", m, before.Status)
			}
		})
	}
}

func TestSettleTwiceAppliesRatingsOnce(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutPlayer("a", 1000)
	st.PutPlayer("b", 1000)
	startMatch(t, st, "m1", time.Now())

	winner := "a"
	settlement := Settlement{
		Result:    models.MatchResult{MatchID: "m1", WinnerID: &winner, EndReason: models.EndReasonScore},
		Player1ID: "a", Player2ID: "b", Player1Rating: 1000, Player2Rating: 1000,
	}
	svc := NewMatchCompletionService(st, nil)
	if _, err := svc.Settle(context.Background(), settlement); err != nil {
		t.Fatalf("first Settle() error = %v", err)
	}
	if _, err := svc.Settle(context.Background(), settlement); !errors.Is(err, store.ErrMatchClosed) {
		t.Fatalf("second Settle() error = %v, want ErrMatchClosed", err)
	}
	if r, _ := st.Rating(context.Background(), "a"); r != 1016 {
		t.Fatalf("rating a = %d, want 1016", r)
	}
}

func TestStaleCleanupRunOnce(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	startMatch(t, st, "stale", now.Add(-time.Hour))
	startMatch(t, st, "live", now.Add(-time.Minute))

	svc := NewStaleMatchCleanupService(st, nil, time.Minute, 30*time.Minute)
	if n := svc.RunOnce(context.Background(), now); n != 1 {
		t.Fatalf("RunOnce() = %d, want 1", n)
	}
	if m, _ := st.Match("stale"); m.Status != models.MatchStatusAborted {
		t.Fatalf("stale status = %s, want aborted", m.Status)
	}
	if m, _ := st.Match("live"); m.Status != models.MatchStatusActive {
		t.Fatalf("live status = %s, want active", m.Status)
	}
}
