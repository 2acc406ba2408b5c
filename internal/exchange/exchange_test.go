package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"card-arena/internal/errs"
	"card-arena/internal/models"
	"card-arena/internal/protocol"
	"card-arena/internal/store"
	"card-arena/internal/turntimer"
)

type sent struct {
	userID  string
	event   string
	payload interface{}
}

type recorder struct {
	mu     sync.Mutex
	online map[string]bool
	events []sent
}

func (r *recorder) Emit(userID, event string, payload interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{userID, event, payload})
	return true
}

func (r *recorder) Broadcast(userIDs []string, event string, payload interface{}) {
	for _, id := range userIDs {
		r.Emit(id, event, payload)
	}
}

func (r *recorder) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[userID]
}

func (r *recorder) all(userID, event string) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for _, e := range r.events {
		if e.userID == userID && e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

var (
	alice = Participant{UserID: "alice", Username: "Alice"}
	bob   = Participant{UserID: "bob", Username: "Bob"}
)

func newTestManager(t *testing.T, inviteTimeout time.Duration) (*Manager, *store.MemoryStore, *recorder) {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutCard(models.Card{ID: "dragon", Name: "Dragon", Attack: 9})
	st.PutCard(models.Card{ID: "golem", Name: "Golem", Defense: 9})
	st.PutCard(models.Card{ID: "sprite", Name: "Sprite", Control: 4})
	st.GrantCard("alice", "dragon", 1)
	st.GrantCard("alice", "sprite", 2)
	st.GrantCard("bob", "golem", 3)

	rec := &recorder{online: map[string]bool{"alice": true, "bob": true}}
	timers := turntimer.NewService()
	t.Cleanup(timers.StopAll)
	return NewManager(st, rec, timers, nil, inviteTimeout), st, rec
}

// openExchange runs request + accept + both selections.
func openExchange(t *testing.T, m *Manager) *Session {
	t.Helper()
	ctx := context.Background()
	s, err := m.Request(ctx, alice, "bob")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if err := m.Accept(ctx, bob, s.ID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if err := m.SelectCard(ctx, "alice", s.ID, "dragon"); err != nil {
		t.Fatalf("SelectCard(alice) error = %v", err)
	}
	if err := m.SelectCard(ctx, "bob", s.ID, "golem"); err != nil {
		t.Fatalf("SelectCard(bob) error = %v", err)
	}
	return s
}

func TestExchangeIDIsDeterministicAndOrdered(t *testing.T) {
	if ExchangeID("a", "b") != ExchangeID("a", "b") {
		t.Fatal("ExchangeID not deterministic")
	}
	if ExchangeID("a", "b") == ExchangeID("b", "a") {
		t.Fatal("ExchangeID ignores order")
	}
}

func TestCompleteExchangeSwapsCards(t *testing.T) {
	m, st, rec := newTestManager(t, time.Minute)
	s := openExchange(t, m)
	ctx := context.Background()

	if err := m.Confirm(ctx, "alice", s.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Confirm(ctx, "bob", s.ID); err != nil {
		t.Fatal(err)
	}

	done := rec.all("alice", protocol.ExchangeCompleted)
	if len(done) != 1 {
		t.Fatalf("exchange_completed count = %d, want 1", len(done))
	}
	got := done[0].(protocol.ExchangeCompletedPayload)
	if got.User1Card != "dragon" || got.User2Card != "golem" {
		t.Fatalf("completed = %+v", got)
	}

	aliceCards := st.Collection("alice")
	if _, ok := aliceCards["dragon"]; ok {
		t.Fatal("alice still holds a dragon row at quantity 0")
	}
	if aliceCards["golem"] != 1 {
		t.Fatalf("alice golem = %d, want 1", aliceCards["golem"])
	}
	bobCards := st.Collection("bob")
	if bobCards["golem"] != 2 || bobCards["dragon"] != 1 {
		t.Fatalf("bob collection = %v, want golem:2 dragon:1", bobCards)
	}
	if m.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after completion", m.Count())
	}
	if s.State() != StateCompleted {
		t.Fatalf("State() = %s, want completed", s.State())
	}
}

func TestConcurrentConfirmsSwapExactlyOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		m, st, rec := newTestManager(t, time.Minute)
		s := openExchange(t, m)

		var wg sync.WaitGroup
		for _, user := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_ = m.Confirm(context.Background(), u, s.ID)
			}(user)
		}
		wg.Wait()

		if n := len(rec.all("bob", protocol.ExchangeCompleted)); n != 1 {
			t.Fatalf("iteration %d: exchange_completed count = %d, want 1", i, n)
		}
		if got := st.Collection("bob")["golem"]; got != 2 {
			t.Fatalf("iteration %d: bob golem = %d, want 2", i, got)
		}
		if got := st.Collection("bob")["dragon"]; got != 1 {
			t.Fatalf("iteration %d: bob dragon = %d, want 1", i, got)
		}
	}
}

func TestNewSelectionResetsConfirmation(t *testing.T) {
	m, st, rec := newTestManager(t, time.Minute)
	s := openExchange(t, m)
	ctx := context.Background()

	if err := m.Confirm(ctx, "alice", s.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.SelectCard(ctx, "alice", s.ID, "sprite"); err != nil {
		t.Fatal(err)
	}
	updates := rec.all("bob", protocol.ConfirmationUpdated)
	last := updates[len(updates)-1].(protocol.ConfirmationUpdatedPayload)
	if last.Confirmations["alice"] {
		t.Fatal("alice confirmation survived a new selection")
	}

	// Bob confirming alone must not trigger the swap.
	if err := m.Confirm(ctx, "bob", s.ID); err != nil {
		t.Fatal(err)
	}
	if len(rec.all("bob", protocol.ExchangeCompleted)) != 0 {
		t.Fatal("swap ran without both confirmations")
	}
	if st.Collection("alice")["dragon"] != 1 {
		t.Fatal("inventory touched before commit")
	}
}

func TestConfirmToggles(t *testing.T) {
	m, _, rec := newTestManager(t, time.Minute)
	s := openExchange(t, m)
	ctx := context.Background()

	_ = m.Confirm(ctx, "alice", s.ID)
	_ = m.Confirm(ctx, "alice", s.ID)
	updates := rec.all("alice", protocol.ConfirmationUpdated)
	last := updates[len(updates)-1].(protocol.ConfirmationUpdatedPayload)
	if last.Confirmations["alice"] {
		t.Fatal("second Confirm() did not toggle back to false")
	}

	_ = m.Confirm(ctx, "alice", s.ID)
	if err := m.CancelConfirmation(ctx, "alice", s.ID); err != nil {
		t.Fatal(err)
	}
	updates = rec.all("alice", protocol.ConfirmationUpdated)
	last = updates[len(updates)-1].(protocol.ConfirmationUpdatedPayload)
	if last.Confirmations["alice"] {
		t.Fatal("CancelConfirmation() left alice confirmed")
	}
}

func TestSwapConflictDestroysSession(t *testing.T) {
	m, st, rec := newTestManager(t, time.Minute)
	s := openExchange(t, m)
	ctx := context.Background()

	// Alice loses her only dragon between selection and commit.
	if err := st.SwapCards(ctx, models.Offer{UserID: "alice", CardID: "dragon"}, models.Offer{UserID: "bob", CardID: "golem"}); err != nil {
		t.Fatal(err)
	}
	before := st.Collection("bob")

	_ = m.Confirm(ctx, "alice", s.ID)
	_ = m.Confirm(ctx, "bob", s.ID)

	if n := len(rec.all("alice", protocol.ExchangeError)); n != 1 {
		t.Fatalf("exchange_error count = %d, want 1", n)
	}
	if len(rec.all("alice", protocol.ExchangeCompleted)) != 0 {
		t.Fatal("exchange_completed sent for a failed swap")
	}
	after := st.Collection("bob")
	if after["golem"] != before["golem"] || after["dragon"] != before["dragon"] {
		t.Fatalf("bob inventory changed on failed swap: %v -> %v", before, after)
	}
	if _, ok := m.Get(s.ID); ok {
		t.Fatal("session survived a failed swap")
	}
}

func TestRequestRejections(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	ctx := context.Background()

	if _, err := m.Request(ctx, alice, "carol"); errs.CodeOf(err) != errs.CodeValidation {
		t.Fatalf("Request(offline) error = %v, want validation", err)
	}
	if _, err := m.Request(ctx, alice, "alice"); errs.CodeOf(err) != errs.CodeValidation {
		t.Fatalf("Request(self) error = %v, want validation", err)
	}
	if m.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", m.Count())
	}

	if _, err := m.Request(ctx, alice, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Request(ctx, bob, "alice"); errs.CodeOf(err) != errs.CodeConflict {
		t.Fatalf("second Request() error = %v, want conflict", err)
	}
}

func TestOnlyTargetAcceptsOrRejects(t *testing.T) {
	m, _, rec := newTestManager(t, time.Minute)
	ctx := context.Background()
	s, _ := m.Request(ctx, alice, "bob")

	if err := m.Accept(ctx, alice, s.ID); errs.CodeOf(err) != errs.CodeAuthorization {
		t.Fatalf("Accept(initiator) error = %v, want authorization", err)
	}
	if err := m.SelectCard(ctx, "alice", s.ID, "dragon"); errs.CodeOf(err) != errs.CodeConflict {
		t.Fatalf("SelectCard(pending) error = %v, want conflict", err)
	}
	if err := m.Reject(ctx, "bob", s.ID); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if len(rec.all("alice", protocol.ExchangeRejected)) != 1 {
		t.Fatal("initiator not told about rejection")
	}
	if _, ok := m.ActiveFor("alice"); ok {
		t.Fatal("alice still bound to a rejected exchange")
	}
}

func TestSelectCardRequiresOwnership(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	ctx := context.Background()
	s, _ := m.Request(ctx, alice, "bob")
	_ = m.Accept(ctx, bob, s.ID)

	if err := m.SelectCard(ctx, "bob", s.ID, "dragon"); errs.CodeOf(err) != errs.CodeValidation {
		t.Fatalf("SelectCard(unowned) error = %v, want validation", err)
	}
	if err := m.SelectCard(ctx, "carol", s.ID, "golem"); errs.CodeOf(err) != errs.CodeAuthorization {
		t.Fatalf("SelectCard(outsider) error = %v, want authorization", err)
	}
	if err := m.Confirm(ctx, "bob", s.ID); errs.CodeOf(err) != errs.CodeValidation {
		t.Fatalf("Confirm(no selection) error = %v, want validation", err)
	}
}

func TestCancelAndDisconnect(t *testing.T) {
	m, st, rec := newTestManager(t, time.Minute)
	s := openExchange(t, m)
	ctx := context.Background()

	if err := m.Cancel(ctx, "bob", s.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	cancelled := rec.all("alice", protocol.ExchangeCancelled)
	if len(cancelled) != 1 || cancelled[0].(protocol.ExchangeCancelledPayload).CancelledBy != "bob" {
		t.Fatalf("exchange_cancelled = %v", cancelled)
	}
	if st.Collection("alice")["dragon"] != 1 {
		t.Fatal("inventory touched by cancel")
	}

	s2 := openExchange(t, m)
	m.LeaveAll("alice")
	cancelled = rec.all("bob", protocol.ExchangeCancelled)
	last := cancelled[len(cancelled)-1].(protocol.ExchangeCancelledPayload)
	if last.ExchangeID != s2.ID || last.Reason != ReasonDisconnected {
		t.Fatalf("disconnect cancel = %+v", last)
	}
	if m.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", m.Count())
	}
}

func TestPendingInvitationExpires(t *testing.T) {
	m, _, rec := newTestManager(t, 20*time.Millisecond)
	if _, err := m.Request(context.Background(), alice, "bob"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.all("alice", protocol.ExchangeCancelled)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("invitation never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := rec.all("alice", protocol.ExchangeCancelled)[0].(protocol.ExchangeCancelledPayload)
	if got.Reason != ReasonExpired {
		t.Fatalf("reason = %s, want expired", got.Reason)
	}
	if m.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", m.Count())
	}
}
