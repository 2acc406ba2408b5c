package matchmaking

import (
	"testing"
	"time"
)

func newTestQueue(start time.Time) (*Queue, *[][2]string) {
	q := NewQueue(Options{})
	q.now = func() time.Time { return start }
	var pairs [][2]string
	q.SetPairHandler(func(a, b QueuedPlayer) {
		pairs = append(pairs, [2]string{a.UserID, b.UserID})
	})
	return q, &pairs
}

func TestCloseRatingsPairOnFirstTick(t *testing.T) {
	t0 := time.Unix(0, 0)
	q, pairs := newTestQueue(t0)
	q.Enqueue("a", 1000)
	q.Enqueue("b", 1100)

	if n := q.Tick(t0); n != 1 {
		t.Fatalf("Tick() = %d, want 1", n)
	}
	if len(*pairs) != 1 {
		t.Fatalf("pairs = %v, want one", *pairs)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after pairing", q.Len())
	}
}

func TestWindowWidensWithWait(t *testing.T) {
	t0 := time.Unix(0, 0)
	q, pairs := newTestQueue(t0)
	q.Enqueue("a", 1000)
	q.Enqueue("b", 1150)

	if n := q.Tick(t0.Add(5000 * time.Millisecond)); n != 0 {
		t.Fatalf("Tick(5s) = %d, want 0 (window 100 < gap 150)", n)
	}
	if !q.Contains("a") || !q.Contains("b") {
		t.Fatal("players left the queue without pairing")
	}
	if n := q.Tick(t0.Add(12000 * time.Millisecond)); n != 1 {
		t.Fatalf("Tick(12s) = %d, want 1 (window 200 >= gap 150)", n)
	}
	if got := (*pairs)[0]; got != [2]string{"a", "b"} {
		t.Fatalf("pair = %v, want [a b]", got)
	}
}

func TestMaxAllowed(t *testing.T) {
	q := NewQueue(Options{})
	tests := []struct {
		wait time.Duration
		want int
	}{
		{0, 100},
		{9999 * time.Millisecond, 100},
		{10 * time.Second, 200},
		{25 * time.Second, 300},
		{-time.Second, 100},
	}
	for _, tt := range tests {
		if got := q.MaxAllowed(tt.wait); got != tt.want {
			t.Fatalf("MaxAllowed(%v) = %d, want %d", tt.wait, got, tt.want)
		}
	}
}

func TestLongestWaiterSetsWindow(t *testing.T) {
	t0 := time.Unix(0, 0)
	q, _ := newTestQueue(t0)
	q.Enqueue("old", 1000)
	q.now = func() time.Time { return t0.Add(11 * time.Second) }
	q.Enqueue("new", 1180)

	// old has waited 11s (window 200); new has waited 0s.
	if n := q.Tick(t0.Add(11 * time.Second)); n != 1 {
		t.Fatalf("Tick() = %d, want 1", n)
	}
}

func TestGreedyScanPairsInEnqueueOrder(t *testing.T) {
	t0 := time.Unix(0, 0)
	q, pairs := newTestQueue(t0)
	for i, p := range []struct {
		id     string
		rating int
	}{{"p1", 1000}, {"p2", 1050}, {"p3", 1040}, {"p4", 2000}} {
		q.now = func() time.Time { return t0.Add(time.Duration(i) * time.Millisecond) }
		q.Enqueue(p.id, p.rating)
	}

	if n := q.Tick(t0.Add(time.Second)); n != 1 {
		t.Fatalf("Tick() = %d, want 1", n)
	}
	if got := (*pairs)[0]; got != [2]string{"p1", "p2"} {
		t.Fatalf("pair = %v, want [p1 p2] (first found wins)", got)
	}
	if !q.Contains("p3") || !q.Contains("p4") {
		t.Fatal("unpaired players removed from queue")
	}
}

func TestEnqueueIsIdempotentAndDequeue(t *testing.T) {
	q, _ := newTestQueue(time.Unix(0, 0))
	q.Enqueue("a", 1000)
	q.Enqueue("a", 1010)
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
	if !q.Dequeue("a") {
		t.Fatal("Dequeue() = false, want true")
	}
	if q.Dequeue("a") {
		t.Fatal("second Dequeue() = true, want false")
	}
}

func TestStartStop(t *testing.T) {
	q := NewQueue(Options{TickInterval: time.Hour})
	if err := q.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := q.Start(); err == nil {
		t.Fatal("second Start() error = nil, want error")
	}
	q.Stop()
	q.Stop()
}

func TestRequeueKeepsWait(t *testing.T) {
	t0 := time.Unix(0, 0)
	q, pairs := newTestQueue(t0)

	// a was paired at t0 but the partner vanished; it goes back in later.
	q.now = func() time.Time { return t0.Add(12 * time.Second) }
	q.Requeue(QueuedPlayer{UserID: "a", Rating: 1000, EnqueuedAt: t0})
	q.Enqueue("c", 1150)

	if n := q.Tick(t0.Add(12 * time.Second)); n != 1 {
		t.Fatalf("Tick(12s) = %d, want 1 (a waited 12s, window 200)", n)
	}
	if got := (*pairs)[0]; got != [2]string{"a", "c"} {
		t.Fatalf("pair = %v, want [a c]", got)
	}
}

func TestRequeueDoesNotOverrideRejoin(t *testing.T) {
	t0 := time.Unix(0, 0)
	q, _ := newTestQueue(t0.Add(time.Minute))
	q.Enqueue("a", 1200)
	q.Requeue(QueuedPlayer{UserID: "a", Rating: 1000, EnqueuedAt: t0})

	q.mu.Lock()
	got := *q.players["a"]
	q.mu.Unlock()
	if got.Rating != 1200 || !got.EnqueuedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("entry = %+v, want the rejoined entry", got)
	}
}
