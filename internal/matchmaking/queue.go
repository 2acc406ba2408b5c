package matchmaking

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Defaults for the tolerance-widening window.
const (
	DefaultTickInterval = 5 * time.Second
	DefaultBaseWindow   = 100
	DefaultWindowStep   = 100
	DefaultStepInterval = 10 * time.Second
)

// QueuedPlayer is a user waiting for an opponent.
type QueuedPlayer struct {
	UserID     string
	Rating     int
	EnqueuedAt time.Time
}

// PairHandler is called once per pair found by a tick, outside the queue lock.
// a is the player who waited longer.
type PairHandler func(a, b QueuedPlayer)

type Options struct {
	TickInterval time.Duration
	BaseWindow   int
	WindowStep   int
	StepInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.BaseWindow <= 0 {
		o.BaseWindow = DefaultBaseWindow
	}
	if o.WindowStep <= 0 {
		o.WindowStep = DefaultWindowStep
	}
	if o.StepInterval <= 0 {
		o.StepInterval = DefaultStepInterval
	}
	return o
}

// Queue holds waiting players. One scheduler job per process pairs them.
type Queue struct {
	opts        Options
	players     map[string]*QueuedPlayer
	pairHandler PairHandler
	scheduler   gocron.Scheduler
	now         func() time.Time
	mu          sync.Mutex
}

func NewQueue(opts Options) *Queue {
	return &Queue{
		opts:    opts.withDefaults(),
		players: make(map[string]*QueuedPlayer),
		now:     time.Now,
	}
}

// SetPairHandler registers the callback that turns a pair into a duel.
func (q *Queue) SetPairHandler(fn PairHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pairHandler = fn
}

// Start schedules the pairing tick. Calling Start twice is an error.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.scheduler != nil {
		return fmt.Errorf("matchmaking queue already started")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(q.opts.TickInterval),
		gocron.NewTask(func() {
			if n := q.Tick(q.now()); n > 0 {
				log.Printf("[Matchmaking] Paired %d match(es)", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule matchmaking tick: %w", err)
	}
	s.Start()
	q.scheduler = s
	log.Println("Matchmaking queue started")
	return nil
}

// Stop halts the pairing tick and waits for a running tick to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	s := q.scheduler
	q.scheduler = nil
	q.mu.Unlock()

	if s == nil {
		return
	}
	if err := s.Shutdown(); err != nil {
		log.Printf("[Matchmaking] Scheduler shutdown: %v", err)
	}
	log.Println("Matchmaking queue stopped")
}

// Enqueue adds the user or refreshes their entry. Refreshing resets the wait.
func (q *Queue) Enqueue(userID string, rating int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.players[userID] = &QueuedPlayer{
		UserID:     userID,
		Rating:     rating,
		EnqueuedAt: q.now(),
	}
}

// Requeue puts a player taken by Tick back with their original enqueue
// time, so the wait already served keeps widening their window. An entry
// created since then (the user rejoined) is left alone.
func (q *Queue) Requeue(p QueuedPlayer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.players[p.UserID]; ok {
		return
	}
	q.players[p.UserID] = &p
}

// Dequeue removes a waiting user. Returns false if they were not queued.
func (q *Queue) Dequeue(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.players[userID]; !ok {
		return false
	}
	delete(q.players, userID)
	return true
}

func (q *Queue) Contains(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.players[userID]
	return ok
}

// Entry returns a copy of the user's queue entry.
func (q *Queue) Entry(userID string) (QueuedPlayer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.players[userID]
	if !ok {
		return QueuedPlayer{}, false
	}
	return *p, true
}

// Len returns the number of waiting players
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.players)
}

// MaxAllowed is the rating gap tolerated after waiting for wait.
func (q *Queue) MaxAllowed(wait time.Duration) int {
	if wait < 0 {
		wait = 0
	}
	steps := int(wait / q.opts.StepInterval)
	return q.opts.BaseWindow + q.opts.WindowStep*steps
}

// Tick scans the queue once and pairs compatible players greedily in
// enqueue order. Pairs are removed before the handler runs. Returns the
// number of pairs made.
func (q *Queue) Tick(now time.Time) int {
	q.mu.Lock()
	waiting := make([]QueuedPlayer, 0, len(q.players))
	for _, p := range q.players {
		waiting = append(waiting, *p)
	}
	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].EnqueuedAt.Equal(waiting[j].EnqueuedAt) {
			return waiting[i].UserID < waiting[j].UserID
		}
		return waiting[i].EnqueuedAt.Before(waiting[j].EnqueuedAt)
	})

	matched := make([]bool, len(waiting))
	var pairs [][2]QueuedPlayer
	for i := range waiting {
		if matched[i] {
			continue
		}
		// i is the earlier of any pair it forms, so its wait sets the window.
		window := q.MaxAllowed(now.Sub(waiting[i].EnqueuedAt))
		for j := i + 1; j < len(waiting); j++ {
			if matched[j] {
				continue
			}
			if abs(waiting[i].Rating-waiting[j].Rating) <= window {
				matched[i], matched[j] = true, true
				pairs = append(pairs, [2]QueuedPlayer{waiting[i], waiting[j]})
				delete(q.players, waiting[i].UserID)
				delete(q.players, waiting[j].UserID)
				break
			}
		}
	}
	handler := q.pairHandler
	q.mu.Unlock()

	if handler != nil {
		for _, p := range pairs {
			handler(p[0], p[1])
		}
	}
	return len(pairs)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
