package turntimer

import (
	"sync"
	"time"
)

// Timer is one pending deadline.
type Timer struct {
	Key      string
	Deadline time.Time
	stopCh   chan struct{}
}

// Service runs keyed one-shot timers: duel response windows and exchange
// invitation expiry. Starting a key that is already pending replaces it.
type Service struct {
	active map[string]*Timer
	mu     sync.Mutex
}

func NewService() *Service {
	return &Service{active: make(map[string]*Timer)}
}

// Start schedules fn to run after d unless the key is stopped or restarted first.
func (s *Service) Start(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.active[key]; ok {
		close(existing.stopCh)
	}

	t := &Timer{
		Key:      key,
		Deadline: time.Now().Add(d),
		stopCh:   make(chan struct{}),
	}
	s.active[key] = t

	go s.run(t, d, fn)
}

// Stop cancels a pending timer. Returns false if nothing was pending.
func (s *Service) Stop(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.active[key]
	if !ok {
		return false
	}
	close(t.stopCh)
	delete(s.active, key)
	return true
}

// Remaining returns the time left on a pending timer.
func (s *Service) Remaining(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.active[key]
	if !ok {
		return 0, false
	}
	left := time.Until(t.Deadline)
	if left < 0 {
		left = 0
	}
	return left, true
}

func (s *Service) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[key]
	return ok
}

// ActiveCount returns the number of pending timers
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// StopAll cancels every pending timer. Used on shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.active {
		close(t.stopCh)
		delete(s.active, key)
	}
}

func (s *Service) run(t *Timer, d time.Duration, fn func()) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-t.stopCh:
		return
	case <-timer.C:
	}

	s.mu.Lock()
	current, ok := s.active[t.Key]
	if !ok || current != t {
		// Stopped or replaced between firing and taking the lock.
		s.mu.Unlock()
		return
	}
	delete(s.active, t.Key)
	s.mu.Unlock()

	fn()
}
