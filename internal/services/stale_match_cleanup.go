package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"card-arena/internal/audit"
	"card-arena/internal/store"

	"github.com/go-co-op/gocron/v2"
)

// StaleMatchCleanupService marks matches that stayed active past any
// possible duration as aborted. Sessions live in process memory, so such
// rows are left behind by a crash or restart.
type StaleMatchCleanupService struct {
	store          store.Store
	audit          *audit.Logger
	scheduler      gocron.Scheduler
	interval       time.Duration
	staleThreshold time.Duration
}

func NewStaleMatchCleanupService(st store.Store, auditLog *audit.Logger, interval, staleThreshold time.Duration) *StaleMatchCleanupService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StaleMatchCleanupService{
		store:          st,
		audit:          auditLog,
		interval:       interval,
		staleThreshold: staleThreshold,
	}
}

// Start schedules the periodic cleanup pass.
func (s *StaleMatchCleanupService) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.RunOnce(ctx, time.Now())
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule stale match cleanup: %w", err)
	}
	sched.Start()
	s.scheduler = sched
	log.Printf("Stale match cleanup service started (interval: %s, threshold: %s)", s.interval, s.staleThreshold)
	return nil
}

func (s *StaleMatchCleanupService) Stop() {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("Stale match cleanup shutdown: %v", err)
	}
	s.scheduler = nil
	log.Println("Stale match cleanup service stopped")
}

// RunOnce aborts matches started before now minus the threshold.
func (s *StaleMatchCleanupService) RunOnce(ctx context.Context, now time.Time) int64 {
	n, err := s.store.AbortStaleMatches(ctx, now.Add(-s.staleThreshold))
	if err != nil {
		log.Printf("Stale match cleanup: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("Stale match cleanup: aborted %d match(es)", n)
		s.audit.Record(audit.EventMatchAborted, "", "", fmt.Sprintf("%d stale match(es)", n))
	}
	return n
}
