// Package scheduler fires each user's cron-style sync_schedule trigger,
// serializing invocations per user. It does no session recovery of its
// own; the start command runs App.RecoverSessions before starting it.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rohit-purandare/shelfbridge/internal/logger"
)

// RunFunc performs one scheduled sync run for userID.
type RunFunc func(ctx context.Context, userID string)

// Scheduler wraps a robfig/cron scheduler, adding per-user invocation
// serialization: if a prior run for a user hasn't finished when its next
// tick fires, the tick is skipped rather than overlapping// "a separate scheduler thread/task ... serializes invocations for the
// same user."
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger

	mu      sync.Mutex
	running map[string]bool
}

func New(timezone string, log *logger.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		log:     log,
		running: make(map[string]bool),
	}, nil
}

// AddUser registers userID's sync_schedule expression, wrapping run so
// overlapping ticks for the same user are dropped rather than queued.
func (s *Scheduler) AddUser(ctx context.Context, userID, schedule string, run RunFunc) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if !s.tryStart(userID) {
			if s.log != nil {
				s.log.Warn("skipping scheduled sync: previous run still in flight", map[string]interface{}{"user": userID})
			}
			return
		}
		defer s.finish(userID)
		run(ctx, userID)
	})
	return err
}

func (s *Scheduler) tryStart(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[userID] {
		return false
	}
	s.running[userID] = true
	return true
}

func (s *Scheduler) finish(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, userID)
}

// Start begins firing scheduled triggers. Non-blocking; cron runs its
// own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any in-flight trigger callback
// to return, per the shutdown contract in ("drain in-flight
// books").
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
