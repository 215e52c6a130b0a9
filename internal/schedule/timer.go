package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/aura/internal/clock"
)

// TimerScheduler keeps jobs in memory. Pending jobs are lost when the
// process exits.
type TimerScheduler struct {
	registry

	clock         clock.Clock
	logger        *slog.Logger
	actionTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	timers  map[string]clock.Timer
	running sync.WaitGroup
}

var _ Scheduler = (*TimerScheduler)(nil)

// NewTimerScheduler creates an in-memory scheduler. Each action gets its own
// goroutine and a context bounded by actionTimeout.
func NewTimerScheduler(c clock.Clock, actionTimeout time.Duration, logger *slog.Logger) *TimerScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerScheduler{
		clock:         c,
		logger:        logger,
		actionTimeout: actionTimeout,
		timers:        make(map[string]clock.Timer),
	}
}

// Schedule arms a timer for job. ctx is not retained.
func (s *TimerScheduler) Schedule(_ context.Context, delay time.Duration, job Job) (Handle, error) {
	fn, err := s.lookup(job.Action)
	if err != nil {
		return Handle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Handle{}, ErrClosed
	}

	h := Handle{ID: uuid.NewString(), FireAt: s.clock.Now().Add(delay)}
	s.timers[h.ID] = s.clock.AfterFunc(delay, func() { s.fire(h.ID, job, fn) })
	return h, nil
}

// Pending returns the number of armed timers.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *TimerScheduler) fire(id string, job Job, fn ActionFunc) {
	s.mu.Lock()
	delete(s.timers, id)
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.running.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.actionTimeout)
		defer cancel()
		if err := fn(ctx, job.Arg); err != nil {
			s.logger.Warn("scheduled action failed", "job_id", id, "action", job.Action, "arg", job.Arg, "error", err)
			return
		}
		s.logger.Debug("scheduled action finished", "job_id", id, "action", job.Action, "arg", job.Arg)
	}()
}

// Close stops pending timers and waits for running actions until ctx is done.
func (s *TimerScheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for id, t := range s.timers {
			t.Stop()
			delete(s.timers, id)
		}
	}
	s.mu.Unlock()
	return waitGroup(ctx, &s.running)
}
