package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/aura/internal/clock"
	"github.com/hpungsan/aura/internal/store"
)

// DefaultBatchSize bounds how many jobs one poll claims.
const DefaultBatchSize = 32

// Options tunes a DurableScheduler.
type Options struct {
	PollInterval  time.Duration
	ClaimTimeout  time.Duration
	ActionTimeout time.Duration
	BatchSize     int
}

// DurableScheduler persists jobs and runs them from a polling worker.
// A job claimed by a worker that dies is claimed again once ClaimTimeout
// has passed.
type DurableScheduler struct {
	registry

	queue  store.CheckIns
	clock  clock.Clock
	logger *slog.Logger
	opts   Options

	mu      sync.Mutex
	closed  bool
	stop    chan struct{}
	loops   sync.WaitGroup
	running sync.WaitGroup
}

var _ Scheduler = (*DurableScheduler)(nil)

// NewDurableScheduler creates a store-backed scheduler. Call Start to begin
// polling.
func NewDurableScheduler(queue store.CheckIns, c clock.Clock, opts Options, logger *slog.Logger) *DurableScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &DurableScheduler{
		queue:  queue,
		clock:  c,
		logger: logger,
		opts:   opts,
		stop:   make(chan struct{}),
	}
}

// Schedule persists job to fire after delay.
func (s *DurableScheduler) Schedule(ctx context.Context, delay time.Duration, job Job) (Handle, error) {
	if _, err := s.lookup(job.Action); err != nil {
		return Handle{}, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Handle{}, ErrClosed
	}

	now := s.clock.Now()
	h := Handle{ID: uuid.NewString(), FireAt: now.Add(delay)}
	err := s.queue.EnqueueCheckIn(ctx, store.PendingJob{
		ID:        h.ID,
		Action:    job.Action,
		Arg:       job.Arg,
		FireAt:    h.FireAt.UnixMilli(),
		CreatedAt: now.UnixMilli(),
	})
	if err != nil {
		return Handle{}, err
	}
	return h, nil
}

// Start launches the polling loop. It polls once immediately so jobs that
// came due while the process was down run without waiting a full interval.
func (s *DurableScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.loops.Add(1)
	go s.loop(ctx)
}

func (s *DurableScheduler) loop(ctx context.Context) {
	defer s.loops.Done()
	ticker := s.clock.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.pollAndLog(ctx)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.pollAndLog(ctx)
		}
	}
}

func (s *DurableScheduler) pollAndLog(ctx context.Context) {
	if _, err := s.Poll(ctx); err != nil {
		s.logger.Error("failed to poll check-in queue", "error", err)
	}
}

// Poll claims due jobs, runs them concurrently and records each outcome.
// It returns the number of jobs claimed.
func (s *DurableScheduler) Poll(ctx context.Context) (int, error) {
	jobs, err := s.queue.ClaimDue(ctx, clock.NowMillis(s.clock), s.opts.ClaimTimeout.Milliseconds(), s.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		s.running.Add(1)
		go func(job store.PendingJob) {
			defer wg.Done()
			defer s.running.Done()
			s.run(job)
		}(job)
	}
	wg.Wait()
	return len(jobs), nil
}

func (s *DurableScheduler) run(job store.PendingJob) {
	log := s.logger.With("job_id", job.ID, "action", job.Action, "arg", job.Arg, "attempt", job.Attempts)

	runErr := func() error {
		fn, err := s.lookup(job.Action)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ActionTimeout)
		defer cancel()
		return fn(ctx, job.Arg)
	}()

	errText := ""
	if runErr != nil {
		errText = runErr.Error()
		log.Warn("scheduled action failed", "error", runErr)
	} else {
		log.Debug("scheduled action finished")
	}

	// completion must be recorded even if the poll context was cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.queue.CompleteJob(ctx, job.ID, clock.NowMillis(s.clock), runErr != nil, errText); err != nil {
		log.Error("failed to record job completion", "error", err)
	}
}

// Close stops the polling loop and waits for running actions until ctx is
// done. Persisted jobs stay queued for the next start.
func (s *DurableScheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	s.mu.Unlock()

	if err := waitGroup(ctx, &s.loops); err != nil {
		return err
	}
	return waitGroup(ctx, &s.running)
}
