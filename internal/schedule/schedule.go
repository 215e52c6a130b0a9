// Package schedule runs named actions once after a delay.
//
// Two implementations share the same contract: TimerScheduler keeps jobs in
// process memory, DurableScheduler persists them through store.CheckIns so
// they survive restarts. Both deliver at least once. There is no cancellation;
// actions are expected to re-check their preconditions when they fire.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrUnknownAction is returned when scheduling an action nobody registered.
	ErrUnknownAction = errors.New("unknown action")

	// ErrClosed is returned by Schedule after Close.
	ErrClosed = errors.New("scheduler closed")
)

// Job names a registered action and its single argument.
type Job struct {
	Action string
	Arg    string
}

// ActionFunc performs a scheduled job.
type ActionFunc func(ctx context.Context, arg string) error

// Handle identifies a scheduled job.
type Handle struct {
	ID     string
	FireAt time.Time
}

// Scheduler accepts delayed one-shot jobs.
type Scheduler interface {
	Register(action string, fn ActionFunc)
	Schedule(ctx context.Context, delay time.Duration, job Job) (Handle, error)
}

type registry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

// Register binds fn to action, replacing any previous binding.
func (r *registry) Register(action string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.actions == nil {
		r.actions = make(map[string]ActionFunc)
	}
	r.actions[action] = fn
}

func (r *registry) lookup(action string) (ActionFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return fn, nil
}

// waitGroup waits for wg or ctx, whichever finishes first.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
