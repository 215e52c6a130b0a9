// Package clock abstracts wall time so schedulers and services can be driven
// deterministically in tests.
package clock

import "time"

// Clock provides the current time and timer primitives.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once d has elapsed. Real clocks call f on its own goroutine.
	AfterFunc(d time.Duration, f func()) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call if it has not fired. Returns false if it already fired or was stopped.
	Stop() bool
}

// Ticker delivers ticks on C.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NowMillis returns c.Now() as milliseconds since the Unix epoch.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// System returns the wall clock.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }
