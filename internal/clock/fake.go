package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced clock. Timers fire synchronously inside Advance,
// in due order, on the goroutine that called Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now implements Clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t without firing anything. Use Advance to fire timers.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// AfterFunc implements Clock.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// NewTicker implements Clock.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{clock: f, period: d, next: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

// Pending returns the number of armed timers plus running tickers.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers) + len(f.tickers)
}

// Advance moves the clock forward by d, firing every timer and ticker that
// comes due along the way.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		timer, ticker, at := f.nextDueLocked(target)
		if timer == nil && ticker == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = at
		if timer != nil {
			f.removeTimerLocked(timer)
		} else {
			ticker.next = ticker.next.Add(ticker.period)
		}
		f.mu.Unlock()

		if timer != nil {
			timer.fn()
			continue
		}
		// Ticks are dropped when the reader falls behind, like time.Ticker.
		select {
		case ticker.ch <- at:
		default:
		}
	}
}

// nextDueLocked returns the earliest timer or ticker due at or before target.
func (f *Fake) nextDueLocked(target time.Time) (*fakeTimer, *fakeTicker, time.Time) {
	sort.SliceStable(f.timers, func(i, j int) bool { return f.timers[i].at.Before(f.timers[j].at) })

	var timer *fakeTimer
	var ticker *fakeTicker
	var at time.Time
	if len(f.timers) > 0 && !f.timers[0].at.After(target) {
		timer = f.timers[0]
		at = timer.at
	}
	for _, tk := range f.tickers {
		if tk.next.After(target) {
			continue
		}
		if (timer == nil && ticker == nil) || tk.next.Before(at) {
			timer, ticker, at = nil, tk, tk.next
		}
	}
	return timer, ticker, at
}

func (f *Fake) removeTimerLocked(t *fakeTimer) bool {
	for i, other := range f.timers {
		if other == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTimer struct {
	clock *Fake
	at    time.Time
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.clock.removeTimerLocked(t)
}

type fakeTicker struct {
	clock  *Fake
	period time.Duration
	next   time.Time
	ch     chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for i, other := range t.clock.tickers {
		if other == t {
			t.clock.tickers = append(t.clock.tickers[:i], t.clock.tickers[i+1:]...)
			return
		}
	}
}
