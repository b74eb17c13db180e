// Package countdown implements the exam countdown.
//
// The remaining time is computed from the wall clock at every wake-up rather
// than by counting wake-ups, so a late or throttled ticker cannot make the
// countdown run slow. Seconds skipped by a late wake-up are still reported,
// one onTick per second, so observers see a strictly decreasing sequence that
// ends at zero.
package countdown

import (
	"errors"
	"sync"
	"time"
)

// Timer errors.
var (
	ErrAlreadyStarted  = errors.New("countdown already started")
	ErrInvalidDuration = errors.New("countdown duration must be positive")
)

// Timer counts down from a fixed number of seconds and fires expiry once.
type Timer struct {
	clock    Clock
	interval time.Duration

	mu        sync.Mutex
	started   bool
	remaining int
	done      chan struct{}
	stopOnce  sync.Once
}

// New creates a Timer that wakes every second on clock.
func New(clock Clock) *Timer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Timer{clock: clock, interval: time.Second, done: make(chan struct{})}
}

// Start begins the countdown. onTick receives each new remaining value;
// onExpire runs exactly once after onTick(0), then the timer stops for good.
// Callbacks run on the timer's goroutine.
func (t *Timer) Start(totalSeconds int, onTick func(remaining int), onExpire func()) error {
	if totalSeconds <= 0 {
		return ErrInvalidDuration
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.remaining = totalSeconds
	t.mu.Unlock()

	start := t.clock.Now()
	ticker := t.clock.NewTicker(t.interval)
	go t.run(ticker, start, totalSeconds, onTick, onExpire)
	return nil
}

func (t *Timer) run(ticker Ticker, start time.Time, total int, onTick func(int), onExpire func()) {
	defer ticker.Stop()

	last := total
	for {
		select {
		case <-t.done:
			return
		case now := <-ticker.C():
			elapsed := int(now.Sub(start) / time.Second)
			target := total - elapsed
			if target < 0 {
				target = 0
			}

			for last > target {
				if t.Stopped() {
					return
				}
				last--
				t.setRemaining(last)
				if onTick != nil {
					onTick(last)
				}
			}

			if last == 0 {
				if t.Stopped() {
					return
				}
				t.Stop()
				if onExpire != nil {
					onExpire()
				}
				return
			}
			if a, ok := ticker.(wakeAcker); ok {
				a.ackWake()
			}
		}
	}
}

// Stop cancels all future ticks. It is safe to call more than once and
// before Start.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// Stopped reports whether Stop has been called or the countdown expired.
func (t *Timer) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Remaining returns the last reported remaining seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) setRemaining(n int) {
	t.mu.Lock()
	t.remaining = n
	t.mu.Unlock()
}
