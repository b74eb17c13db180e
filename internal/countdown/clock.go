package countdown

import (
	"sync"
	"time"
)

// Clock is the time source of a Timer.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers wake-ups. The time carried by C is the wall-clock time of
// the wake-up.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock returns a Clock backed by package time.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// ManualClock is a Clock that only moves when Advance is called. Tickers
// created from it fire once per Advance, however far time jumps, the way a
// throttled background tab wakes up late.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManualClock creates a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker implements Clock. The interval is ignored.
func (c *ManualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{
		ch:   make(chan time.Time),
		ack:  make(chan struct{}),
		done: make(chan struct{}),
	}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Advance moves the clock forward by d and wakes every running ticker. It
// blocks until each ticker's reader has finished handling the wake-up or
// stopped.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*manualTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		select {
		case t.ch <- now:
		case <-t.done:
			continue
		}
		select {
		case <-t.ack:
		case <-t.done:
		}
	}
}

// Tickers reports how many tickers have not been stopped.
func (c *ManualClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		select {
		case <-t.done:
		default:
			n++
		}
	}
	return n
}

// wakeAcker is implemented by tickers that want to know when a wake-up has
// been fully handled.
type wakeAcker interface {
	ackWake()
}

type manualTicker struct {
	ch   chan time.Time
	ack  chan struct{}
	done chan struct{}
	once sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.once.Do(func() { close(t.done) }) }

func (t *manualTicker) ackWake() {
	select {
	case t.ack <- struct{}{}:
	case <-t.done:
	}
}
