package countdown

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	ticks   []int
	expired int
	expire  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{expire: make(chan struct{}, 4)}
}

func (r *recorder) onTick(n int) {
	r.mu.Lock()
	r.ticks = append(r.ticks, n)
	r.mu.Unlock()
}

func (r *recorder) onExpire() {
	r.mu.Lock()
	r.expired++
	r.mu.Unlock()
	r.expire <- struct{}{}
}

func (r *recorder) snapshot() ([]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...), r.expired
}

func waitExpire(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.expire:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never expired")
	}
}

func assertCountdown(t *testing.T, ticks []int, total int) {
	t.Helper()
	if len(ticks) != total {
		t.Fatalf("tick count = %d, want %d", len(ticks), total)
	}
	for i, v := range ticks {
		if want := total - 1 - i; v != want {
			t.Fatalf("tick %d = %d, want %d", i, v, want)
		}
	}
}

func TestRunToCompletion(t *testing.T) {
	for _, minutes := range []int{1, 2, 5} {
		total := minutes * 60
		clock := NewManualClock(time.Unix(0, 0))
		timer := New(clock)
		rec := newRecorder()

		if err := timer.Start(total, rec.onTick, rec.onExpire); err != nil {
			t.Fatalf("start: %v", err)
		}
		for i := 0; i < total; i++ {
			clock.Advance(time.Second)
		}
		waitExpire(t, rec)

		// Extra wake-ups after expiry must change nothing.
		clock.Advance(time.Second)

		ticks, expired := rec.snapshot()
		assertCountdown(t, ticks, total)
		if expired != 1 {
			t.Errorf("minutes=%d: expired %d times, want 1", minutes, expired)
		}
		if timer.Remaining() != 0 {
			t.Errorf("remaining = %d, want 0", timer.Remaining())
		}
	}
}

func TestLateWakeUpCatchesUp(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	timer := New(clock)
	rec := newRecorder()

	if err := timer.Start(60, rec.onTick, rec.onExpire); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(time.Second)
	// A throttled tab wakes up 40 seconds later in one go.
	clock.Advance(40 * time.Second)
	clock.Advance(500 * time.Millisecond)

	ticks, _ := rec.snapshot()
	if len(ticks) != 41 || ticks[len(ticks)-1] != 19 {
		t.Fatalf("after 41.5s got ticks %v, want 41 ending at 19", ticks)
	}

	clock.Advance(time.Hour)
	waitExpire(t, rec)

	ticks, expired := rec.snapshot()
	assertCountdown(t, ticks, 60)
	if expired != 1 {
		t.Errorf("expired %d times, want 1", expired)
	}
}

func TestStopCancelsFutureTicks(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	timer := New(clock)
	rec := newRecorder()

	if err := timer.Start(10, rec.onTick, rec.onExpire); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(time.Second)
	clock.Advance(time.Second)

	timer.Stop()
	timer.Stop()

	for i := 0; i < 20; i++ {
		clock.Advance(time.Second)
	}

	ticks, expired := rec.snapshot()
	if len(ticks) != 2 {
		t.Errorf("ticks after stop = %v, want two", ticks)
	}
	if expired != 0 {
		t.Errorf("expired %d times after stop", expired)
	}
	if !timer.Stopped() {
		t.Error("Stopped() = false")
	}
}

// slowTickerClock lets lag pass while a ticker is being created.
type slowTickerClock struct {
	*ManualClock
	lag time.Duration
}

func (c slowTickerClock) NewTicker(d time.Duration) Ticker {
	c.Advance(c.lag)
	return c.ManualClock.NewTicker(d)
}

func TestElapsedCountsFromStart(t *testing.T) {
	clock := slowTickerClock{ManualClock: NewManualClock(time.Unix(0, 0)), lag: 300 * time.Millisecond}
	timer := New(clock)
	rec := newRecorder()

	if err := timer.Start(10, rec.onTick, rec.onExpire); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer timer.Stop()

	// One second after Start, not after the ticker existed.
	clock.Advance(700 * time.Millisecond)

	ticks, _ := rec.snapshot()
	if len(ticks) != 1 || ticks[0] != 9 {
		t.Errorf("ticks one second after start = %v, want [9]", ticks)
	}
}

func TestStartValidation(t *testing.T) {
	timer := New(NewManualClock(time.Unix(0, 0)))

	if err := timer.Start(0, nil, nil); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("zero duration err = %v", err)
	}
	if err := timer.Start(5, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := timer.Start(5, nil, nil); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second start err = %v", err)
	}
	timer.Stop()
}

func TestStopBeforeStart(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	timer := New(clock)
	timer.Stop()

	rec := newRecorder()
	if err := timer.Start(3, rec.onTick, rec.onExpire); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(5 * time.Second)

	ticks, expired := rec.snapshot()
	if len(ticks) != 0 || expired != 0 {
		t.Errorf("stopped timer produced ticks=%v expired=%d", ticks, expired)
	}
}
