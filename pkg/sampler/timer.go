package sampler

import "time"

// Clock abstracts wall time so the sampling loop can be driven in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns the system clock.
func RealClock() Clock {
	return realClock{}
}

// Timer paces ticks at a fixed rate without accumulating drift: the n-th
// deadline is always start + n*interval, however late earlier ticks were.
type Timer struct {
	clock    Clock
	interval time.Duration
	start    time.Time
	ticks    int64
}

// Interval returns the time between ticks at rate ticks per second.
func Interval(rate uint64) time.Duration {
	if rate == 0 {
		rate = 1
	}
	return time.Duration(float64(time.Second) / float64(rate))
}

// NewTimer creates a timer firing rate times per second, starting now.
func NewTimer(clock Clock, rate uint64) *Timer {
	if clock == nil {
		clock = RealClock()
	}
	return &Timer{
		clock:    clock,
		interval: Interval(rate),
		start:    clock.Now(),
	}
}

// Interval returns the target time between ticks.
func (t *Timer) Interval() time.Duration {
	return t.interval
}

// Wait blocks until the next tick deadline. It returns how far behind the
// deadline the caller already was, or zero when it was on time.
func (t *Timer) Wait() time.Duration {
	t.ticks++
	deadline := t.start.Add(time.Duration(t.ticks) * t.interval)
	now := t.clock.Now()
	if now.Before(deadline) {
		t.clock.Sleep(deadline.Sub(now))
		return 0
	}
	return now.Sub(deadline)
}
