// Package timer provides the elapsed-time primitives every layer of the rig
// uses to express waits as non-blocking polls.
package timer

import (
	"sync"
	"time"
)

// Clock is the monotonic time source.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock uses the runtime monotonic clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// FakeClock is a manually advanced clock for tests and dry runs.
// Sleep advances the clock instead of blocking.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Unix(0, 0)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Timer is a restartable "has at least d passed since Arm" check.
// An unarmed timer never elapses. Once HasElapsed reports true it keeps
// reporting true until the timer is re-armed.
type Timer struct {
	clock   Clock
	armedAt time.Time
	armed   bool
	latched bool
}

func New(clock Clock) *Timer {
	return &Timer{clock: clock}
}

// Arm (re)starts the timer.
func (t *Timer) Arm() {
	t.armedAt = t.clock.Now()
	t.armed = true
	t.latched = false
}

// Disarm stops the timer; HasElapsed returns false until the next Arm.
func (t *Timer) Disarm() {
	t.armed = false
	t.latched = false
}

func (t *Timer) Armed() bool {
	return t.armed
}

func (t *Timer) HasElapsed(d time.Duration) bool {
	if !t.armed {
		return false
	}
	if t.latched {
		return true
	}
	if t.clock.Now().Sub(t.armedAt) >= d {
		t.latched = true
	}
	return t.latched
}

// Remaining returns how long until d has elapsed, zero when it already has
// and d when the timer is unarmed.
func (t *Timer) Remaining(d time.Duration) time.Duration {
	if !t.armed {
		return d
	}
	left := d - t.clock.Now().Sub(t.armedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Delay is the in-step wait primitive: the first IsUp call starts it, the
// call after the duration has passed returns true once and leaves the delay
// unstarted again, so the next IsUp begins a new wait.
type Delay struct {
	clock     Clock
	startedAt time.Time
	started   bool
}

func NewDelay(clock Clock) *Delay {
	return &Delay{clock: clock}
}

// Reset puts the delay back into the unstarted state.
func (d *Delay) Reset() {
	d.started = false
}

func (d *Delay) IsUp(wait time.Duration) bool {
	now := d.clock.Now()
	if !d.started {
		d.startedAt = now
		d.started = true
	}
	if now.Sub(d.startedAt) >= wait {
		d.started = false
		return true
	}
	return false
}
