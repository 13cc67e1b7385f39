// Package clocktest provides clocks for tests of code that sleeps.
package clocktest

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Jump is a fake clock whose timers fire at once: creating a timer advances
// the clock by its duration. Code that only suspends through the clock runs
// to completion on a single goroutine while observing exact virtual time.
type Jump struct {
	*clockwork.FakeClock
}

// NewJump returns a Jump clock starting at t.
func NewJump(t time.Time) *Jump {
	return &Jump{FakeClock: clockwork.NewFakeClockAt(t)}
}

// NewTimer advances the clock by d and returns an already fired timer.
func (j *Jump) NewTimer(d time.Duration) clockwork.Timer {
	if d > 0 {
		j.Advance(d)
	}
	return j.FakeClock.NewTimer(0)
}

// After advances the clock by d and returns a channel that already fired.
func (j *Jump) After(d time.Duration) <-chan time.Time {
	return j.NewTimer(d).Chan()
}

// Sleep advances the clock by d.
func (j *Jump) Sleep(d time.Duration) {
	<-j.After(d)
}
