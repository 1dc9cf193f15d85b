// Package clock abstracts the time operations the watchdog depends on so
// tests can drive countdowns deterministically.
//
// Production code uses Real(). Tests use Fake(start) and move time with
// Advance; AfterFunc callbacks whose deadline falls inside the advanced
// window run synchronously, in deadline order, on the calling goroutine.
package clock

import "time"

type Clock interface {
	Now() time.Time
	// AfterFunc calls f once d has elapsed unless the returned Timer is
	// stopped first.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop prevents the timer from firing. It reports whether the call stopped
// a pending timer; false means the timer already fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

type realClock struct{}

func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stop: timer.Stop}
}
