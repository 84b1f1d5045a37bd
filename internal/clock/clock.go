// Package clock abstracts the time operations used by the sink so that flush
// timers and retry backoff can be driven deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package the pipeline depends on
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	// If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a one-shot timer firing after d
	NewTimer(d time.Duration) *Timer
}

// Timer is a stoppable one-shot timer. Read the fire time from C.
type Timer struct {
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the timer from firing. It returns false if the timer
// already fired or was stopped. Stop does not drain C.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real returns a Clock backed by the time package
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTimer(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{C: t.C, stopFunc: t.Stop}
}
