package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock for tests. Time moves only when
// Advance or AdvanceNext is called; pending timers fire in deadline order.
//
// Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
	changed *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
	stopped  bool
	fired    bool
}

// NewFake returns a FakeClock set to initial
func NewFake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After registers a one-shot waiter
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C
}

// NewTimer registers a stoppable one-shot waiter
func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return &Timer{C: ch, stopFunc: func() bool { return false }}
	}

	w := &fakeWaiter{deadline: c.current.Add(d), channel: ch}
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()

	return &Timer{
		C: ch,
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if w.stopped || w.fired {
				return false
			}
			w.stopped = true
			c.changed.Broadcast()
			return true
		},
	}
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline is reached
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	fire := c.collectLocked(target)
	c.mu.Unlock()

	for _, w := range fire {
		select {
		case w.channel <- target:
		default:
		}
	}
}

// AdvanceNext moves the clock to the earliest pending deadline, fires it,
// and returns how far the clock moved. It returns 0 when nothing is pending.
func (c *FakeClock) AdvanceNext() time.Duration {
	c.mu.Lock()
	var next *fakeWaiter
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if next == nil || w.deadline.Before(next.deadline) {
			next = w
		}
	}
	if next == nil {
		c.mu.Unlock()
		return 0
	}
	delta := next.deadline.Sub(c.current)
	c.mu.Unlock()

	c.Advance(delta)
	return delta
}

// collectLocked removes expired and stopped waiters and returns the expired
// ones sorted by deadline. Must be called with c.mu held.
func (c *FakeClock) collectLocked(target time.Time) []*fakeWaiter {
	var fire, remaining []*fakeWaiter
	for _, w := range c.waiters {
		switch {
		case w.stopped:
		case !w.deadline.After(target):
			w.fired = true
			fire = append(fire, w)
		default:
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	sort.Slice(fire, func(i, j int) bool { return fire[i].deadline.Before(fire[j].deadline) })
	return fire
}

// WaitForTimers blocks until at least n waiters are pending. It closes the
// race between a goroutine arming a timer and the test advancing the clock.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of armed, unfired waiters
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
