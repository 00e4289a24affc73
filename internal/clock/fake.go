package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time stands still until Advance is
// called; AfterFunc callbacks then run synchronously on the goroutine
// calling Advance, in deadline order.
//
// Callbacks must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
	callback func()
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock has advanced by d.
// A non-positive d delivers immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.waiters = append(c.waiters, &fakeWaiter{
		deadline: c.current.Add(d),
		channel:  channel,
	})
	return channel
}

// AfterFunc schedules f for the first Advance that reaches now+d. A
// non-positive d is due immediately and fires on the next Advance, even
// Advance(0), so callers holding locks never re-enter f synchronously.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.stopped || waiter.fired {
				return false
			}
			waiter.stopped = true
			return true
		},
	}
}

// Advance moves the clock forward by d. Waiters fire one at a time in
// deadline order, with the clock set to each waiter's deadline while it
// runs, so a callback that re-arms itself fires once per interval.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		waiter := c.popDue(target)
		if waiter == nil {
			break
		}
		if waiter.callback != nil {
			waiter.callback()
			continue
		}
		select {
		case waiter.channel <- waiter.deadline:
		default:
		}
	}

	c.mu.Lock()
	c.current = target
	c.mu.Unlock()
}

// Pending returns the time remaining until each active waiter fires,
// shortest first.
func (c *FakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []time.Duration
	for _, waiter := range c.waiters {
		if waiter.stopped || waiter.fired {
			continue
		}
		out = append(out, waiter.deadline.Sub(c.current))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// popDue removes and returns the earliest waiter due at or before target,
// advancing the current time to its deadline.
func (c *FakeClock) popDue(target time.Time) *fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := -1
	remaining := c.waiters[:0]
	for _, waiter := range c.waiters {
		if waiter.stopped {
			continue
		}
		remaining = append(remaining, waiter)
	}
	c.waiters = remaining

	for i, waiter := range c.waiters {
		if waiter.deadline.After(target) {
			continue
		}
		if next < 0 || waiter.deadline.Before(c.waiters[next].deadline) {
			next = i
		}
	}
	if next < 0 {
		return nil
	}

	waiter := c.waiters[next]
	c.waiters = append(c.waiters[:next], c.waiters[next+1:]...)
	waiter.fired = true
	if waiter.deadline.After(c.current) {
		c.current = waiter.deadline
	}
	return waiter
}
