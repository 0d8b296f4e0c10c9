package clock

import (
	"sort"
	"sync"
	"time"
)

// MockClock is a manually advanced Clock for tests.
//
// Channels returned by After fire (in deadline order) once Advance or Set moves the clock to or past their deadline.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*mockWaiter
}

type mockWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

var _ Clock = (*MockClock)(nil)

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, &mockWaiter{deadline: deadline, ch: ch})
	return ch
}

// Advance moves the clock forward and fires any waiters which are now due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.fireLocked()
	c.mu.Unlock()
}

// Set moves the clock to an absolute time. Moving backwards is allowed, but never un-fires a waiter.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.fireLocked()
	c.mu.Unlock()
}

// WaiterCount returns the number of pending After channels.
func (c *MockClock) WaiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *MockClock) fireLocked() {
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			// buffered with capacity one, and each waiter fires once
			w.ch <- c.now
			continue
		}
		remaining = append(remaining, w)
	}
	// clear the tail so fired waiters can be collected
	for i := len(remaining); i < len(c.waiters); i++ {
		c.waiters[i] = nil
	}
	c.waiters = remaining
}
