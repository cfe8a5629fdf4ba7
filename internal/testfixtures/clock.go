package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. TTL and expiry tests move it
// explicitly instead of sleeping.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the clock's time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc adapts the clock to the func() time.Time hooks services take. A nil
// clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// AdvancePast moves the clock just beyond deadline, the first instant at which
// "now >= deadline" expiry checks fire.
func (c *Clock) AdvancePast(deadline time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current.After(deadline) {
		c.current = deadline.Add(time.Nanosecond)
	}
	return c.current
}
