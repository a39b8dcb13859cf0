package testfixtures

import (
	"sync"
	"time"
)

// Clock is a settable time source shared by services under test.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock set to start, or to ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc returns Now for injection; a nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// UntilExpiry moves the clock to just past t, the first instant at which a
// session expiring at t is no longer valid.
func (c *Clock) UntilExpiry(t time.Time) time.Time {
	c.Set(t.Add(time.Millisecond))
	return c.Now()
}

// DuringEvent moves the clock halfway into the event so check-ins succeed.
func (c *Clock) DuringEvent(event EventFixture) time.Time {
	c.Set(event.StartDate.Add(event.EndDate.Sub(event.StartDate) / 2))
	return c.Now()
}

// AtEventEnd moves the clock to the event's end date. The end is exclusive,
// so the event is no longer in progress.
func (c *Clock) AtEventEnd(event EventFixture) time.Time {
	c.Set(event.EndDate)
	return c.Now()
}
