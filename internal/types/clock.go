package types

import (
	"sync"
	"time"
)

// Clock supplies timestamps to every component so that tests can substitute a
// deterministic source. Live readings carry Go's monotonic clock component, so
// ordering comparisons are not wall-clock dependent.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// TimestampNS returns the current time as nanoseconds since the Unix epoch.
	TimestampNS() int64
}

// LiveClock reads the system clock.
type LiveClock struct{}

// NewLiveClock returns a Clock backed by the system clock.
func NewLiveClock() *LiveClock {
	return &LiveClock{}
}

// Now implements Clock.
func (c *LiveClock) Now() time.Time {
	return time.Now()
}

// TimestampNS implements Clock.
func (c *LiveClock) TimestampNS() int64 {
	return time.Now().UnixNano()
}

// TestClock is a manually advanced clock for deterministic tests.
type TestClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewTestClock returns a TestClock starting at the given time.
func NewTestClock(start time.Time) *TestClock {
	return &TestClock{current: start}
}

// Now implements Clock.
func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// TimestampNS implements Clock.
func (c *TestClock) TimestampNS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current.UnixNano()
}

// Advance moves the clock forward by d and returns the new reading.
func (c *TestClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)

	return c.current
}

// SetTime moves the clock to an absolute reading.
func (c *TestClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = t
}
