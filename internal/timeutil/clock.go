// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides the current time and blocking sleeps.
// Control code never calls time.Now or time.Sleep directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses for the specified duration.
	Sleep(d time.Duration)
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep pauses the current goroutine for at least the duration d.
func (RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// MockClock is a manually controlled clock for testing.
// Sleep advances the clock instead of blocking, so blocking sequences
// (rail soft-start, radar re-init, lamp type test) run instantly in tests.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	sleeps int
	onTick func(time.Time)
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set sets the mock clock to a specific time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the mock clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	fn := c.onTick
	c.mu.Unlock()
	if fn != nil {
		fn(now)
	}
}

// Sleep advances the clock by d and records the call.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.slept += d
	c.sleeps++
	c.mu.Unlock()
	c.Advance(d)
}

// OnAdvance registers a hook run after every Advance or Sleep.
// Tests use it to let simulated hardware react to the passage of time.
func (c *MockClock) OnAdvance(fn func(now time.Time)) {
	c.mu.Lock()
	c.onTick = fn
	c.mu.Unlock()
}

// Slept returns the total duration passed to Sleep and the number of calls.
func (c *MockClock) Slept() (time.Duration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept, c.sleeps
}
