// Package timeutil supplies the clocks that pace sources and stamp samples.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source for frame pacing and sample timestamps.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)           { time.Sleep(d) }

// MockClock is a manually driven Clock for tests. Sleep advances the
// clock instead of blocking, so a paced source run against a MockClock
// produces evenly spaced timestamps instantly.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewMockClock returns a MockClock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps the clock to t.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the mock clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records the duration and advances the clock by it.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

// Sleeps returns a copy of every duration passed to Sleep.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]time.Duration, len(c.sleeps))
	copy(result, c.sleeps)
	return result
}

// Ticking is a Clock that advances by a fixed step on every Now call.
// It stands in for a camera clock when replaying recorded frames.
type Ticking struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewTicking returns a clock whose first Now is start.
func NewTicking(start time.Time, step time.Duration) *Ticking {
	return &Ticking{next: start, step: step}
}

// Now returns the current tick and advances to the next one.
func (c *Ticking) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Since returns the duration from t to the next tick without consuming it.
func (c *Ticking) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next.Sub(t)
}

// Sleep advances the clock by d.
func (c *Ticking) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.next.Add(d)
}
