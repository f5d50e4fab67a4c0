// Package clock provides the engine's single source of time: a Clock
// interface with a Live implementation backed by the wall clock and a Test
// implementation that advances deterministically, plus a cron-backed
// Scheduler for maintenance jobs (position purge, instrument refresh).
// Generalized from a ticker-driven polling loop into an injectable
// interface so reconciliation and retry tests can control time without
// sleeping.
package clock

import (
	"sync"
	"time"

	"github.com/nautilus-go/exec-core/internal/model"
)

// Clock abstracts wall-clock access so components never call time.Now
// directly, keeping tests deterministic.
type Clock interface {
	Now() time.Time
	NowNs() model.UnixNanos
	After(d time.Duration) <-chan time.Time
	Timer(d time.Duration) *time.Timer
}

// Live is the production Clock, a thin wrapper over the time package.
type Live struct{}

func NewLive() Live { return Live{} }

func (Live) Now() time.Time { return time.Now() }

func (Live) NowNs() model.UnixNanos { return model.UnixNanos(time.Now().UnixNano()) }

func (Live) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (Live) Timer(d time.Duration) *time.Timer { return time.NewTimer(d) }

// Test is a manually-advanced Clock for deterministic tests: Advance moves
// the clock forward and fires any channels registered via After that have
// come due.
type Test struct {
	mu      sync.Mutex
	now     time.Time
	waiters []testWaiter
}

type testWaiter struct {
	due time.Time
	ch  chan time.Time
}

// NewTest builds a Test clock starting at start.
func NewTest(start time.Time) *Test {
	return &Test{now: start}
}

func (c *Test) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Test) NowNs() model.UnixNanos {
	return model.UnixNanos(c.Now().UnixNano())
}

func (c *Test) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	due := c.now.Add(d)
	if !due.After(c.now) {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, testWaiter{due: due, ch: ch})
	return ch
}

func (c *Test) Timer(d time.Duration) *time.Timer {
	// Test clock cannot fabricate a *time.Timer (unexported fields); callers
	// needing Timer semantics under test should prefer After.
	return time.NewTimer(d)
}

// Advance moves the test clock forward by d, firing any pending After
// channels whose deadline has now passed.
func (c *Test) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	remaining := c.waiters[:0]
	fired := make([]testWaiter, 0)
	for _, w := range c.waiters {
		if !w.due.After(now) {
			fired = append(fired, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	for _, w := range fired {
		w.ch <- now
	}
}
