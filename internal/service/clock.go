package service

import (
	"sync"
	"time"
)

// Clock supplies timestamps for ledger entries and state transitions.
type Clock interface {
	Now() time.Time
}

// MonotonicClock never returns the same instant twice and never goes backwards,
// even if the wall clock does. Readings are truncated to microseconds, the
// finest precision Postgres keeps.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewMonotonicClock(now func() time.Time) *MonotonicClock {
	if now == nil {
		now = time.Now
	}
	return &MonotonicClock{now: now}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
