// Package ratelimit throttles repeated log lines so a condition that persists
// across refresh cycles is reported once instead of every tick.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter tracks a total count and the last time a log was emitted.
// It is safe for concurrent use.
type Counter struct {
	interval time.Duration
	lastLog  atomic.Int64
	total    atomic.Uint64
}

// NewCounter returns a Counter that allows a log at most once per interval.
// A zero or negative interval always allows.
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval}
}

// Inc increments the counter and reports whether logging is allowed now.
func (c *Counter) Inc() (uint64, bool) {
	if c == nil {
		return 0, false
	}
	total := c.total.Add(1)
	if c.interval <= 0 {
		return total, true
	}
	now := time.Now().UTC().UnixNano()
	last := c.lastLog.Load()
	if last != 0 && now-last < c.interval.Nanoseconds() {
		return total, false
	}
	return total, c.lastLog.CompareAndSwap(last, now)
}

// Latch reports a keyed condition once until it is cleared. The live driver
// uses it for "container missing" style errors that must be logged once per
// table rather than on every refresh.
type Latch struct {
	mu  sync.Mutex
	set map[string]uint64
}

// NewLatch constructs an empty Latch.
func NewLatch() *Latch {
	return &Latch{set: make(map[string]uint64)}
}

// Trip records an occurrence for key and reports whether it is the first since
// the last Clear.
func (l *Latch) Trip(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set[key]++
	return l.set[key] == 1
}

// Clear resets key and returns how many occurrences were suppressed after the
// first one.
func (l *Latch) Clear(key string) uint64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.set[key]
	delete(l.set, key)
	if n == 0 {
		return 0
	}
	return n - 1
}
