// Package deferred provides a cancellable delayed task used to coalesce rapid
// input (range clicks, slider drags, preference writes) into one call after a
// quiet period.
package deferred

import (
	"sync"
	"time"
)

// DefaultQuiet is the quiet period used when none is configured.
const DefaultQuiet = 100 * time.Millisecond

// Task runs the most recently scheduled function once no new schedule has
// arrived for the quiet period. It is safe for concurrent use.
type Task struct {
	mu      sync.Mutex
	quiet   time.Duration
	timer   *time.Timer
	pending func()
	gen     uint64
}

// New constructs a Task. A non-positive quiet period uses DefaultQuiet.
func New(quiet time.Duration) *Task {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Task{quiet: quiet}
}

// Quiet returns the configured quiet period.
func (t *Task) Quiet() time.Duration {
	if t == nil {
		return 0
	}
	return t.quiet
}

// Schedule replaces any pending function with fn and restarts the quiet timer.
func (t *Task) Schedule(fn func()) {
	if t == nil || fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	gen := t.gen
	t.pending = fn
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.quiet, func() { t.fire(gen) })
}

func (t *Task) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.pending == nil {
		t.mu.Unlock()
		return
	}
	fn := t.pending
	t.pending = nil
	t.timer = nil
	t.mu.Unlock()
	fn()
}

// Cancel drops the pending function. It reports whether one was pending.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	had := t.pending != nil
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	return had
}

// Flush runs the pending function immediately on the caller's goroutine.
// It reports whether anything ran.
func (t *Task) Flush() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	t.gen++
	fn := t.pending
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Pending reports whether a function is waiting for the quiet period.
func (t *Task) Pending() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}
