package deferred

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskCoalescesBurstToLatest(t *testing.T) {
	task := New(30 * time.Millisecond)
	var calls atomic.Int32
	var last atomic.Value
	for _, label := range []string{"5m", "1h", "24h"} {
		label := label
		task.Schedule(func() {
			calls.Add(1)
			last.Store(label)
		})
		time.Sleep(5 * time.Millisecond)
	}
	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one call, got %d", calls.Load())
	}
	if got := last.Load(); got != "24h" {
		t.Fatalf("expected latest schedule to win, got %v", got)
	}
}

func TestTaskCancelDropsPending(t *testing.T) {
	task := New(20 * time.Millisecond)
	var calls atomic.Int32
	task.Schedule(func() { calls.Add(1) })
	if !task.Cancel() {
		t.Fatalf("expected cancel to report a pending task")
	}
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("expected cancelled task not to run")
	}
	if task.Cancel() {
		t.Fatalf("expected second cancel to report nothing pending")
	}
}

func TestTaskFlushRunsImmediately(t *testing.T) {
	task := New(time.Hour)
	ran := false
	task.Schedule(func() { ran = true })
	if !task.Flush() || !ran {
		t.Fatalf("expected flush to run the pending task")
	}
	if task.Pending() || task.Flush() {
		t.Fatalf("expected nothing pending after flush")
	}
}

func TestNilTaskIsInert(t *testing.T) {
	var task *Task
	task.Schedule(func() {})
	if task.Cancel() || task.Flush() || task.Pending() {
		t.Fatalf("expected nil task to be a no-op")
	}
}
