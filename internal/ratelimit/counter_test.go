package ratelimit

import (
	"testing"
	"time"
)

func TestCounterThrottles(t *testing.T) {
	c := NewCounter(time.Hour)
	if _, ok := c.Inc(); !ok {
		t.Fatalf("expected first increment to allow logging")
	}
	total, ok := c.Inc()
	if ok {
		t.Fatalf("expected second increment inside the interval to be throttled")
	}
	if total != 2 {
		t.Fatalf("expected total 2, got %d", total)
	}
}

func TestLatchTripsOnceUntilCleared(t *testing.T) {
	l := NewLatch()
	if !l.Trip("storage") {
		t.Fatalf("expected first trip to report")
	}
	if l.Trip("storage") || l.Trip("storage") {
		t.Fatalf("expected repeats to be suppressed")
	}
	if !l.Trip("pbs") {
		t.Fatalf("expected independent keys")
	}
	if n := l.Clear("storage"); n != 2 {
		t.Fatalf("expected 2 suppressed, got %d", n)
	}
	if !l.Trip("storage") {
		t.Fatalf("expected trip after clear to report again")
	}
}
