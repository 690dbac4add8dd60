package ui

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFrameSchedulerCoalescesLatestPerID(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)

	var seq []string
	f.Schedule("table:dashboard", func() { seq = append(seq, "d1") })
	f.Schedule("table:storage", func() { seq = append(seq, "s1") })
	f.Schedule("table:dashboard", func() { seq = append(seq, "d2") })

	f.flush()

	if len(seq) != 2 {
		t.Fatalf("expected 2 callbacks, got %d (%v)", len(seq), seq)
	}
	if seq[0] != "d2" || seq[1] != "s1" {
		t.Fatalf("unexpected callback order/content: %v", seq)
	}

	f.flush()
	if len(seq) != 2 {
		t.Fatalf("expected no additional callbacks after empty flush, got %v", seq)
	}
}

func TestFrameSchedulerFlushesPendingOnStop(t *testing.T) {
	f := newFrameScheduler(nil, 10, 200*time.Millisecond, nil)
	var called atomic.Uint64

	f.Start()
	f.Schedule("status", func() { called.Add(1) })
	f.Stop()

	if called.Load() != 1 {
		t.Fatalf("expected pending callback to flush on stop, got %d", called.Load())
	}
}

func TestFrameSchedulerObservesDelay(t *testing.T) {
	var observed atomic.Uint64
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, func(time.Duration) { observed.Add(1) })
	f.Schedule("log", func() {})
	f.flush()
	if observed.Load() != 1 {
		t.Fatalf("expected one delay observation, got %d", observed.Load())
	}
}

func TestFrameSchedulerStopIdempotent(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)
	f.Start()
	f.Stop()
	f.Stop()
}
