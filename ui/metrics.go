package ui

import (
	"sync/atomic"
	"time"

	"pulseview/live"
)

// Metrics tracks dashboard counters and frame latency.
type Metrics struct {
	frameDelay   *live.LatencyTracker
	pageSwitches atomic.Uint64
	repaints     atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{frameDelay: live.NewLatencyTracker(512)}
}

func (m *Metrics) ObserveFrame(d time.Duration) {
	if m == nil {
		return
	}
	m.frameDelay.Observe(d)
}

func (m *Metrics) PageSwitch() {
	if m == nil {
		return
	}
	m.pageSwitches.Add(1)
}

func (m *Metrics) Repaint() {
	if m == nil {
		return
	}
	m.repaints.Add(1)
}

func (m *Metrics) FrameSnapshot() live.LatencySnapshot {
	if m == nil {
		return live.LatencySnapshot{}
	}
	return m.frameDelay.Snapshot()
}

func (m *Metrics) PageSwitches() uint64 {
	if m == nil {
		return 0
	}
	return m.pageSwitches.Load()
}

func (m *Metrics) Repaints() uint64 {
	if m == nil {
		return 0
	}
	return m.repaints.Load()
}
