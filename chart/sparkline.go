package chart

import (
	"math"
	"strings"
	"sync"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline is the widget hosted by a row in Charts mode. The table keeps it
// across refreshes; new samples update it in place.
type Sparkline struct {
	mu       sync.Mutex
	values   []float64
	detached bool
}

// SetPoints replaces the plotted samples.
func (s *Sparkline) SetPoints(points []Point) {
	vals := make([]float64, len(points))
	for i, p := range points {
		vals[i] = p.Value
	}
	s.mu.Lock()
	s.values = vals
	s.mu.Unlock()
}

// Detach releases the widget. A detached sparkline renders empty.
func (s *Sparkline) Detach() {
	s.mu.Lock()
	s.detached = true
	s.values = nil
	s.mu.Unlock()
}

// Detached reports whether the owning row dropped the widget.
func (s *Sparkline) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

// Render draws the most recent samples into width cells, bucketing by max.
func (s *Sparkline) Render(width int) string {
	s.mu.Lock()
	vals := append([]float64(nil), s.values...)
	s.mu.Unlock()
	if width <= 0 || len(vals) == 0 {
		return ""
	}
	if len(vals) > width {
		vals = bucketMax(vals, width)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	var b strings.Builder
	for _, v := range vals {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

func bucketMax(vals []float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * len(vals) / n
		end := (i + 1) * len(vals) / n
		m := math.Inf(-1)
		for _, v := range vals[start:end] {
			m = math.Max(m, v)
		}
		out[i] = m
	}
	return out
}
