package live

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LatencyTracker keeps a bounded ring of cycle durations for percentile
// estimates shown in the status bar.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	count   int
	idx     int
}

func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 256
	}
	return &LatencyTracker{samples: make([]time.Duration, size)}
}

func (t *LatencyTracker) Observe(d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.samples[t.idx] = d
	t.idx = (t.idx + 1) % len(t.samples)
	if t.count < len(t.samples) {
		t.count++
	}
	t.mu.Unlock()
}

type LatencySnapshot struct {
	P50 time.Duration
	P99 time.Duration
	N   int
}

func (t *LatencyTracker) Snapshot() LatencySnapshot {
	if t == nil {
		return LatencySnapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return LatencySnapshot{}
	}
	values := make([]time.Duration, t.count)
	copy(values, t.samples[:t.count])
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return LatencySnapshot{
		P50: values[t.count/2],
		P99: values[int(float64(t.count-1)*0.99)],
		N:   t.count,
	}
}

// Result labels for refresh counters.
const (
	resultOK      = "ok"
	resultSkipped = "skipped"
	resultError   = "error"
	resultMissing = "missing_target"
)

// Metrics holds refresh counters. A nil *Metrics is a no-op.
type Metrics struct {
	refreshes *prometheus.CounterVec
	mutations *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	latency   *LatencyTracker
}

// NewMetrics registers the driver collectors with reg. A nil reg keeps the
// collectors unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseview",
			Name:      "refresh_total",
			Help:      "Refresh cycles by view and result.",
		}, []string{"view", "result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseview",
			Name:      "table_mutations_total",
			Help:      "Row mutations applied by the reconciler.",
		}, []string{"view"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pulseview",
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of a refresh cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"view"}),
		latency: NewLatencyTracker(512),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.mutations, m.duration)
	}
	return m
}

func (m *Metrics) observe(view, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(view, result).Inc()
	if result == resultOK {
		m.duration.WithLabelValues(view).Observe(d.Seconds())
		m.latency.Observe(d)
	}
}

func (m *Metrics) addMutations(view string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mutations.WithLabelValues(view).Add(float64(n))
}

// Latency returns cycle latency percentiles.
func (m *Metrics) Latency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{}
	}
	return m.latency.Snapshot()
}
