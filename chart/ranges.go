// Package chart drives the sparkline columns shown in Charts mode. It tracks
// which rows are visible, fetches series for the selected time range, and
// hosts one Sparkline widget per visible row.
package chart

import (
	"sort"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"pulseview/viewmode"
)

// Ranges are the chart windows the Pulse charts endpoint accepts.
var Ranges = viewmode.Options{
	{Label: "5m", Span: 5 * time.Minute},
	{Label: "15m", Span: 15 * time.Minute},
	{Label: "30m", Span: 30 * time.Minute},
	{Label: "1h", Span: time.Hour},
	{Label: "4h", Span: 4 * time.Hour},
	{Label: "8h", Span: 8 * time.Hour},
	{Label: "12h", Span: 12 * time.Hour},
	{Label: "24h", Span: 24 * time.Hour},
	{Label: "7d", Span: 7 * 24 * time.Hour},
	{Label: "30d", Span: 30 * 24 * time.Hour},
}

// NearestRange returns the selectable range closest to d.
func NearestRange(d time.Duration) viewmode.Option {
	return Ranges.Nearest(d)
}

// Fingerprint hashes a visible key set independent of order, so a resort
// that shows the same rows does not trigger a refetch.
func Fingerprint(keys []string) uint64 {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	h := xxh3.New()
	for _, k := range sorted {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// normalizeLabel lowercases a range label for lookups.
func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
