// Package viewmode owns the mutually exclusive table rendering modes and the
// auxiliary parameters (chart time window) that belong to them.
package viewmode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Mode is a table rendering mode. At most one is active.
type Mode int

const (
	Normal Mode = iota
	Charts
	Thresholds
	Alerts
)

// Modes lists every mode in display order.
var Modes = []Mode{Normal, Charts, Thresholds, Alerts}

func (m Mode) String() string {
	switch m {
	case Charts:
		return "charts"
	case Thresholds:
		return "thresholds"
	case Alerts:
		return "alerts"
	default:
		return "normal"
	}
}

// ParseMode resolves a mode name case-insensitively.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "":
		return Normal, true
	case "charts":
		return Charts, true
	case "thresholds":
		return Thresholds, true
	case "alerts":
		return Alerts, true
	}
	return Normal, false
}

// ValidModeName reports whether s names a mode exactly.
func ValidModeName(s string) bool {
	_, ok := ParseMode(s)
	return ok && strings.TrimSpace(s) != ""
}

// Option is one selectable auxiliary parameter value, such as a chart window.
type Option struct {
	Label string
	Span  time.Duration
}

// Options is an ordered list of selectable values.
type Options []Option

// Find returns the option with label.
func (o Options) Find(label string) (Option, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, opt := range o {
		if opt.Label == label {
			return opt, true
		}
	}
	return Option{}, false
}

// Labels returns the option labels in order.
func (o Options) Labels() []string {
	out := make([]string, len(o))
	for i, opt := range o {
		out[i] = opt.Label
	}
	return out
}

// Nearest returns the option whose span is closest to span. Ties go to the
// shorter option. It panics on an empty list.
func (o Options) Nearest(span time.Duration) Option {
	sorted := append(Options(nil), o...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Span < sorted[j].Span })
	best := sorted[0]
	bestDiff := absDuration(span - best.Span)
	for _, opt := range sorted[1:] {
		if d := absDuration(span - opt.Span); d < bestDiff {
			best, bestDiff = opt, d
		}
	}
	return best
}

// ParseSpan parses a window label. Day suffixes ("7d") are accepted in
// addition to time.ParseDuration syntax.
func ParseSpan(label string) (time.Duration, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	if strings.HasSuffix(label, "d") {
		n, err := strconv.ParseFloat(strings.TrimSuffix(label, "d"), 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid window %q", label)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	d, err := time.ParseDuration(label)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid window %q", label)
	}
	return d, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
