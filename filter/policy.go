package filter

import (
	"strings"

	"pulseview/record"
	"pulseview/table"
)

// Policy decides what happens to rows that fail the filter.
type Policy string

const (
	// PolicyDim keeps failing rows in layout at reduced opacity.
	PolicyDim Policy = "dim"
	// PolicyHide removes failing rows from layout.
	PolicyHide Policy = "hide"
)

// NormalizePolicy returns a supported policy, defaulting to dim.
func NormalizePolicy(value string) Policy {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case PolicyHide:
		return PolicyHide
	default:
		return PolicyDim
	}
}

// ValidPolicy reports whether value names a policy exactly.
func ValidPolicy(value string) bool {
	p := Policy(strings.ToLower(strings.TrimSpace(value)))
	return p == PolicyDim || p == PolicyHide
}

// States maps every record to its display state under policy. It is pure and
// never touches a table; an inactive filter yields all rows shown.
func States(records []record.Record, f *Filter, policy Policy) map[string]table.DisplayState {
	out := make(map[string]table.DisplayState, len(records))
	for _, rec := range records {
		if f.Matches(rec) {
			out[rec.Key] = table.Shown
			continue
		}
		if policy == PolicyHide {
			out[rec.Key] = table.DisplayState{}
		} else {
			out[rec.Key] = table.DisplayState{Visible: true, Dimmed: true}
		}
	}
	return out
}
