// Package sorting orders record lists for display. Sorts are stable, numeric
// columns fall back to 0 when a value does not parse, and string columns
// compare case-insensitively.
package sorting

import (
	"sort"
	"strings"

	"pulseview/record"
)

// Column describes how one field sorts.
type Column struct {
	Field string
	// Numeric compares parsed floats; unparsable values sort as 0.
	Numeric bool
	// DefaultAscending is the direction used when this field is first picked.
	DefaultAscending bool
}

// Columns is the per-view sort configuration keyed by field.
type Columns map[string]Column

// NewColumns indexes cols by field.
func NewColumns(cols ...Column) Columns {
	out := make(Columns, len(cols))
	for _, c := range cols {
		out[c.Field] = c
	}
	return out
}

// Sort returns a stably sorted copy of records. The input is not modified.
func Sort(records []record.Record, field string, ascending, numeric bool) []record.Record {
	out := append([]record.Record(nil), records...)
	if field == "" {
		return out
	}
	less := lessFunc(field, numeric)
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}

// SortGrouped sorts within each group independently and orders groups by
// case-insensitive group key. Records with an empty group come first.
func SortGrouped(records []record.Record, field string, ascending, numeric bool) []record.Record {
	buckets := make(map[string][]record.Record)
	var groups []string
	for _, r := range records {
		if _, ok := buckets[r.Group]; !ok {
			groups = append(groups, r.Group)
		}
		buckets[r.Group] = append(buckets[r.Group], r)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return strings.ToLower(groups[i]) < strings.ToLower(groups[j])
	})
	out := make([]record.Record, 0, len(records))
	for _, g := range groups {
		out = append(out, Sort(buckets[g], field, ascending, numeric)...)
	}
	return out
}

func lessFunc(field string, numeric bool) func(a, b record.Record) bool {
	if numeric {
		return func(a, b record.Record) bool {
			return numberOf(a.Get(field)) < numberOf(b.Get(field))
		}
	}
	return func(a, b record.Record) bool {
		return strings.ToLower(textOf(a.Get(field))) < strings.ToLower(textOf(b.Get(field)))
	}
}

func numberOf(v record.Value) float64 {
	f, ok := v.Float()
	if !ok {
		return 0
	}
	return f
}

func textOf(v record.Value) string {
	if v.IsMissing() {
		return ""
	}
	return v.String()
}

// State is the active sort of one view.
type State struct {
	Field     string
	Ascending bool
}

// Click applies a header click: the active field toggles direction, any other
// field resets to its configured default direction. Fields without a column
// entry default to ascending.
func (s State) Click(field string, cols Columns) State {
	if field == s.Field && field != "" {
		return State{Field: field, Ascending: !s.Ascending}
	}
	col, ok := cols[field]
	if !ok {
		return State{Field: field, Ascending: true}
	}
	return State{Field: field, Ascending: col.DefaultAscending}
}

// Apply sorts records per the state, grouped or not.
func (s State) Apply(records []record.Record, cols Columns, grouped bool) []record.Record {
	numeric := cols[s.Field].Numeric
	if grouped {
		return SortGrouped(records, s.Field, s.Ascending, numeric)
	}
	return Sort(records, s.Field, s.Ascending, numeric)
}
