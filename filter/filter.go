// Package filter implements the threshold and text criteria that decide
// which table rows stay prominent after each refresh.
//
// Criteria allow users to narrow a view based on:
//   - Numeric floors (e.g., cpu >= 80, mem >= 50)
//   - Text patterns on a field (e.g., name "web*", node "*-02", "db")
//
// Filter Logic:
//   - Thresholds are floors, never ranges: a record passes when value >= threshold
//   - Multiple criteria use AND logic (all must match)
//   - Patterns on the same field use OR logic, different fields AND
//   - Missing, N/A, or non-numeric values always fail a threshold
//   - Default state: no criteria active (everything passes)
//
// Evaluation is pure: it reads the record and criteria and never touches the
// table. Consumers turn decisions into dim or hide display states via Policy.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"pulseview/record"
)

// Criterion is a single numeric floor on one field. The operator is fixed to >=.
type Criterion struct {
	Field     string  `yaml:"field"`
	Threshold float64 `yaml:"threshold"`
}

// Decision is the result of evaluating one record.
type Decision struct {
	Passes bool
}

// Evaluate reports whether rec satisfies every criterion.
//
// Parameters:
//   - rec: Record to check (read only)
//   - criteria: Active criteria; an empty slice always passes
//
// Returns:
//   - Decision: Passes is true only if every criterion holds
//
// Behavior:
//   - A field that is absent, N/A, or not parseable as a finite number fails
//     its criterion; unknown data never satisfies a minimum check
//   - Repeated calls with the same inputs return the same decision
//
// Example:
//
//	rec := record.Record{Key: "a", Fields: map[string]record.Value{"cpu": record.Num(95)}}
//	filter.Evaluate(rec, []filter.Criterion{{Field: "cpu", Threshold: 80}}) // Passes
func Evaluate(rec record.Record, criteria []Criterion) Decision {
	for _, c := range criteria {
		v, ok := rec.Get(c.Field).Float()
		if !ok || v < c.Threshold {
			return Decision{Passes: false}
		}
	}
	return Decision{Passes: true}
}

// Pattern is a case-insensitive text match on one field.
type Pattern struct {
	Field string `yaml:"field"`
	Expr  string `yaml:"expr"`
}

// Filter holds the active criteria of one view.
//
// The filter maintains two kinds of criteria that are combined with AND:
//  1. Thresholds: numeric floors keyed by field (one per field)
//  2. Patterns: text matches; several patterns on a field are OR'ed
//
// Default Behavior:
//   - No thresholds and no patterns: every record passes
//   - A threshold <= 0 is treated as "off" and removed
//
// Thread Safety:
//   - Each view owns its Filter; callers serialize access
type Filter struct {
	Thresholds map[string]float64
	Patterns   []Pattern
}

// NewFilter creates a filter with no active criteria.
func NewFilter() *Filter {
	return &Filter{
		Thresholds: make(map[string]float64),
		Patterns:   make([]Pattern, 0),
	}
}

// SetThreshold activates, changes, or clears the floor for field.
//
// Parameters:
//   - field: Record field name (e.g., "cpu")
//   - threshold: Minimum value; <= 0 removes the criterion
//
// Examples:
//
//	f.SetThreshold("cpu", 80) // cpu >= 80
//	f.SetThreshold("cpu", 0)  // cpu criterion off
func (f *Filter) SetThreshold(field string, threshold float64) {
	field = strings.TrimSpace(field)
	if field == "" {
		return
	}
	if f.Thresholds == nil {
		f.Thresholds = make(map[string]float64)
	}
	if threshold <= 0 {
		delete(f.Thresholds, field)
		return
	}
	f.Thresholds[field] = threshold
}

// Threshold returns the active floor for field.
func (f *Filter) Threshold(field string) (float64, bool) {
	v, ok := f.Thresholds[field]
	return v, ok
}

// AddPattern adds a text pattern on field.
//
// Pattern matching:
//   - Exact or substring match: "web" matches "web-01" and "my-web"
//   - Prefix wildcard: "web*" matches values starting with "web"
//   - Suffix wildcard: "*-02" matches values ending with "-02"
//
// Empty expressions are ignored; patterns are stored lowercased.
func (f *Filter) AddPattern(field, expr string) {
	field = strings.TrimSpace(field)
	expr = strings.ToLower(strings.TrimSpace(expr))
	if field == "" || expr == "" {
		return
	}
	for _, p := range f.Patterns {
		if p.Field == field && p.Expr == expr {
			return
		}
	}
	f.Patterns = append(f.Patterns, Pattern{Field: field, Expr: expr})
}

// RemovePatterns drops every pattern on field.
func (f *Filter) RemovePatterns(field string) {
	kept := f.Patterns[:0]
	for _, p := range f.Patterns {
		if p.Field != field {
			kept = append(kept, p)
		}
	}
	f.Patterns = kept
}

// ClearPatterns removes every text pattern.
func (f *Filter) ClearPatterns() {
	f.Patterns = make([]Pattern, 0)
}

// Reset clears thresholds and patterns, returning to the pass-everything state.
func (f *Filter) Reset() {
	f.Thresholds = make(map[string]float64)
	f.ClearPatterns()
}

// Active reports whether any criterion is set.
func (f *Filter) Active() bool {
	return f != nil && (len(f.Thresholds) > 0 || len(f.Patterns) > 0)
}

// Criteria returns the active thresholds sorted by field name.
func (f *Filter) Criteria() []Criterion {
	if f == nil || len(f.Thresholds) == 0 {
		return nil
	}
	out := make([]Criterion, 0, len(f.Thresholds))
	for field, threshold := range f.Thresholds {
		out = append(out, Criterion{Field: field, Threshold: threshold})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Matches returns true if rec passes every threshold and pattern group.
func (f *Filter) Matches(rec record.Record) bool {
	if f == nil {
		return true
	}
	if !Evaluate(rec, f.Criteria()).Passes {
		return false
	}
	if len(f.Patterns) == 0 {
		return true
	}
	byField := make(map[string]bool)
	for _, p := range f.Patterns {
		if byField[p.Field] {
			continue
		}
		byField[p.Field] = matchesPattern(rec.Get(p.Field), p.Expr)
	}
	for _, matched := range byField {
		if !matched {
			return false
		}
	}
	return true
}

func matchesPattern(v record.Value, expr string) bool {
	if v.IsMissing() {
		return false
	}
	value := strings.ToLower(v.String())
	if value == expr {
		return true
	}
	if strings.HasSuffix(expr, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(expr, "*"))
	}
	if strings.HasPrefix(expr, "*") {
		return strings.HasSuffix(value, strings.TrimPrefix(expr, "*"))
	}
	return strings.Contains(value, expr)
}

// String returns a human-readable description of the active criteria,
// e.g. "cpu>=80 mem>=50 | name~web*". An inactive filter reports "No active filters".
func (f *Filter) String() string {
	if !f.Active() {
		return "No active filters"
	}
	var parts []string
	for _, c := range f.Criteria() {
		parts = append(parts, fmt.Sprintf("%s>=%g", c.Field, c.Threshold))
	}
	var pats []string
	for _, p := range f.Patterns {
		pats = append(pats, p.Field+"~"+p.Expr)
	}
	switch {
	case len(parts) == 0:
		return strings.Join(pats, " ")
	case len(pats) == 0:
		return strings.Join(parts, " ")
	default:
		return strings.Join(parts, " ") + " | " + strings.Join(pats, " ")
	}
}

// Clone returns a deep copy.
func (f *Filter) Clone() *Filter {
	out := NewFilter()
	if f == nil {
		return out
	}
	for k, v := range f.Thresholds {
		out.Thresholds[k] = v
	}
	out.Patterns = append(out.Patterns, f.Patterns...)
	return out
}
