package filter

import (
	"errors"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Snapshot is the persisted form of a view's filter state. It is stored as a
// YAML document under a preference key so it survives reloads.
type Snapshot struct {
	Policy     Policy      `yaml:"policy"`
	Thresholds []Criterion `yaml:"thresholds,omitempty"`
	Patterns   []Pattern   `yaml:"patterns,omitempty"`
}

// Capture builds a snapshot from a live filter.
func Capture(f *Filter, policy Policy) Snapshot {
	snap := Snapshot{Policy: NormalizePolicy(string(policy))}
	if f == nil {
		return snap
	}
	snap.Thresholds = f.Criteria()
	snap.Patterns = append(snap.Patterns, f.Patterns...)
	return snap
}

// Restore rebuilds a filter from the snapshot. Thresholds <= 0 and blank
// patterns are dropped, the same way the setters treat them.
func (s Snapshot) Restore() (*Filter, Policy) {
	f := NewFilter()
	for _, c := range s.Thresholds {
		f.SetThreshold(c.Field, c.Threshold)
	}
	for _, p := range s.Patterns {
		f.AddPattern(p.Field, p.Expr)
	}
	return f, NormalizePolicy(string(s.Policy))
}

// MarshalSnapshot encodes a snapshot for a preference value.
func MarshalSnapshot(s Snapshot) (string, error) {
	sort.SliceStable(s.Thresholds, func(i, j int) bool { return s.Thresholds[i].Field < s.Thresholds[j].Field })
	bs, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

// UnmarshalSnapshot decodes a stored preference value.
// An empty value returns an error so callers fall back to defaults.
func UnmarshalSnapshot(value string) (Snapshot, error) {
	if strings.TrimSpace(value) == "" {
		return Snapshot{}, errors.New("empty filter snapshot")
	}
	var snap Snapshot
	if err := yaml.Unmarshal([]byte(value), &snap); err != nil {
		return Snapshot{}, err
	}
	snap.Policy = NormalizePolicy(string(snap.Policy))
	return snap, nil
}
