package prefs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Preference keys. Per-view keys take the view name as suffix.
const (
	KeyMode       = "view_mode"
	KeyChartRange = "chart_range"
	keySortField  = "sort_field."
	keySortAsc    = "sort_asc."
	keyPolicy     = "filter_policy."
	keyFilter     = "filter_state."
)

// SortFieldKey, SortAscKey, PolicyKey and FilterKey build per-view keys.
func SortFieldKey(view string) string { return keySortField + view }
func SortAscKey(view string) string   { return keySortAsc + view }
func PolicyKey(view string) string    { return keyPolicy + view }
func FilterKey(view string) string    { return keyFilter + view }

// String reads key and validates it. A missing key yields def with no error.
// A value that fails valid yields def and an error wrapping
// ErrInvalidPreference.
func String(ctx context.Context, s Store, key, def string, valid func(string) bool) (string, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	v = strings.TrimSpace(v)
	if valid != nil && !valid(v) {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidPreference, key, v)
	}
	return v, nil
}

// Bool reads a boolean preference.
func Bool(ctx context.Context, s Store, key string, def bool) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, perr := strconv.ParseBool(strings.TrimSpace(v))
	if perr != nil {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidPreference, key, v)
	}
	return b, nil
}

// Mode reads the persisted view mode.
func Mode(ctx context.Context, s Store, def string, valid func(string) bool) (string, error) {
	return String(ctx, s, KeyMode, def, valid)
}

// ChartRange reads the persisted chart time window label.
func ChartRange(ctx context.Context, s Store, def string, valid func(string) bool) (string, error) {
	return String(ctx, s, KeyChartRange, def, valid)
}

// SortField reads the persisted sort column for view.
func SortField(ctx context.Context, s Store, view, def string, valid func(string) bool) (string, error) {
	return String(ctx, s, SortFieldKey(view), def, valid)
}

// SortAsc reads the persisted sort direction for view.
func SortAsc(ctx context.Context, s Store, view string, def bool) (bool, error) {
	return Bool(ctx, s, SortAscKey(view), def)
}

// Policy reads the persisted dim/hide policy for view.
func Policy(ctx context.Context, s Store, view, def string) (string, error) {
	return String(ctx, s, PolicyKey(view), def, func(v string) bool {
		v = strings.ToLower(v)
		return v == "dim" || v == "hide"
	})
}

// SetBool stores a boolean preference.
func SetBool(ctx context.Context, s Store, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v))
}
