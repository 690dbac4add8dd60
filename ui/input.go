package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// filterCommand is a parsed line from the filter prompt.
type filterCommand struct {
	Field     string
	Threshold float64
	// Pattern is set for text matches; IsPattern distinguishes an empty
	// pattern, which clears the field.
	Pattern   string
	IsPattern bool
}

var errEmptyCommand = errors.New("empty filter")

// parseFilter accepts "cpu>=80", "cpu 80", "cpu=0" (clear), "name~web*" and
// "name~" (clear patterns).
func parseFilter(line string) (filterCommand, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return filterCommand{}, errEmptyCommand
	}
	if i := strings.Index(line, "~"); i >= 0 {
		field := strings.ToLower(strings.TrimSpace(line[:i]))
		if field == "" {
			return filterCommand{}, fmt.Errorf("missing field in %q", line)
		}
		return filterCommand{Field: field, Pattern: strings.ToLower(strings.TrimSpace(line[i+1:])), IsPattern: true}, nil
	}
	var field, value string
	switch {
	case strings.Contains(line, ">="):
		parts := strings.SplitN(line, ">=", 2)
		field, value = parts[0], parts[1]
	case strings.Contains(line, "="):
		parts := strings.SplitN(line, "=", 2)
		field, value = parts[0], parts[1]
	default:
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return filterCommand{}, fmt.Errorf("expected field>=value or field~pattern, got %q", line)
		}
		field, value = parts[0], parts[1]
	}
	field = strings.ToLower(strings.TrimSpace(field))
	value = strings.TrimSuffix(strings.TrimSpace(value), "%")
	if field == "" {
		return filterCommand{}, fmt.Errorf("missing field in %q", line)
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return filterCommand{}, fmt.Errorf("threshold for %s must be a number, got %q", field, value)
	}
	return filterCommand{Field: field, Threshold: n}, nil
}

// stepThreshold moves a slider value by delta steps, clamped to [0, max].
// Zero means off.
func stepThreshold(current float64, delta int, step, max float64) float64 {
	next := current + float64(delta)*step
	if next < 0 {
		next = 0
	}
	if max > 0 && next > max {
		next = max
	}
	return next
}
