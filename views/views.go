// Package views defines the five dashboard tables: which records they show,
// their columns, sort defaults, threshold fields, and how a record becomes a
// table row.
package views

import (
	"fmt"
	"strconv"
	"time"

	humanize "github.com/dustin/go-humanize"

	"pulseview/record"
	"pulseview/sorting"
	"pulseview/table"
)

// Format renders one cell value.
type Format func(record.Value) string

// Column is one displayed column.
type Column struct {
	Field   string
	Header  string
	Numeric bool
	// DefaultAscending is the first-click direction for this column.
	DefaultAscending bool
	Format           Format
	// Step and Max tune the threshold slider; zero Max means unbounded.
	Step float64
	Max  float64
}

// View describes one table.
type View struct {
	Name    string
	Title   string
	Kind    record.Kind
	Columns []Column
	Grouped bool
	// DefaultSort is the initial sort field.
	DefaultSort string
	// ThresholdFields are the numeric fields offered as criteria.
	ThresholdFields []string
	// AlertLevels flag a row in Alerts mode when any field reaches its level.
	AlertLevels map[string]float64
	// ChartMetric is the field charted in Charts mode; empty means none.
	ChartMetric string
}

// SortColumns returns the sort configuration of the view.
func (v View) SortColumns() sorting.Columns {
	cols := make([]sorting.Column, len(v.Columns))
	for i, c := range v.Columns {
		cols[i] = sorting.Column{Field: c.Field, Numeric: c.Numeric, DefaultAscending: c.DefaultAscending}
	}
	return sorting.NewColumns(cols...)
}

// DefaultState is the sort state before any user click.
func (v View) DefaultState() sorting.State {
	return sorting.State{}.Click(v.DefaultSort, v.SortColumns())
}

// HasField reports whether field is a column of the view.
func (v View) HasField(field string) bool {
	for _, c := range v.Columns {
		if c.Field == field {
			return true
		}
	}
	return false
}

// Fields lists the column fields in display order.
func (v View) Fields() []string {
	out := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		out[i] = c.Field
	}
	return out
}

// SliderStep returns the threshold increment and ceiling for field. Columns
// without a configured step move by 1.
func (v View) SliderStep(field string) (step, max float64) {
	for _, c := range v.Columns {
		if c.Field == field && c.Step > 0 {
			return c.Step, c.Max
		}
	}
	return 1, 0
}

// Headers lists the column headers in display order.
func (v View) Headers() []string {
	out := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		out[i] = c.Header
	}
	return out
}

// Entry renders rec as a table entry. Raw values go into attributes so later
// comparisons never re-parse rendered text.
func (v View) Entry(rec record.Record) table.Entry {
	cells := make([]string, len(v.Columns))
	attrs := make(map[string]string, len(v.Columns))
	for i, c := range v.Columns {
		val := rec.Get(c.Field)
		format := c.Format
		if format == nil {
			format = Text
		}
		cells[i] = format(val)
		if !val.IsMissing() {
			attrs[c.Field] = val.String()
		}
	}
	group := ""
	if v.Grouped {
		group = rec.Group
	}
	return table.Entry{Key: rec.Key, Group: group, Cells: cells, Attrs: attrs}
}

// Entries renders records in order.
func (v View) Entries(recs []record.Record) []table.Entry {
	out := make([]table.Entry, len(recs))
	for i, rec := range recs {
		out[i] = v.Entry(rec)
	}
	return out
}

// HeaderCells renders a group header row.
func (v View) HeaderCells(group string, members int) []string {
	noun := "items"
	if members == 1 {
		noun = "item"
	}
	return []string{group, fmt.Sprintf("%d %s", members, noun)}
}

// NewBody builds a table body configured for the view.
func (v View) NewBody() *table.Body {
	return table.NewBody(
		table.WithHeaderCells(v.HeaderCells),
		table.WithPlaceholders("No "+v.Title+" on this node", "No "+v.Title+" found"),
	)
}

// Alerting reports whether rec reaches any alert level.
func (v View) Alerting(rec record.Record) bool {
	for field, level := range v.AlertLevels {
		if f, ok := rec.Get(field).Float(); ok && f >= level {
			return true
		}
	}
	return false
}

// Text prints a value as-is, with N/A for missing.
func Text(v record.Value) string { return v.String() }

// Percent prints a 0-100 value with one decimal.
func Percent(v record.Value) string {
	f, ok := v.Float()
	if !ok {
		return "N/A"
	}
	return strconv.FormatFloat(f, 'f', 1, 64) + "%"
}

// Bytes prints a byte count in IEC units.
func Bytes(v record.Value) string {
	f, ok := v.Float()
	if !ok || f < 0 {
		return "N/A"
	}
	return humanize.IBytes(uint64(f))
}

// Rate prints a byte-per-second counter.
func Rate(v record.Value) string {
	f, ok := v.Float()
	if !ok || f < 0 {
		return "N/A"
	}
	return humanize.IBytes(uint64(f)) + "/s"
}

// Integer prints a whole number.
func Integer(v record.Value) string {
	f, ok := v.Float()
	if !ok {
		return v.String()
	}
	return strconv.FormatInt(int64(f), 10)
}

// Uptime prints seconds as a compact duration.
func Uptime(v record.Value) string {
	f, ok := v.Float()
	if !ok || f <= 0 {
		return "-"
	}
	d := time.Duration(f) * time.Second
	days := int(d.Hours()) / 24
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, int(d.Hours())%24)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

// Seconds prints a duration in seconds.
func Seconds(v record.Value) string {
	f, ok := v.Float()
	if !ok {
		return "-"
	}
	return (time.Duration(f) * time.Second).String()
}

// clock is swapped in tests.
var clock = time.Now

// Age prints a unix timestamp relative to now.
func Age(v record.Value) string {
	f, ok := v.Float()
	if !ok || f <= 0 {
		return "never"
	}
	return humanize.RelTime(time.Unix(int64(f), 0), clock(), "ago", "from now")
}
