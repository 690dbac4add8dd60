package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"pulseview/chart"
	"pulseview/live"
	"pulseview/sorting"
	"pulseview/table"
	"pulseview/views"
)

const sparkWidth = 24

// cell is one rendered table cell.
type cell struct {
	Text  string
	Color tcell.Color
	Bold  bool
	Align int
	// Span marks a cell of a full-width line that is not column aligned.
	Span bool
}

// headerCells renders the column header line with the sort indicator and,
// in Charts mode, the trend column.
func headerCells(v views.View, st sorting.State, charts bool, window string) []cell {
	out := make([]cell, 0, len(v.Columns)+1)
	for _, c := range v.Columns {
		text := c.Header
		if c.Field == st.Field {
			if st.Ascending {
				text += " ▲"
			} else {
				text += " ▼"
			}
		}
		align := tview.AlignLeft
		if c.Numeric {
			align = tview.AlignRight
		}
		out = append(out, cell{Text: text, Color: uiTitleColor, Bold: true, Align: align})
	}
	if charts {
		out = append(out, cell{Text: "Trend " + window, Color: uiTitleColor, Bold: true, Align: tview.AlignLeft})
	}
	return out
}

// projectRows turns a body snapshot into screen lines. Hidden rows are
// skipped; dimmed rows keep their place in gray.
func projectRows(v views.View, rows []table.RowView, charts bool) [][]cell {
	out := make([][]cell, 0, len(rows))
	for _, row := range rows {
		if !row.Display.Visible {
			continue
		}
		switch row.ID.Kind {
		case table.GroupHeader:
			line := make([]cell, 0, len(row.Cells))
			for _, text := range row.Cells {
				line = append(line, cell{Text: text, Color: uiHeaderColor, Bold: true, Align: tview.AlignLeft, Span: true})
			}
			out = append(out, line)
		case table.GroupEmpty:
			out = append(out, []cell{{Text: "  " + strings.Join(row.Cells, " "), Color: uiDimColor, Align: tview.AlignLeft, Span: true}})
		case table.NoData:
			color := uiNoDataColor
			if row.Attrs["error"] != "" {
				color = uiAlertColor
			}
			out = append(out, []cell{{Text: strings.Join(row.Cells, " "), Color: color, Align: tview.AlignLeft, Span: true}})
		default:
			out = append(out, recordCells(v, row, charts))
		}
	}
	return out
}

func recordCells(v views.View, row table.RowView, charts bool) []cell {
	color := uiDefaultColor
	switch {
	case row.Display.Dimmed:
		color = uiDimColor
	case hasClass(row.Classes, live.AlertRowClass):
		color = uiAlertColor
	}
	line := make([]cell, 0, len(row.Cells)+1)
	for i, text := range row.Cells {
		align := tview.AlignLeft
		if i < len(v.Columns) && v.Columns[i].Numeric {
			align = tview.AlignRight
		}
		line = append(line, cell{Text: text, Color: color, Align: align})
	}
	if charts {
		spark := ""
		if s, ok := row.Widget.(*chart.Sparkline); ok {
			spark = s.Render(sparkWidth)
		}
		sc := uiSparkColor
		if row.Display.Dimmed {
			sc = uiDimColor
		}
		line = append(line, cell{Text: spark, Color: sc, Align: tview.AlignLeft})
	}
	return line
}

func hasClass(classes []string, class string) bool {
	for _, c := range classes {
		if c == class {
			return true
		}
	}
	return false
}

// renderText lays projected lines out as plain aligned text, used by the
// headless snapshot.
func renderText(header []cell, lines [][]cell) string {
	widths := make([]int, len(header))
	measure := func(line []cell) {
		for i, c := range line {
			if c.Span {
				return
			}
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := tview.TaggedStringWidth(c.Text); n > widths[i] {
				widths[i] = n
			}
		}
	}
	measure(header)
	for _, line := range lines {
		measure(line)
	}
	var b strings.Builder
	write := func(line []cell) {
		parts := make([]string, len(line))
		for i, c := range line {
			if c.Span || i >= len(widths) {
				parts[i] = c.Text
				continue
			}
			pad := widths[i] - tview.TaggedStringWidth(c.Text)
			if pad < 0 {
				pad = 0
			}
			if c.Align == tview.AlignRight {
				parts[i] = strings.Repeat(" ", pad) + c.Text
			} else {
				parts[i] = c.Text + strings.Repeat(" ", pad)
			}
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteByte('\n')
	}
	write(header)
	for _, line := range lines {
		write(line)
	}
	return b.String()
}

// Text renders the current table of view as aligned plain text.
func Text(d *live.Driver, view string) (string, error) {
	v, ok := d.View(view)
	if !ok {
		return "", fmt.Errorf("unknown view %q", view)
	}
	body, ok := d.Body(view)
	if !ok {
		return "", fmt.Errorf("%s: %w", view, live.ErrRenderTargetMissing)
	}
	st, err := d.Status(view)
	if err != nil {
		return "", err
	}
	charts := body.HasClass(chart.ModeClass)
	window := d.Modes().Window().Label
	return renderText(headerCells(v, st.Sort, charts, window), projectRows(v, body.Snapshot(), charts)), nil
}
