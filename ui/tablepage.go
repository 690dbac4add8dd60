package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"pulseview/live"
	"pulseview/table"
	"pulseview/views"
)

// tablePage projects one view's body onto a tview.Table. The body stays the
// source of truth; the widget is rebuilt from a snapshot on every repaint.
type tablePage struct {
	view   views.View
	body   *table.Body
	tbl    *tview.Table
	cursor int
}

func newTablePage(v views.View, body *table.Body, hotkey int) *tablePage {
	tbl := tview.NewTable().SetFixed(1, 0).SetSelectable(false, false).SetBorders(false)
	tbl.SetBorder(true)
	title := v.Title
	if hotkey > 0 {
		title = "[" + string(rune('0'+hotkey)) + "[] " + title
	}
	applyFocusBoxStyle(tbl.Box, title, true)
	return &tablePage{view: v, body: body, tbl: tbl}
}

// cursorField is the column the header cursor sits on.
func (p *tablePage) cursorField() string {
	if p.cursor < 0 || p.cursor >= len(p.view.Columns) {
		return p.view.Columns[0].Field
	}
	return p.view.Columns[p.cursor].Field
}

func (p *tablePage) moveCursor(delta int) {
	n := len(p.view.Columns)
	p.cursor = ((p.cursor+delta)%n + n) % n
}

func (p *tablePage) setCursor(field string) {
	for i, c := range p.view.Columns {
		if c.Field == field {
			p.cursor = i
			return
		}
	}
}

// render rebuilds the widget. The scroll offset round-trips through the
// body so it survives reconciles and remounts.
func (p *tablePage) render(st live.Status, charts bool, window string) {
	row, col := p.tbl.GetOffset()
	p.body.SetScroll(row)

	header := headerCells(p.view, st.Sort, charts, window)
	lines := projectRows(p.view, p.body.Snapshot(), charts)

	p.tbl.Clear()
	for c, hc := range header {
		tc := toTableCell(hc).SetSelectable(false)
		if c == p.cursor {
			tc.SetAttributes(tcell.AttrBold | tcell.AttrUnderline)
		}
		p.tbl.SetCell(0, c, tc)
	}
	for r, line := range lines {
		for c, lc := range line {
			p.tbl.SetCell(r+1, c, toTableCell(lc))
		}
	}
	p.tbl.SetOffset(p.body.Scroll(), col)
}

func toTableCell(c cell) *tview.TableCell {
	tc := tview.NewTableCell(tview.Escape(c.Text)).
		SetTextColor(c.Color).
		SetAlign(c.Align)
	if c.Bold {
		tc.SetAttributes(tcell.AttrBold)
	}
	if !c.Span {
		tc.SetMaxWidth(40)
	}
	return tc
}
