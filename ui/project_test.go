package ui

import (
	"context"
	"strings"
	"testing"

	"pulseview/chart"
	"pulseview/live"
	"pulseview/record"
	"pulseview/sorting"
	"pulseview/source"
	"pulseview/table"
	"pulseview/views"
)

func guest(key, group string, cpu float64) record.Record {
	return record.Record{Key: key, Group: group, Fields: map[string]record.Value{
		"name": record.Str(key),
		"cpu":  record.Num(cpu),
	}}
}

func mountedBody(t *testing.T, recs ...record.Record) *table.Body {
	t.Helper()
	body := views.Dashboard.NewBody()
	if _, err := body.Reconcile(views.Dashboard.Entries(recs), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	return body
}

func TestProjectRowsSkipsHiddenAndDimsFailing(t *testing.T) {
	body := mountedBody(t, guest("web1", "node-a", 95), guest("db1", "node-a", 10), guest("tmp", "node-a", 5))
	body.ApplyDisplay(map[string]table.DisplayState{
		"web1": table.Shown,
		"db1":  {Visible: true, Dimmed: true},
		"tmp":  {},
	})
	body.SetRowClass("web1", live.AlertRowClass, true)

	lines := projectRows(views.Dashboard, body.Snapshot(), false)
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(lines))
	}
	if !lines[0][0].Bold || lines[0][0].Text != "node-a" {
		t.Fatalf("expected group header first, got %+v", lines[0][0])
	}
	for _, line := range lines[1:] {
		switch line[0].Text {
		case "web1":
			if line[0].Color != uiAlertColor {
				t.Fatalf("alerting row should be red")
			}
		case "db1":
			if line[0].Color != uiDimColor {
				t.Fatalf("failing row should be dimmed")
			}
		default:
			t.Fatalf("unexpected row %q", line[0].Text)
		}
	}
}

func TestProjectRowsChartsColumn(t *testing.T) {
	body := mountedBody(t, guest("web1", "", 50))
	spark := &chart.Sparkline{}
	spark.SetPoints([]chart.Point{{Value: 1}, {Value: 2}})
	body.AttachWidget("web1", spark)

	lines := projectRows(views.Dashboard, body.Snapshot(), true)
	last := lines[0][len(lines[0])-1]
	if last.Text == "" || last.Color != uiSparkColor {
		t.Fatalf("expected sparkline cell, got %+v", last)
	}
	header := headerCells(views.Dashboard, sorting.State{Field: "cpu"}, true, "1h")
	if got := header[len(header)-1].Text; got != "Trend 1h" {
		t.Fatalf("unexpected trend header %q", got)
	}
}

func TestHeaderCellsMarksSortColumn(t *testing.T) {
	header := headerCells(views.Dashboard, sorting.State{Field: "name", Ascending: true}, false, "")
	if header[0].Text != "Name ▲" {
		t.Fatalf("expected ascending marker, got %q", header[0].Text)
	}
	header = headerCells(views.Dashboard, sorting.State{Field: "cpu"}, false, "")
	for _, c := range header {
		if strings.HasPrefix(c.Text, "CPU") && c.Text != "CPU ▼" {
			t.Fatalf("expected descending marker, got %q", c.Text)
		}
	}
}

func TestProjectRowsNoDataError(t *testing.T) {
	body := views.Dashboard.NewBody()
	if _, err := body.Reconcile(nil, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	body.SetNoDataMessage("Error loading guests: refused")
	lines := projectRows(views.Dashboard, body.Snapshot(), false)
	if len(lines) != 1 || lines[0][0].Color != uiAlertColor || !strings.Contains(lines[0][0].Text, "refused") {
		t.Fatalf("expected red error row, got %+v", lines)
	}
}

func TestTextRendersAlignedTable(t *testing.T) {
	src := source.NewStatic()
	src.Set(record.Guests, []record.Record{guest("web1", "node-a", 42), guest("db1", "node-a", 7)})
	d := live.New(src, []views.View{views.Dashboard}, live.Options{})
	if err := d.Refresh(context.Background(), "dashboard"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	out, err := Text(d, "dashboard")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, group and 2 rows, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "Name ▲") {
		t.Fatalf("unexpected header line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "node-a") || !strings.HasPrefix(lines[2], "db1") {
		t.Fatalf("unexpected order:\n%s", out)
	}
	if _, err := Text(d, "nope"); err == nil {
		t.Fatalf("expected unknown view error")
	}
}
