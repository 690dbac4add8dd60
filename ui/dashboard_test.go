package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"pulseview/filter"
	"pulseview/live"
	"pulseview/record"
	"pulseview/source"
	"pulseview/viewmode"
	"pulseview/views"
)

func testDashboard(t *testing.T) (*Dashboard, *live.Driver) {
	t.Helper()
	src := source.NewStatic()
	src.Set(record.Guests, []record.Record{guest("web1", "node-a", 95), guest("db1", "node-a", 10)})
	d := live.New(src, []views.View{views.Dashboard, views.Storage}, live.Options{})
	if err := d.Refresh(context.Background(), "dashboard"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	dash := build(d, Options{SliderQuiet: time.Hour})
	t.Cleanup(dash.cancel)
	return dash, d
}

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestDashboardPagesFollowHotkeys(t *testing.T) {
	dash, _ := testDashboard(t)
	if got := strings.Join(dash.pageOrder, ","); got != "dashboard,storage,log" {
		t.Fatalf("unexpected page order %q", got)
	}
	if dash.frontName() != "dashboard" {
		t.Fatalf("expected first page in front, got %q", dash.frontName())
	}
	dash.handleKey(key('2'))
	if dash.frontName() != "storage" {
		t.Fatalf("expected storage page, got %q", dash.frontName())
	}
	dash.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	if dash.frontName() != logPageName {
		t.Fatalf("expected log page, got %q", dash.frontName())
	}
	dash.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	if dash.frontName() != "dashboard" {
		t.Fatalf("expected wraparound to dashboard, got %q", dash.frontName())
	}
}

func TestDashboardSortKeys(t *testing.T) {
	dash, d := testDashboard(t)
	dash.handleKey(key('s'))
	st, _ := d.Status("dashboard")
	if st.Sort.Field != "type" || !st.Sort.Ascending {
		t.Fatalf("expected ascending sort on type, got %+v", st.Sort)
	}
	dash.handleKey(key('S'))
	st, _ = d.Status("dashboard")
	if st.Sort.Field != "type" || st.Sort.Ascending {
		t.Fatalf("expected reversed sort on type, got %+v", st.Sort)
	}
}

func TestDashboardThresholdSlider(t *testing.T) {
	dash, d := testDashboard(t)
	dash.handleKey(key('t'))
	if d.Modes().Mode() != viewmode.Thresholds {
		t.Fatalf("expected thresholds mode")
	}
	for i := 0; i < 4; i++ {
		dash.handleKey(key('+'))
	}
	if crit, _ := d.Criteria("dashboard"); len(crit) != 0 {
		t.Fatalf("slider must wait for quiet period, got %v", crit)
	}
	dash.slider.Flush()
	crit, _ := d.Criteria("dashboard")
	if len(crit) != 1 || crit[0].Field != "cpu" || crit[0].Threshold != 20 {
		t.Fatalf("expected cpu>=20 after four steps, got %v", crit)
	}
	body, _ := d.Body("dashboard")
	if st, _ := body.DisplayOf("db1"); !st.Dimmed {
		t.Fatalf("db1 should be dimmed under cpu>=20")
	}
}

func TestDashboardFilterPromptAndPolicy(t *testing.T) {
	dash, d := testDashboard(t)
	if err := dash.applyFilter("dashboard", "name~web*"); err != nil {
		t.Fatalf("applyFilter: %v", err)
	}
	if err := dash.applyFilter("dashboard", "nmae~web"); err == nil {
		t.Fatalf("expected unknown field error")
	}
	dash.handleKey(key('p'))
	st, _ := d.Status("dashboard")
	if st.Policy != filter.PolicyHide || !strings.Contains(st.Filter, "name~web*") {
		t.Fatalf("unexpected status %+v", st)
	}
	dash.handleKey(key('r'))
	st, _ = d.Status("dashboard")
	if strings.Contains(st.Filter, "name~") {
		t.Fatalf("reset should clear patterns, got %q", st.Filter)
	}
}

func TestDashboardChartsDisabledNotice(t *testing.T) {
	dash, d := testDashboard(t)
	dash.handleKey(key('c'))
	if d.Modes().Mode() != viewmode.Normal {
		t.Fatalf("charts mode must not start without a chart subsystem")
	}
	if !strings.Contains(dash.notices.Current(), "charts are disabled") {
		t.Fatalf("expected notice, got %q", dash.notices.Current())
	}
}

func TestDashboardPaintProjectsBody(t *testing.T) {
	dash, _ := testDashboard(t)
	page := dash.tables["dashboard"]
	dash.paint(page)
	if got := page.tbl.GetCell(0, 0).Text; got != "Name ▲" {
		t.Fatalf("unexpected header %q", got)
	}
	if got := page.tbl.GetCell(1, 0).Text; got != "node-a" {
		t.Fatalf("expected group header row, got %q", got)
	}
	if got := page.tbl.GetCell(2, 0).Text; got != "db1" {
		t.Fatalf("expected db1 first, got %q", got)
	}
}
