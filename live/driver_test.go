package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pulseview/filter"
	"pulseview/prefs"
	"pulseview/record"
	"pulseview/source"
	"pulseview/table"
	"pulseview/viewmode"
	"pulseview/views"
)

type countingSource struct {
	inner   source.Source
	calls   atomic.Int32
	gate    chan struct{}
	started chan struct{}
	panics  atomic.Bool
}

func (c *countingSource) Fetch(ctx context.Context, kind record.Kind) ([]record.Record, error) {
	c.calls.Add(1)
	if c.panics.Load() {
		panic("source exploded")
	}
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	return c.inner.Fetch(ctx, kind)
}

type recordingListener struct {
	mu      sync.Mutex
	visible [][]string
	redraws int
}

func (l *recordingListener) VisibleChanged(_ string, keys []string) {
	l.mu.Lock()
	l.visible = append(l.visible, keys)
	l.mu.Unlock()
}

func (l *recordingListener) Redraw(string) {
	l.mu.Lock()
	l.redraws++
	l.mu.Unlock()
}

func guest(key, group string, cpu float64) record.Record {
	return record.Record{Key: key, Group: group, Fields: map[string]record.Value{
		"name": record.Str(key),
		"cpu":  record.Num(cpu),
	}}
}

func newDriver(t *testing.T, recs ...record.Record) (*Driver, *source.Static, *table.Body) {
	t.Helper()
	src := source.NewStatic()
	src.Set(record.Guests, recs)
	d := New(src, []views.View{views.Dashboard, views.Storage}, Options{Metrics: NewMetrics(nil)})
	body, _ := d.Body("dashboard")
	return d, src, body
}

func mustRefresh(t *testing.T, d *Driver, view string) {
	t.Helper()
	if err := d.Refresh(context.Background(), view); err != nil {
		t.Fatalf("Refresh(%s): %v", view, err)
	}
}

func display(t *testing.T, body *table.Body, key string) table.DisplayState {
	t.Helper()
	st, ok := body.DisplayOf(key)
	if !ok {
		t.Fatalf("row %s missing from table", key)
	}
	return st
}

func TestRefreshIsIdempotent(t *testing.T) {
	d, _, body := newDriver(t, guest("a", "", 95), guest("b", "", 40))
	mustRefresh(t, d, "dashboard")
	if body.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", body.Len())
	}
	before := body.Mutations()
	mustRefresh(t, d, "dashboard")
	if after := body.Mutations(); after != before {
		t.Fatalf("identical refresh mutated table: %d -> %d", before, after)
	}
}

func TestConcurrentRefreshIsSkipped(t *testing.T) {
	src := &countingSource{inner: source.NewStatic(), gate: make(chan struct{}), started: make(chan struct{}, 1)}
	d := New(src, []views.View{views.Dashboard, views.Storage}, Options{})

	done := make(chan error, 1)
	go func() { done <- d.Refresh(context.Background(), "dashboard") }()
	<-src.started

	if err := d.Refresh(context.Background(), "dashboard"); !errors.Is(err, ErrConcurrentRefreshSkipped) {
		t.Fatalf("expected skip, got %v", err)
	}
	// Another table is independent.
	storageDone := make(chan error, 1)
	go func() { storageDone <- d.Refresh(context.Background(), "storage") }()
	<-src.started

	close(src.gate)
	if err := <-done; err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := <-storageDone; err != nil {
		t.Fatalf("storage refresh: %v", err)
	}
	src.started = nil
	if err := d.Refresh(context.Background(), "dashboard"); err != nil {
		t.Fatalf("refresh after completion: %v", err)
	}
}

func TestPanicClearsBusyFlag(t *testing.T) {
	src := &countingSource{inner: source.NewStatic()}
	src.panics.Store(true)
	d := New(src, []views.View{views.Dashboard}, Options{})
	err := d.Refresh(context.Background(), "dashboard")
	if err == nil || errors.Is(err, ErrConcurrentRefreshSkipped) {
		t.Fatalf("expected panic error, got %v", err)
	}
	src.panics.Store(false)
	if err := d.Refresh(context.Background(), "dashboard"); err != nil {
		t.Fatalf("busy flag must clear after panic: %v", err)
	}
}

func TestPanicDuringRenderReleasesTable(t *testing.T) {
	src := source.NewStatic()
	src.Set(record.Guests, []record.Record{guest("a", "pve1", 10), guest("b", "pve1", 20)})
	d := New(src, []views.View{views.Dashboard}, Options{})
	var exploded atomic.Bool
	body := table.NewBody(table.WithHeaderCells(func(group string, _ int) []string {
		if exploded.CompareAndSwap(false, true) {
			panic("header renderer exploded")
		}
		return []string{group}
	}))
	if err := d.Mount("dashboard", body); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if err := d.Refresh(context.Background(), "dashboard"); err == nil {
		t.Fatalf("expected the panic to surface as an error")
	}
	done := make(chan error, 1)
	go func() { done <- d.Refresh(context.Background(), "dashboard") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("refresh after recovered panic: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("table still locked after a recovered panic")
	}
	if _, ok := body.DisplayOf("a"); !ok {
		t.Fatalf("second refresh should render the rows")
	}
	if st, err := d.Status("dashboard"); err != nil || !st.Loaded || st.Rows != 2 {
		t.Fatalf("Status = %+v, %v", st, err)
	}
}

func TestFetchFailureBeforeAndAfterFirstLoad(t *testing.T) {
	d, src, body := newDriver(t)
	boom := errors.New("connection refused")
	src.Fail(record.Guests, boom)

	err := d.Refresh(context.Background(), "dashboard")
	if !errors.Is(err, ErrDataUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected data unavailable wrapping cause, got %v", err)
	}
	rows := body.Snapshot()
	if len(rows) != 1 || rows[0].ID.Kind != table.NoData || rows[0].Attrs["error"] == "" {
		t.Fatalf("expected single no-data row with inline error, got %+v", rows)
	}

	src.Set(record.Guests, []record.Record{guest("a", "", 10)})
	mustRefresh(t, d, "dashboard")
	src.Fail(record.Guests, boom)
	if err := d.Refresh(context.Background(), "dashboard"); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected data unavailable, got %v", err)
	}
	if _, ok := body.DisplayOf("a"); !ok {
		t.Fatalf("last good render must be kept after a failure")
	}
	if st, _ := d.Status("dashboard"); st.LastErr == nil || !st.Loaded {
		t.Fatalf("expected loaded status with last error, got %+v", st)
	}
}

func TestDuplicateKeysKeepLastGoodRender(t *testing.T) {
	d, src, body := newDriver(t, guest("a", "", 1))
	mustRefresh(t, d, "dashboard")
	src.Set(record.Guests, []record.Record{guest("b", "", 1), guest("b", "", 2)})
	if err := d.Refresh(context.Background(), "dashboard"); !errors.Is(err, table.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	if _, ok := body.DisplayOf("a"); !ok || body.Len() != 1 {
		t.Fatalf("expected previous rows untouched")
	}
}

func TestRenderTargetMissingIsIsolated(t *testing.T) {
	d, _, _ := newDriver(t, guest("a", "", 1))
	d.Unmount("storage")
	if err := d.Refresh(context.Background(), "storage"); !errors.Is(err, ErrRenderTargetMissing) {
		t.Fatalf("expected missing target, got %v", err)
	}
	if err := d.UpdateView(context.Background()); !errors.Is(err, ErrRenderTargetMissing) {
		t.Fatalf("expected joined missing target error, got %v", err)
	}
	if st, _ := d.Status("dashboard"); !st.Loaded {
		t.Fatalf("dashboard must refresh despite storage failing")
	}
	if err := d.Mount("storage", views.Storage.NewBody()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	mustRefresh(t, d, "storage")
}

func TestDimPolicyKeepsRowInLayout(t *testing.T) {
	d, _, body := newDriver(t, guest("a", "", 95), guest("b", "", 40))
	ctx := context.Background()
	mustRefresh(t, d, "dashboard")
	if err := d.SetViewMode(ctx, viewmode.Thresholds); err != nil {
		t.Fatalf("SetViewMode: %v", err)
	}
	if err := d.SetCriterion("cpu", 80); err != nil {
		t.Fatalf("SetCriterion: %v", err)
	}
	if st := display(t, body, "a"); !st.Visible || st.Dimmed {
		t.Fatalf("a should be plain visible, got %+v", st)
	}
	if st := display(t, body, "b"); !st.Visible || !st.Dimmed {
		t.Fatalf("b should be dimmed in layout, got %+v", st)
	}
}

func TestHidePolicyAndResetFilters(t *testing.T) {
	d, _, body := newDriver(t, guest("a", "", 95), guest("b", "", 40))
	ctx := context.Background()
	mustRefresh(t, d, "dashboard")
	_ = d.SetViewMode(ctx, viewmode.Thresholds)
	if err := d.SetPolicy("", filter.PolicyHide); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	_ = d.SetCriterion("cpu", 80)
	if st := display(t, body, "b"); st.Visible {
		t.Fatalf("b should be hidden, got %+v", st)
	}
	before := body.Snapshot()

	d.ResetFilters()
	if st := display(t, body, "b"); !st.Visible || st.Dimmed {
		t.Fatalf("b should be restored, got %+v", st)
	}
	after := body.Snapshot()
	for i := range before {
		if before[i].ID != after[i].ID || len(before[i].Cells) != len(after[i].Cells) {
			t.Fatalf("reset changed row %d: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestGroupHeaderFollowsMembers(t *testing.T) {
	d, _, body := newDriver(t, guest("r1", "node-a", 95), guest("r2", "node-a", 40))
	ctx := context.Background()
	mustRefresh(t, d, "dashboard")
	_ = d.SetViewMode(ctx, viewmode.Thresholds)
	_ = d.SetPolicy("dashboard", filter.PolicyHide)

	header := func() bool {
		st, ok := body.HeaderDisplay("node-a")
		if !ok {
			t.Fatalf("missing node-a header")
		}
		return st.Visible
	}
	_ = d.SetCriterion("cpu", 80)
	if !header() {
		t.Fatalf("header must stay visible while r1 passes")
	}
	_ = d.SetCriterion("cpu", 96)
	if header() {
		t.Fatalf("header must hide when every member is hidden")
	}
	_ = d.SetCriterion("cpu", 80)
	if !header() {
		t.Fatalf("header must reappear when a member is visible")
	}
}

func TestThresholdsOnlyApplyInThresholdsMode(t *testing.T) {
	d, _, body := newDriver(t, guest("a", "", 95), guest("b", "", 40))
	mustRefresh(t, d, "dashboard")
	_ = d.SetCriterion("cpu", 80)
	if st := display(t, body, "b"); st.Dimmed {
		t.Fatalf("thresholds must not apply outside thresholds mode")
	}
	if err := d.SetPattern("dashboard", "name", "a*, zz"); err != nil {
		t.Fatalf("SetPattern: %v", err)
	}
	if st := display(t, body, "b"); !st.Dimmed {
		t.Fatalf("patterns apply in every mode, got %+v", st)
	}
}

type orderWatch struct {
	t       *testing.T
	body    *table.Body
	entered bool
}

func (p *orderWatch) Enter(context.Context, viewmode.Token) error {
	p.entered = true
	if p.body.HasClass(ThresholdsClass) {
		p.t.Errorf("thresholds class still set when charts mode began")
	}
	if st, _ := p.body.DisplayOf("b"); st.Dimmed {
		p.t.Errorf("thresholds dimming still applied when charts mode began")
	}
	return nil
}

func (p *orderWatch) Exit() {}

func TestChartsModeStartsAfterThresholdsCleared(t *testing.T) {
	d, _, body := newDriver(t, guest("a", "", 95), guest("b", "", 40))
	ctx := context.Background()
	watch := &orderWatch{t: t, body: body}
	d.Modes().Register(viewmode.Charts, watch)
	mustRefresh(t, d, "dashboard")

	_ = d.SetViewMode(ctx, viewmode.Thresholds)
	_ = d.SetCriterion("cpu", 80)
	if st := display(t, body, "b"); !st.Dimmed || !body.HasClass(ThresholdsClass) {
		t.Fatalf("expected thresholds applied, got %+v", st)
	}
	if err := d.SetViewMode(ctx, viewmode.Charts); err != nil {
		t.Fatalf("SetViewMode charts: %v", err)
	}
	if !watch.entered {
		t.Fatalf("charts effects never ran")
	}
}

func TestAlertsModeMarksRows(t *testing.T) {
	d, _, body := newDriver(t, guest("hot", "", 97), guest("cool", "", 10))
	ctx := context.Background()
	mustRefresh(t, d, "dashboard")
	_ = d.SetViewMode(ctx, viewmode.Alerts)
	if got := body.RowsWithClass(AlertRowClass); len(got) != 1 || got[0] != "hot" {
		t.Fatalf("expected only hot marked, got %v", got)
	}
	_ = d.SetViewMode(ctx, viewmode.Alerts)
	if len(body.RowsWithClass(AlertRowClass)) != 0 || body.HasClass(AlertsClass) {
		t.Fatalf("alert marks must clear on exit")
	}
}

func TestSetSortRepaintsWithoutFetching(t *testing.T) {
	inner := source.NewStatic()
	inner.Set(record.Guests, []record.Record{guest("b", "", 10), guest("a", "", 90), guest("c", "", 50)})
	src := &countingSource{inner: inner}
	d := New(src, []views.View{views.Dashboard}, Options{})
	mustRefresh(t, d, "dashboard")
	body, _ := d.Body("dashboard")

	st, err := d.SetSort("dashboard", "cpu")
	if err != nil {
		t.Fatalf("SetSort: %v", err)
	}
	if st.Field != "cpu" || st.Ascending {
		t.Fatalf("cpu should default to descending, got %+v", st)
	}
	if keys := body.VisibleKeys(); keys[0] != "a" || keys[2] != "b" {
		t.Fatalf("unexpected order %v", keys)
	}
	st, _ = d.SetSort("dashboard", "cpu")
	if !st.Ascending {
		t.Fatalf("second click must toggle direction")
	}
	if src.calls.Load() != 1 {
		t.Fatalf("sorting must not refetch, calls=%d", src.calls.Load())
	}
	if _, err := d.SetSort("dashboard", "cpuu"); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestVisibleChangedOnlyOnChange(t *testing.T) {
	d, src, _ := newDriver(t, guest("a", "", 1))
	l := &recordingListener{}
	d.AddListener(l)
	mustRefresh(t, d, "dashboard")
	mustRefresh(t, d, "dashboard")
	src.Set(record.Guests, []record.Record{guest("a", "", 1), guest("b", "", 2)})
	mustRefresh(t, d, "dashboard")

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.visible) != 2 {
		t.Fatalf("expected 2 visible-set notifications, got %d", len(l.visible))
	}
	if l.redraws != 3 {
		t.Fatalf("expected a redraw per refresh, got %d", l.redraws)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemory()
	src := source.NewStatic()
	d := New(src, []views.View{views.Dashboard}, Options{Prefs: store, Debounce: time.Hour})
	_, _ = d.SetSort("dashboard", "mem")
	_ = d.SetPolicy("dashboard", filter.PolicyHide)
	_ = d.SetCriterion("cpu", 75)
	d.FlushPreferences()

	again := New(src, []views.View{views.Dashboard}, Options{Prefs: store})
	if notices := again.Restore(ctx); len(notices) != 0 {
		t.Fatalf("unexpected notices %v", notices)
	}
	st, _ := again.Status("dashboard")
	if st.Sort.Field != "mem" || st.Sort.Ascending || st.Policy != filter.PolicyHide {
		t.Fatalf("unexpected restored state %+v", st)
	}
	if crit, _ := again.Criteria("dashboard"); len(crit) != 1 || crit[0].Threshold != 75 {
		t.Fatalf("expected restored cpu threshold, got %v", crit)
	}
}

func TestRestoreInvalidPreferencesFallBack(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemory()
	_ = store.Set(ctx, prefs.SortFieldKey("dashboard"), "ghost")
	_ = store.Set(ctx, prefs.PolicyKey("dashboard"), "blur")
	_ = store.Set(ctx, prefs.KeyMode, "graphs")
	d := New(source.NewStatic(), []views.View{views.Dashboard}, Options{Prefs: store})
	notices := d.Restore(ctx)
	if len(notices) != 3 {
		t.Fatalf("expected 3 notices, got %v", notices)
	}
	st, _ := d.Status("dashboard")
	if st.Sort.Field != "name" || st.Policy != filter.PolicyDim {
		t.Fatalf("expected defaults, got %+v", st)
	}
}

func TestMetricsCountResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	src := source.NewStatic()
	d := New(src, []views.View{views.Dashboard}, Options{Metrics: m})
	mustRefresh(t, d, "dashboard")
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "pulseview_refresh_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("refresh counter not registered")
	}
	if m.Latency().N != 1 {
		t.Fatalf("expected one latency sample, got %d", m.Latency().N)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &countingSource{inner: source.NewStatic()}
	d := New(src, []views.View{views.Dashboard, views.Storage}, Options{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if src.calls.Load() < 2 {
		t.Fatalf("expected both views polled, calls=%d", src.calls.Load())
	}
}
