// Package live runs the refresh cycle of every mounted table: fetch, sort,
// reconcile, filter, mode rendering, header pass, then notify listeners.
// Cycles for one table never overlap; cycles for different tables are
// independent and a failure in one never reaches another.
package live

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pulseview/chart"
	"pulseview/config"
	"pulseview/filter"
	"pulseview/internal/deferred"
	"pulseview/internal/ratelimit"
	"pulseview/prefs"
	"pulseview/record"
	"pulseview/sorting"
	"pulseview/source"
	"pulseview/table"
	"pulseview/viewmode"
	"pulseview/views"
)

var (
	// ErrDataUnavailable wraps fetch failures and malformed payloads. The
	// previous render is kept; only a table that never loaded shows the error.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrRenderTargetMissing reports a view whose table is not mounted.
	ErrRenderTargetMissing = errors.New("render target missing")
	// ErrConcurrentRefreshSkipped is returned when a refresh for the same
	// table is already in flight. It is a deliberate no-op, not a failure.
	ErrConcurrentRefreshSkipped = errors.New("refresh already in flight")
)

// Listener receives the hooks consumed by the chart subsystem.
type Listener interface {
	VisibleChanged(view string, keys []string)
	Redraw(view string)
}

// Observer receives every successfully fetched record set.
type Observer interface {
	Observe(view string, recs []record.Record)
}

// Defaults are the configured starting sort and policy of a view.
type Defaults struct {
	Sort   sorting.State
	Policy filter.Policy
}

// Options configures a Driver.
type Options struct {
	Interval  time.Duration
	Timeout   time.Duration
	Debounce  time.Duration
	Prefs     prefs.Store
	Modes     *viewmode.Controller
	Metrics   *Metrics
	Listeners []Listener
	Observer  Observer
	Defaults  map[string]Defaults
	// OnRender is called after any table changed, typically to schedule a
	// screen redraw.
	OnRender func(view string)
}

// Driver owns the per-table state of every view.
type Driver struct {
	src       source.Source
	order     []string
	tables    map[string]*tableState
	interval  time.Duration
	timeout   time.Duration
	store     prefs.Store
	modes     *viewmode.Controller
	metrics   *Metrics
	listeners []Listener
	observer  Observer
	onRender  func(view string)
	latch     *ratelimit.Latch

	thresholdsOn atomic.Bool
}

type tableState struct {
	view views.View
	cols sorting.Columns
	busy atomic.Bool
	save *deferred.Task

	mu      sync.Mutex
	body    *table.Body
	records []record.Record
	sorted  []record.Record
	loaded  bool
	sort    sorting.State
	filter  *filter.Filter
	policy  filter.Policy
	lastErr error
	visible uint64
	cycles  uint64
}

// New builds a driver with one table per view, each mounted on a fresh body.
func New(src source.Source, vs []views.View, opts Options) *Driver {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Prefs == nil {
		opts.Prefs = prefs.NewMemory()
	}
	if opts.Modes == nil {
		opts.Modes = viewmode.New(opts.Prefs, nil, "")
	}
	d := &Driver{
		src:       src,
		tables:    make(map[string]*tableState, len(vs)),
		interval:  opts.Interval,
		timeout:   opts.Timeout,
		store:     opts.Prefs,
		modes:     opts.Modes,
		metrics:   opts.Metrics,
		listeners: opts.Listeners,
		observer:  opts.Observer,
		onRender:  opts.OnRender,
		latch:     ratelimit.NewLatch(),
	}
	for _, v := range vs {
		ts := &tableState{
			view:   v,
			cols:   v.SortColumns(),
			body:   v.NewBody(),
			sort:   v.DefaultState(),
			filter: filter.NewFilter(),
			policy: filter.PolicyDim,
			save:   deferred.New(opts.Debounce),
		}
		if def, ok := opts.Defaults[v.Name]; ok {
			if def.Sort.Field != "" && v.HasField(def.Sort.Field) {
				ts.sort = def.Sort
			}
			if def.Policy != "" {
				ts.policy = filter.NormalizePolicy(string(def.Policy))
			}
		}
		d.order = append(d.order, v.Name)
		d.tables[v.Name] = ts
	}
	d.modes.Register(viewmode.Thresholds, thresholdEffects{d: d})
	d.modes.Register(viewmode.Alerts, alertEffects{
		ClassEffect: viewmode.ClassEffect{Class: AlertsClass, RowClass: AlertRowClass, Bodies: d.bodies},
		d:           d,
	})
	return d
}

// AddListener registers a hook consumer. It must be called before Run.
func (d *Driver) AddListener(l Listener) {
	d.listeners = append(d.listeners, l)
}

// SetObserver installs the record observer. It must be called before Run.
func (d *Driver) SetObserver(o Observer) {
	d.observer = o
}

// Views returns the view names in page order.
func (d *Driver) Views() []string {
	return append([]string(nil), d.order...)
}

// View returns the definition of a mounted view.
func (d *Driver) View(name string) (views.View, bool) {
	ts, ok := d.tables[name]
	if !ok {
		return views.View{}, false
	}
	return ts.view, true
}

// Body returns the mounted body of view.
func (d *Driver) Body(view string) (*table.Body, bool) {
	ts, ok := d.tables[view]
	if !ok {
		return nil, false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.body, ts.body != nil
}

// Modes returns the view-mode controller.
func (d *Driver) Modes() *viewmode.Controller {
	return d.modes
}

// Metrics returns the driver metrics, possibly nil.
func (d *Driver) Metrics() *Metrics {
	return d.metrics
}

// Mount attaches body to view, replacing any previous body.
func (d *Driver) Mount(view string, body *table.Body) error {
	ts, err := d.table(view)
	if err != nil {
		return err
	}
	ts.mu.Lock()
	ts.body = body
	ts.visible = 0
	ts.mu.Unlock()
	return nil
}

// Unmount detaches the body of view. Later refreshes of the view fail with
// ErrRenderTargetMissing until it is mounted again.
func (d *Driver) Unmount(view string) {
	if ts, ok := d.tables[view]; ok {
		ts.mu.Lock()
		ts.body = nil
		ts.mu.Unlock()
	}
}

func (d *Driver) bodies() []*table.Body {
	out := make([]*table.Body, 0, len(d.order))
	for _, name := range d.order {
		ts := d.tables[name]
		ts.mu.Lock()
		if ts.body != nil {
			out = append(out, ts.body)
		}
		ts.mu.Unlock()
	}
	return out
}

func (d *Driver) table(view string) (*tableState, error) {
	ts, ok := d.tables[view]
	if !ok {
		if s := config.Suggest(view, d.order); s != "" {
			return nil, fmt.Errorf("unknown view %q (did you mean %q?)", view, s)
		}
		return nil, fmt.Errorf("unknown view %q", view)
	}
	return ts, nil
}

// Refresh runs one cycle for view. A cycle already in flight for the same
// view makes this call return ErrConcurrentRefreshSkipped immediately.
func (d *Driver) Refresh(ctx context.Context, view string) (err error) {
	ts, err := d.table(view)
	if err != nil {
		return err
	}
	if !ts.busy.CompareAndSwap(false, true) {
		d.metrics.observe(view, resultSkipped, 0)
		return ErrConcurrentRefreshSkipped
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh %s: panic: %v", view, r)
			log.Printf("Live: %v", err)
		}
		ts.busy.Store(false)
		d.metrics.observe(view, resultOf(err), time.Since(start))
	}()

	ts.mu.Lock()
	mounted := ts.body != nil
	ts.mu.Unlock()
	if !mounted {
		if d.latch.Trip("missing:" + view) {
			log.Printf("Live: %s table is not mounted; skipping its refresh", view)
		}
		return fmt.Errorf("%s: %w", view, ErrRenderTargetMissing)
	}
	if n := d.latch.Clear("missing:" + view); n > 0 {
		log.Printf("Live: %s table mounted again after %d skipped refreshes", view, n)
	}

	fctx, cancel := context.WithTimeout(ctx, d.timeout)
	recs, ferr := d.src.Fetch(fctx, ts.view.Kind)
	cancel()
	if ferr != nil {
		return d.fetchFailed(ts, ferr)
	}
	if err := d.render(ts, recs); err != nil {
		return d.fetchFailed(ts, err)
	}
	if n := d.latch.Clear("fetch:" + view); n > 0 {
		log.Printf("Live: %s data available again after %d failed refreshes", view, n)
	}
	if d.observer != nil {
		d.observer.Observe(view, recs)
	}
	return nil
}

func (d *Driver) fetchFailed(ts *tableState, cause error) error {
	view := ts.view.Name
	ts.mu.Lock()
	ts.lastErr = cause
	loaded := ts.loaded
	body := ts.body
	ts.mu.Unlock()
	if !loaded && body != nil {
		if _, err := body.Reconcile(nil, nil); err == nil {
			body.SetNoDataMessage("Error loading " + ts.view.Title + ": " + cause.Error())
		}
		d.notify(view)
	}
	if d.latch.Trip("fetch:" + view) {
		log.Printf("Live: %s refresh failed: %v", view, cause)
	}
	return fmt.Errorf("%s: %w: %w", view, ErrDataUnavailable, cause)
}

// render replaces the last-known-good records with recs and repaints. On a
// reconcile error the body and the previous records are left untouched.
func (d *Driver) render(ts *tableState, recs []record.Record) error {
	body, err := d.commit(ts, recs)
	if err != nil {
		return err
	}
	d.modes.Render(ts.view.Name, body)
	d.publish(ts, true)
	return nil
}

// commit paints recs under the table lock. The previous records are restored
// when painting fails or panics.
func (d *Driver) commit(ts *tableState, recs []record.Record) (body *table.Body, err error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	prev := ts.records
	ts.records = recs
	ok := false
	defer func() {
		if !ok {
			ts.records = prev
		}
	}()
	if err := d.paintLocked(ts); err != nil {
		return nil, err
	}
	ok = true
	ts.loaded = true
	ts.lastErr = nil
	ts.cycles++
	return ts.body, nil
}

// paintLocked sorts, reconciles, and applies display states. Scroll offset is
// carried across the reconcile.
func (d *Driver) paintLocked(ts *tableState) error {
	body := ts.body
	if body == nil {
		return ErrRenderTargetMissing
	}
	sorted := ts.sort.Apply(ts.records, ts.cols, ts.view.Grouped)
	scroll := body.Scroll()
	stats, err := body.Reconcile(ts.view.Entries(sorted), nil)
	if err != nil {
		return err
	}
	ts.sorted = sorted
	changed := d.applyLocked(ts)
	body.SetScroll(scroll)
	d.metrics.addMutations(ts.view.Name, stats.Total()+changed)
	return nil
}

// applyLocked evaluates the filter over the sorted records and writes display
// states. Thresholds only apply while Thresholds mode is active; text
// patterns always apply.
func (d *Driver) applyLocked(ts *tableState) int {
	if ts.body == nil {
		return 0
	}
	eff := ts.filter
	if !d.thresholdsOn.Load() && len(eff.Thresholds) > 0 {
		eff = eff.Clone()
		eff.Thresholds = map[string]float64{}
	}
	return ts.body.ApplyDisplay(filter.States(ts.sorted, eff, ts.policy))
}

// reevaluate reapplies the filter without refetching. withMode also runs the
// active mode's decoration; mode effects pass false since they run under the
// controller lock.
func (d *Driver) reevaluate(ts *tableState, withMode bool) {
	ts.mu.Lock()
	if ts.body == nil || !ts.loaded {
		ts.mu.Unlock()
		return
	}
	changed := d.applyLocked(ts)
	body := ts.body
	ts.mu.Unlock()
	d.metrics.addMutations(ts.view.Name, changed)
	if withMode {
		d.modes.Render(ts.view.Name, body)
	}
	d.publish(ts, false)
}

// publish announces visible-set changes and asks listeners to redraw.
func (d *Driver) publish(ts *tableState, redraw bool) {
	ts.mu.Lock()
	body := ts.body
	if body == nil {
		ts.mu.Unlock()
		return
	}
	keys := body.VisibleKeys()
	fp := chart.Fingerprint(keys)
	changed := fp != ts.visible
	ts.visible = fp
	ts.mu.Unlock()

	view := ts.view.Name
	for _, l := range d.listeners {
		if changed {
			l.VisibleChanged(view, keys)
		}
		if redraw {
			l.Redraw(view)
		}
	}
	d.notify(view)
}

func (d *Driver) notify(view string) {
	if d.onRender != nil {
		d.onRender(view)
	}
}

// UpdateView refreshes every view concurrently and joins the failures.
// Skipped cycles are not failures.
func (d *Driver) UpdateView(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, view := range d.order {
		wg.Add(1)
		go func(view string) {
			defer wg.Done()
			if err := d.Refresh(ctx, view); err != nil && !errors.Is(err, ErrConcurrentRefreshSkipped) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(view)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Run polls every view on the configured interval until ctx is done. Each
// view has its own loop.
func (d *Driver) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, view := range d.order {
		wg.Add(1)
		go func(view string) {
			defer wg.Done()
			d.loop(ctx, view)
		}(view)
	}
	wg.Wait()
	for _, view := range d.order {
		d.tables[view].save.Flush()
	}
}

func (d *Driver) loop(ctx context.Context, view string) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		_ = d.Refresh(ctx, view)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Status is a point-in-time summary of one table for the status bar.
type Status struct {
	View    string
	Loaded  bool
	Rows    int
	Visible int
	Sort    sorting.State
	Filter  string
	Policy  filter.Policy
	LastErr error
	Cycles  uint64
	Busy    bool
}

// Status reports the state of view.
func (d *Driver) Status(view string) (Status, error) {
	ts, err := d.table(view)
	if err != nil {
		return Status{}, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	st := Status{
		View:    view,
		Loaded:  ts.loaded,
		Rows:    len(ts.records),
		Sort:    ts.sort,
		Filter:  ts.filter.String(),
		Policy:  ts.policy,
		LastErr: ts.lastErr,
		Cycles:  ts.cycles,
		Busy:    ts.busy.Load(),
	}
	if ts.body != nil {
		st.Visible = len(ts.body.VisibleKeys())
	}
	return st, nil
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrRenderTargetMissing):
		return resultMissing
	default:
		return resultError
	}
}

func unknownField(view views.View, field string, candidates []string) error {
	msg := fmt.Sprintf("%s has no field %q", view.Name, field)
	if s := config.Suggest(field, candidates); s != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", s)
	}
	return errors.New(msg)
}

func normalizeField(field string) string {
	return strings.TrimSpace(field)
}
