package live

import (
	"context"
	"errors"
	"fmt"
	"log"

	"pulseview/config"
	"pulseview/filter"
	"pulseview/prefs"
	"pulseview/sorting"
	"pulseview/viewmode"
)

// SetSort applies a header click on field and repaints view from its last
// known records without refetching.
func (d *Driver) SetSort(view, field string) (sorting.State, error) {
	ts, err := d.table(view)
	if err != nil {
		return sorting.State{}, err
	}
	field = normalizeField(field)
	if !ts.view.HasField(field) {
		return sorting.State{}, unknownField(ts.view, field, ts.view.Fields())
	}
	ts.mu.Lock()
	ts.sort = ts.sort.Click(field, ts.cols)
	st := ts.sort
	var perr error
	if ts.loaded {
		perr = d.paintLocked(ts)
	}
	body := ts.body
	ts.mu.Unlock()
	if perr == nil && body != nil {
		d.modes.Render(view, body)
		d.publish(ts, true)
	}
	d.persist(ts)
	return st, perr
}

// SetCriterion sets a threshold on field for every view that offers it. A
// value <= 0 turns the criterion off.
func (d *Driver) SetCriterion(field string, value float64) error {
	field = normalizeField(field)
	var (
		hit        bool
		candidates []string
	)
	for _, name := range d.order {
		ts := d.tables[name]
		candidates = append(candidates, ts.view.ThresholdFields...)
		if !contains(ts.view.ThresholdFields, field) {
			continue
		}
		hit = true
		ts.mu.Lock()
		ts.filter.SetThreshold(field, value)
		ts.mu.Unlock()
		d.reevaluate(ts, true)
		d.persist(ts)
	}
	if !hit {
		return fmt.Errorf("%w: no view offers a threshold on %q%s", prefs.ErrInvalidPreference, field, suggestion(field, candidates))
	}
	return nil
}

// Criteria returns the thresholds active on view, whether or not Thresholds
// mode is applying them.
func (d *Driver) Criteria(view string) ([]filter.Criterion, error) {
	ts, err := d.table(view)
	if err != nil {
		return nil, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.filter.Criteria(), nil
}

// SetPattern replaces the text patterns on field of view. Comma-separated
// alternatives are OR'ed; an empty expr clears the field.
func (d *Driver) SetPattern(view, field, expr string) error {
	ts, err := d.table(view)
	if err != nil {
		return err
	}
	field = normalizeField(field)
	if !ts.view.HasField(field) {
		return unknownField(ts.view, field, ts.view.Fields())
	}
	ts.mu.Lock()
	ts.filter.RemovePatterns(field)
	for _, alt := range splitAlternatives(expr) {
		ts.filter.AddPattern(field, alt)
	}
	ts.mu.Unlock()
	d.reevaluate(ts, true)
	d.persist(ts)
	return nil
}

// ResetFilters clears every threshold and pattern on every view. Rows hidden
// or dimmed by them are restored unchanged.
func (d *Driver) ResetFilters() {
	for _, name := range d.order {
		ts := d.tables[name]
		ts.mu.Lock()
		ts.filter.Reset()
		ts.mu.Unlock()
		d.reevaluate(ts, true)
		d.persist(ts)
	}
}

// SetPolicy switches between dimming and hiding failing rows. An empty view
// applies the policy to every view.
func (d *Driver) SetPolicy(view string, p filter.Policy) error {
	if !filter.ValidPolicy(string(p)) {
		return fmt.Errorf("%w: policy %q", prefs.ErrInvalidPreference, p)
	}
	targets := d.order
	if view != "" {
		if _, err := d.table(view); err != nil {
			return err
		}
		targets = []string{view}
	}
	for _, name := range targets {
		ts := d.tables[name]
		ts.mu.Lock()
		ts.policy = filter.NormalizePolicy(string(p))
		ts.mu.Unlock()
		d.reevaluate(ts, true)
		d.persist(ts)
	}
	return nil
}

// SetViewMode toggles a view mode.
func (d *Driver) SetViewMode(ctx context.Context, m viewmode.Mode) error {
	return d.modes.Set(ctx, m)
}

// Restore loads persisted sort and filter state for every view, then the
// view mode. Invalid values fall back to defaults and are reported as
// notices, never as failures.
func (d *Driver) Restore(ctx context.Context) []string {
	var notices []string
	note := func(err error) {
		if errors.Is(err, prefs.ErrInvalidPreference) {
			notices = append(notices, err.Error())
		}
	}
	for _, name := range d.order {
		ts := d.tables[name]
		ts.mu.Lock()
		def := ts.sort
		policy := ts.policy
		ts.mu.Unlock()

		field, err := prefs.SortField(ctx, d.store, name, def.Field, ts.view.HasField)
		note(err)
		defAsc := def.Ascending
		if field != def.Field {
			defAsc = ts.cols[field].DefaultAscending
		}
		asc, err := prefs.SortAsc(ctx, d.store, name, defAsc)
		note(err)

		f := filter.NewFilter()
		if raw, ok, _ := d.store.Get(ctx, prefs.FilterKey(name)); ok {
			snap, err := filter.UnmarshalSnapshot(raw)
			if err != nil {
				note(fmt.Errorf("%w: %s filter: %v", prefs.ErrInvalidPreference, name, err))
			} else {
				var dropped []string
				f, policy, dropped = restoreFilter(ts, snap)
				for _, field := range dropped {
					note(fmt.Errorf("%w: %s filter field %q no longer exists", prefs.ErrInvalidPreference, name, field))
				}
			}
		}
		p, err := prefs.Policy(ctx, d.store, name, string(policy))
		note(err)

		ts.mu.Lock()
		ts.sort = sorting.State{Field: field, Ascending: asc}
		ts.filter = f
		ts.policy = filter.NormalizePolicy(p)
		ts.mu.Unlock()
	}
	notice, err := d.modes.Restore(ctx)
	if notice.Degraded {
		notices = append(notices, notice.Message)
	}
	if err != nil {
		log.Printf("Live: restoring view mode: %v", err)
		notices = append(notices, err.Error())
	}
	return notices
}

func restoreFilter(ts *tableState, snap filter.Snapshot) (*filter.Filter, filter.Policy, []string) {
	f, policy := snap.Restore()
	var dropped []string
	for _, c := range f.Criteria() {
		if !contains(ts.view.ThresholdFields, c.Field) {
			f.SetThreshold(c.Field, 0)
			dropped = append(dropped, c.Field)
		}
	}
	for _, p := range append([]filter.Pattern(nil), f.Patterns...) {
		if !ts.view.HasField(p.Field) {
			f.RemovePatterns(p.Field)
			dropped = append(dropped, p.Field)
		}
	}
	return f, policy, dropped
}

// persist schedules a debounced write of view state to the preference store.
func (d *Driver) persist(ts *tableState) {
	ts.save.Schedule(func() {
		ts.mu.Lock()
		st := ts.sort
		snap := filter.Capture(ts.filter, ts.policy)
		ts.mu.Unlock()

		ctx := context.Background()
		name := ts.view.Name
		_ = d.store.Set(ctx, prefs.SortFieldKey(name), st.Field)
		_ = prefs.SetBool(ctx, d.store, prefs.SortAscKey(name), st.Ascending)
		_ = d.store.Set(ctx, prefs.PolicyKey(name), string(snap.Policy))
		raw, err := filter.MarshalSnapshot(snap)
		if err != nil {
			log.Printf("Live: encoding %s filter: %v", name, err)
			return
		}
		_ = d.store.Set(ctx, prefs.FilterKey(name), raw)
	})
}

// FlushPreferences writes any pending preference changes now.
func (d *Driver) FlushPreferences() {
	for _, name := range d.order {
		d.tables[name].save.Flush()
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func suggestion(field string, candidates []string) string {
	if s := config.Suggest(field, candidates); s != "" {
		return fmt.Sprintf(" (did you mean %q?)", s)
	}
	return ""
}
