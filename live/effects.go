package live

import (
	"context"
	"strings"

	"pulseview/table"
	"pulseview/viewmode"
)

// Table classes set by mode effects.
const (
	ThresholdsClass = "thresholds-mode"
	AlertsClass     = "alerts-mode"
	AlertRowClass   = "alert"
)

// thresholdEffects turns threshold evaluation on for every table. Exit
// re-evaluates synchronously so threshold dimming is gone before the next
// mode begins.
type thresholdEffects struct {
	d *Driver
}

func (e thresholdEffects) Enter(_ context.Context, _ viewmode.Token) error {
	e.d.thresholdsOn.Store(true)
	e.toggle(true)
	return nil
}

func (e thresholdEffects) Exit() {
	e.d.thresholdsOn.Store(false)
	e.toggle(false)
}

func (e thresholdEffects) toggle(on bool) {
	for _, name := range e.d.order {
		ts := e.d.tables[name]
		ts.mu.Lock()
		body := ts.body
		ts.mu.Unlock()
		if body != nil {
			if on {
				body.AddClass(ThresholdsClass)
			} else {
				body.RemoveClass(ThresholdsClass)
			}
		}
		e.d.reevaluate(ts, false)
	}
}

// alertEffects marks rows that reach their view's alert levels.
type alertEffects struct {
	viewmode.ClassEffect
	d *Driver
}

func (e alertEffects) Render(view string, body *table.Body) {
	ts, ok := e.d.tables[view]
	if !ok {
		return
	}
	ts.mu.Lock()
	recs := ts.sorted
	ts.mu.Unlock()
	for _, rec := range recs {
		body.SetRowClass(rec.Key, AlertRowClass, ts.view.Alerting(rec))
	}
}

func (e alertEffects) Enter(ctx context.Context, tok viewmode.Token) error {
	if err := e.ClassEffect.Enter(ctx, tok); err != nil {
		return err
	}
	for _, name := range e.d.order {
		ts := e.d.tables[name]
		ts.mu.Lock()
		body := ts.body
		ts.mu.Unlock()
		if body != nil {
			e.Render(name, body)
		}
	}
	return nil
}

// splitAlternatives splits a comma-separated pattern list.
func splitAlternatives(expr string) []string {
	var out []string
	for _, part := range strings.Split(expr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
