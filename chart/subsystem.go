package chart

import (
	"context"
	"log"
	"sync"
	"time"

	"pulseview/internal/deferred"
	"pulseview/record"
	"pulseview/table"
	"pulseview/viewmode"
)

// ModeClass marks a table while Charts mode is active.
const ModeClass = "charts-mode"

// Tables resolves the mounted bodies by view name.
type Tables interface {
	Body(view string) (*table.Body, bool)
	Views() []string
}

// Subsystem implements the Charts mode effects and consumes the live
// driver's visible-set and redraw hooks.
type Subsystem struct {
	tables  Tables
	fetcher Fetcher
	history *History
	ctrl    *viewmode.Controller
	metric  map[string]string
	clicks  *deferred.Task
	timeout time.Duration

	mu       sync.Mutex
	active   bool
	visible  map[string][]string
	prints   map[string]uint64
	fetches  uint64
	applied  uint64
	discards uint64
	onApply  func()
}

// Options configures a Subsystem.
type Options struct {
	// Metric names the record field charted for each view. Views without an
	// entry get no sparklines.
	Metric map[string]string
	// Quiet is the debounce period for range selection.
	Quiet time.Duration
	// Timeout bounds one series fetch.
	Timeout time.Duration
	// OnApply is called after new series are attached, typically to redraw.
	OnApply func()
}

// NewSubsystem wires the chart subsystem. history may be nil.
func NewSubsystem(tables Tables, fetcher Fetcher, history *History, ctrl *viewmode.Controller, opts Options) *Subsystem {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Subsystem{
		tables:  tables,
		fetcher: fetcher,
		history: history,
		ctrl:    ctrl,
		metric:  opts.Metric,
		clicks:  deferred.New(opts.Quiet),
		timeout: opts.Timeout,
		visible: make(map[string][]string),
		prints:  make(map[string]uint64),
		onApply: opts.OnApply,
	}
}

// Enter is the Charts mode entry effect. It runs under the controller lock
// and so only records state and starts a fetch.
func (s *Subsystem) Enter(_ context.Context, tok viewmode.Token) error {
	for _, view := range s.tables.Views() {
		if body, ok := s.tables.Body(view); ok {
			body.AddClass(ModeClass)
		}
	}
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	go s.fetchAll(tok)
	return nil
}

// Exit detaches every sparkline and removes the mode class. In-flight
// fetches complete but are discarded.
func (s *Subsystem) Exit() {
	s.clicks.Cancel()
	s.mu.Lock()
	s.active = false
	s.prints = make(map[string]uint64)
	s.mu.Unlock()
	for _, view := range s.tables.Views() {
		if body, ok := s.tables.Body(view); ok {
			body.RemoveClass(ModeClass)
			body.DetachWidgets()
		}
	}
}

// VisibleChanged records the visible set of view and refetches when Charts
// mode is active and the set changed.
func (s *Subsystem) VisibleChanged(view string, keys []string) {
	fp := Fingerprint(keys)
	s.mu.Lock()
	s.visible[view] = append([]string(nil), keys...)
	changed := s.prints[view] != fp
	s.prints[view] = fp
	active := s.active
	s.mu.Unlock()
	if active && changed && s.ctrl != nil {
		go s.fetchView(view, s.ctrl.Token())
	}
}

// Redraw refreshes sparklines for view after a completed refresh.
func (s *Subsystem) Redraw(view string) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active && s.ctrl != nil {
		go s.fetchView(view, s.ctrl.Token())
	}
}

// Observe feeds refreshed records into the local history store.
func (s *Subsystem) Observe(view string, recs []record.Record) {
	if s.history == nil {
		return
	}
	if _, ok := s.metric[view]; !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.history.Record(ctx, recs); err != nil {
		log.Printf("Charts: history record failed: %v", err)
	}
}

// SelectRange debounces rapid range clicks into one window change and fetch.
func (s *Subsystem) SelectRange(label string) {
	s.clicks.Schedule(func() {
		if s.ctrl == nil {
			return
		}
		tok, err := s.ctrl.SetWindow(context.Background(), label)
		if err != nil {
			log.Printf("Charts: %v", err)
			return
		}
		s.mu.Lock()
		active := s.active
		s.mu.Unlock()
		if active {
			s.fetchAll(tok)
		}
	})
}

// Stats reports fetches started, results applied, and results discarded.
func (s *Subsystem) Stats() (fetches, applied, discarded uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.applied, s.discards
}

func (s *Subsystem) fetchAll(tok viewmode.Token) {
	for _, view := range s.tables.Views() {
		s.fetchView(view, tok)
	}
}

func (s *Subsystem) fetchView(view string, tok viewmode.Token) {
	metric, ok := s.metric[view]
	if !ok || s.fetcher == nil {
		return
	}
	s.mu.Lock()
	keys := append([]string(nil), s.visible[view]...)
	s.fetches++
	s.mu.Unlock()
	if len(keys) == 0 {
		return
	}
	rangeLabel := ""
	if s.ctrl != nil {
		rangeLabel = s.ctrl.Window().Label
	}

	fp := Fingerprint(keys)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	series, err := s.fetcher.Series(ctx, rangeLabel, keys)
	if err != nil {
		log.Printf("Charts: fetch %s (%s) failed: %v", view, rangeLabel, err)
		return
	}
	if !s.apply(view, metric, tok, fp, series) {
		return
	}
	if s.onApply != nil {
		s.onApply()
	}
}

// apply attaches series to rows if tok is still current and the visible set
// of view still matches fp, the set the fetch was made for. Only keys that
// are visible now get a sparkline. The lock is held while attaching so Exit
// cannot interleave.
func (s *Subsystem) apply(view, metric string, tok viewmode.Token, fp uint64, series Series) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := s.visible[view]
	if !s.active || (s.ctrl != nil && !s.ctrl.Current(tok)) || Fingerprint(visible) != fp {
		s.discards++
		return false
	}
	body, ok := s.tables.Body(view)
	if !ok {
		return false
	}
	current := make(map[string]bool, len(visible))
	for _, k := range visible {
		current[k] = true
	}
	s.applied++
	for key, metrics := range series {
		if !current[key] {
			continue
		}
		points := metrics[metric]
		if w, ok := body.WidgetFor(key).(*Sparkline); ok {
			w.SetPoints(points)
			continue
		}
		sp := &Sparkline{}
		sp.SetPoints(points)
		body.AttachWidget(key, sp)
	}
	return true
}
