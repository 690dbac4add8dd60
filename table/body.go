// Package table holds the retained row model that a view renders from. Rows
// keep their identity across refreshes so that externally owned state attached
// to them (chart widgets, focus, scroll position) survives data changes.
package table

import (
	"sort"
	"sync"
)

// RowKind distinguishes data rows from synthesized rows.
type RowKind uint8

const (
	RecordRow RowKind = iota
	GroupHeader
	GroupEmpty
	NoData
)

func (k RowKind) String() string {
	switch k {
	case RecordRow:
		return "record"
	case GroupHeader:
		return "header"
	case GroupEmpty:
		return "group-empty"
	case NoData:
		return "no-data"
	default:
		return "unknown"
	}
}

// RowID is the composite identity of a row. Record rows use the record key,
// headers and placeholders use the group name, and the no-data row uses "".
type RowID struct {
	Kind RowKind
	Key  string
}

// DisplayState is the derived visibility of a row. It is recomputed after
// every refresh or criteria change and never persisted.
type DisplayState struct {
	Visible bool
	Dimmed  bool
}

// Shown is the default display state of a row nobody has filtered.
var Shown = DisplayState{Visible: true}

// Widget is externally owned state hosted by a row, such as a chart canvas.
// The table never recreates a row that hosts a widget for a data change; it
// calls Detach only when the row itself goes away or the widget is replaced.
type Widget interface {
	Detach()
}

// Row is one retained row. Its fields are only touched under the owning
// Body's lock; readers use Body.Snapshot.
type Row struct {
	id      RowID
	group   string
	cells   []string
	attrs   map[string]string
	classes map[string]bool
	display DisplayState
	widget  Widget
}

// ID returns the row identity.
func (r *Row) ID() RowID { return r.id }

// RowView is an immutable copy of a row for rendering.
type RowView struct {
	ID      RowID
	Group   string
	Cells   []string
	Attrs   map[string]string
	Classes []string
	Display DisplayState
	Widget  Widget
}

// Body is the ordered set of rows for one table.
type Body struct {
	mu        sync.RWMutex
	rows      []*Row
	index     map[RowID]*Row
	classes   map[string]bool
	scroll    int
	mutations uint64

	headerCells func(group string, members int) []string
	emptyText   string
	noDataText  string
}

// Option customizes a Body.
type Option func(*Body)

// WithHeaderCells sets the renderer for group header rows.
func WithHeaderCells(fn func(group string, members int) []string) Option {
	return func(b *Body) {
		if fn != nil {
			b.headerCells = fn
		}
	}
}

// WithPlaceholders sets the text of the empty-group and no-data rows.
func WithPlaceholders(emptyGroup, noData string) Option {
	return func(b *Body) {
		if emptyGroup != "" {
			b.emptyText = emptyGroup
		}
		if noData != "" {
			b.noDataText = noData
		}
	}
}

// NewBody constructs an empty body. Nothing is rendered until the first
// Reconcile.
func NewBody(opts ...Option) *Body {
	b := &Body{
		index:       make(map[RowID]*Row),
		classes:     make(map[string]bool),
		headerCells: func(group string, _ int) []string { return []string{group} },
		emptyText:   "No resources",
		noDataText:  "No data",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mutations is the cumulative count of structural and content changes.
func (b *Body) Mutations() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mutations
}

// Len returns the number of rows, synthesized rows included.
func (b *Body) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rows)
}

// Lookup returns the live row for id. It exists for identity checks; do not
// read row content through it.
func (b *Body) Lookup(id RowID) *Row {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index[id]
}

// Snapshot copies every row in display order.
func (b *Body) Snapshot() []RowView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]RowView, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, viewOf(r))
	}
	return out
}

func viewOf(r *Row) RowView {
	v := RowView{
		ID:      r.id,
		Group:   r.group,
		Cells:   append([]string(nil), r.cells...),
		Display: r.display,
		Widget:  r.widget,
	}
	if len(r.attrs) > 0 {
		v.Attrs = make(map[string]string, len(r.attrs))
		for k, val := range r.attrs {
			v.Attrs[k] = val
		}
	}
	for c, on := range r.classes {
		if on {
			v.Classes = append(v.Classes, c)
		}
	}
	sort.Strings(v.Classes)
	return v
}

// VisibleKeys returns the keys of visible record rows in display order.
func (b *Body) VisibleKeys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.rows))
	for _, r := range b.rows {
		if r.id.Kind == RecordRow && r.display.Visible {
			keys = append(keys, r.id.Key)
		}
	}
	return keys
}

// Scroll returns the stored scroll offset.
func (b *Body) Scroll() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scroll
}

// SetScroll stores the scroll offset, clamped to the row range.
func (b *Body) SetScroll(offset int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	if n := len(b.rows); n > 0 && offset > n-1 {
		offset = n - 1
	}
	b.scroll = offset
}

// AddClass sets a table-level class. It reports whether anything changed.
func (b *Body) AddClass(class string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.classes[class] {
		return false
	}
	b.classes[class] = true
	b.mutations++
	return true
}

// RemoveClass clears a table-level class.
func (b *Body) RemoveClass(class string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.classes[class] {
		return false
	}
	delete(b.classes, class)
	b.mutations++
	return true
}

// HasClass reports whether a table-level class is set.
func (b *Body) HasClass(class string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.classes[class]
}

// SetRowClass toggles a class on one record row.
func (b *Body) SetRowClass(key, class string, on bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.index[RowID{Kind: RecordRow, Key: key}]
	if r == nil || r.classes[class] == on {
		return false
	}
	if on {
		if r.classes == nil {
			r.classes = make(map[string]bool)
		}
		r.classes[class] = true
	} else {
		delete(r.classes, class)
	}
	b.mutations++
	return true
}

// ClearRowClass removes class from every row and returns how many changed.
func (b *Body) ClearRowClass(class string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.rows {
		if r.classes[class] {
			delete(r.classes, class)
			n++
		}
	}
	b.mutations += uint64(n)
	return n
}

// RowsWithClass lists record keys currently carrying class.
func (b *Body) RowsWithClass(class string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	for _, r := range b.rows {
		if r.classes[class] {
			keys = append(keys, r.id.Key)
		}
	}
	return keys
}

// AttachWidget hosts w on the record row for key, detaching any previous
// widget. It reports false when no such row exists.
func (b *Body) AttachWidget(key string, w Widget) bool {
	b.mu.Lock()
	r := b.index[RowID{Kind: RecordRow, Key: key}]
	if r == nil {
		b.mu.Unlock()
		return false
	}
	prev := r.widget
	r.widget = w
	b.mutations++
	b.mu.Unlock()
	if prev != nil && prev != w {
		prev.Detach()
	}
	return true
}

// WidgetFor returns the widget hosted by the record row for key.
func (b *Body) WidgetFor(key string) Widget {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if r := b.index[RowID{Kind: RecordRow, Key: key}]; r != nil {
		return r.widget
	}
	return nil
}

// DetachWidgets removes every hosted widget and returns how many were removed.
func (b *Body) DetachWidgets() int {
	b.mu.Lock()
	var detached []Widget
	for _, r := range b.rows {
		if r.widget != nil {
			detached = append(detached, r.widget)
			r.widget = nil
		}
	}
	b.mutations += uint64(len(detached))
	b.mu.Unlock()
	for _, w := range detached {
		w.Detach()
	}
	return len(detached)
}

// SetNoDataMessage replaces the text of the no-data row, if present, and
// stores msg as its "error" attribute. An empty msg restores the default text.
func (b *Body) SetNoDataMessage(msg string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.index[RowID{Kind: NoData}]
	if r == nil {
		return false
	}
	text := b.noDataText
	attrs := map[string]string(nil)
	if msg != "" {
		text = msg
		attrs = map[string]string{"error": msg}
	}
	cells := []string{text}
	if equalCells(r.cells, cells) && equalAttrs(r.attrs, attrs) {
		return false
	}
	r.cells = cells
	r.attrs = attrs
	b.mutations++
	return true
}
