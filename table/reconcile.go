package table

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrDuplicateKey is returned when one input carries the same key twice.
// The body is left untouched.
var ErrDuplicateKey = errors.New("table: duplicate row key")

// Entry is the rendered content of one record row.
type Entry struct {
	Key   string
	Group string
	Cells []string
	Attrs map[string]string
}

// Stats counts the mutations performed by one Reconcile.
type Stats struct {
	Inserted int
	Removed  int
	Moved    int
	Patched  int
}

// Total sums every mutation kind.
func (s Stats) Total() int { return s.Inserted + s.Removed + s.Moved + s.Patched }

type plannedRow struct {
	id    RowID
	group string
	cells []string
	attrs map[string]string
}

// Reconcile aligns the body with entries, which must already be in display
// order. Rows whose key persists are reused and patched in place; rows whose
// key vanished are removed. When any entry carries a group, or groups lists
// groups that must be shown even when empty, a header row precedes each
// group's first member and empty groups render a single placeholder row.
// An empty entries slice renders exactly one no-data row.
func (b *Body) Reconcile(entries []Entry, groups []string) (Stats, error) {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Key]; dup {
			return Stats{}, fmt.Errorf("%w: %q", ErrDuplicateKey, e.Key)
		}
		seen[e.Key] = struct{}{}
	}

	stats, detached := b.reconcile(entries, groups)
	for _, w := range detached {
		w.Detach()
	}
	return stats, nil
}

// reconcile holds the lock only for planning and applying; a panicking header
// renderer releases it on the way out.
func (b *Body) reconcile(entries []Entry, groups []string) (Stats, []Widget) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applyLocked(b.planLocked(entries, groups))
}

func (b *Body) planLocked(entries []Entry, groups []string) []plannedRow {
	if len(entries) == 0 {
		return []plannedRow{{id: RowID{Kind: NoData}, cells: []string{b.noDataText}}}
	}
	grouped := len(groups) > 0
	for i := 0; i < len(entries) && !grouped; i++ {
		grouped = entries[i].Group != ""
	}
	if !grouped {
		plan := make([]plannedRow, 0, len(entries))
		for _, e := range entries {
			plan = append(plan, recordPlan(e))
		}
		return plan
	}

	members := make(map[string][]Entry)
	order := make([]string, 0)
	var ungrouped []Entry
	for _, e := range entries {
		if e.Group == "" {
			ungrouped = append(ungrouped, e)
			continue
		}
		if _, ok := members[e.Group]; !ok {
			order = append(order, e.Group)
		}
		members[e.Group] = append(members[e.Group], e)
	}
	for _, g := range groups {
		if g == "" {
			continue
		}
		if _, ok := members[g]; !ok {
			members[g] = nil
			order = append(order, g)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return strings.ToLower(order[i]) < strings.ToLower(order[j])
	})

	plan := make([]plannedRow, 0, len(entries)+2*len(order))
	for _, e := range ungrouped {
		plan = append(plan, recordPlan(e))
	}
	for _, g := range order {
		list := members[g]
		plan = append(plan, plannedRow{
			id:    RowID{Kind: GroupHeader, Key: g},
			group: g,
			cells: b.headerCells(g, len(list)),
			attrs: map[string]string{"members": strconv.Itoa(len(list))},
		})
		if len(list) == 0 {
			plan = append(plan, plannedRow{
				id:    RowID{Kind: GroupEmpty, Key: g},
				group: g,
				cells: []string{b.emptyText},
			})
			continue
		}
		for _, e := range list {
			plan = append(plan, recordPlan(e))
		}
	}
	return plan
}

func recordPlan(e Entry) plannedRow {
	return plannedRow{
		id:    RowID{Kind: RecordRow, Key: e.Key},
		group: e.Group,
		cells: e.Cells,
		attrs: e.Attrs,
	}
}

func (b *Body) applyLocked(plan []plannedRow) (Stats, []Widget) {
	var stats Stats
	next := make([]*Row, 0, len(plan))
	keep := make(map[*Row]bool, len(plan))
	fresh := make(map[*Row]bool)

	for _, p := range plan {
		r := b.index[p.id]
		if r == nil {
			r = &Row{
				id:      p.id,
				group:   p.group,
				cells:   append([]string(nil), p.cells...),
				attrs:   copyAttrs(p.attrs),
				display: Shown,
			}
			b.index[p.id] = r
			fresh[r] = true
			stats.Inserted++
		} else if r.group != p.group || !equalCells(r.cells, p.cells) || !equalAttrs(r.attrs, p.attrs) {
			// Widgets stay attached; only content is replaced.
			r.group = p.group
			r.cells = append(r.cells[:0:0], p.cells...)
			r.attrs = copyAttrs(p.attrs)
			stats.Patched++
		}
		keep[r] = true
		next = append(next, r)
	}

	var detached []Widget
	for _, r := range b.rows {
		if keep[r] {
			continue
		}
		delete(b.index, r.id)
		if r.widget != nil {
			detached = append(detached, r.widget)
			r.widget = nil
		}
		stats.Removed++
	}

	// insertBefore-style walk: a surviving row counts as moved only when it
	// is not already next in the old order.
	placed := make(map[*Row]bool, len(next))
	j := 0
	for _, r := range next {
		for j < len(b.rows) && (placed[b.rows[j]] || !keep[b.rows[j]]) {
			j++
		}
		if j < len(b.rows) && b.rows[j] == r {
			placed[r] = true
			j++
			continue
		}
		if !fresh[r] {
			stats.Moved++
		}
		placed[r] = true
	}

	b.rows = next
	b.mutations += uint64(stats.Total())
	return stats, detached
}

func copyAttrs(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func equalCells(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalAttrs(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
