package table

import (
	"errors"
	"testing"
)

type fakeWidget struct{ detached int }

func (w *fakeWidget) Detach() { w.detached++ }

func entries(keys ...string) []Entry {
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Cells: []string{k, "1"}})
	}
	return out
}

func keysOf(rows []RowView) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID.Kind.String()+":"+r.ID.Key)
	}
	return out
}

func TestReconcileIdempotent(t *testing.T) {
	b := NewBody()
	if _, err := b.Reconcile(entries("a", "b", "c"), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	before := b.Mutations()
	stats, err := b.Reconcile(entries("a", "b", "c"), nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats.Total() != 0 || b.Mutations() != before {
		t.Fatalf("expected zero mutations on identical input, got %+v (cum %d -> %d)", stats, before, b.Mutations())
	}
}

func TestReconcileReusesRowAcrossHops(t *testing.T) {
	b := NewBody()
	id := RowID{Kind: RecordRow, Key: "vm-100"}
	if _, err := b.Reconcile(entries("vm-100", "vm-101"), nil); err != nil {
		t.Fatalf("Reconcile A: %v", err)
	}
	first := b.Lookup(id)
	if _, err := b.Reconcile([]Entry{{Key: "vm-100", Cells: []string{"vm-100", "99"}}, {Key: "vm-102"}}, nil); err != nil {
		t.Fatalf("Reconcile B: %v", err)
	}
	if b.Lookup(id) != first {
		t.Fatalf("expected row to be reused after A->B")
	}
	if _, err := b.Reconcile(entries("vm-100", "vm-101"), nil); err != nil {
		t.Fatalf("Reconcile A again: %v", err)
	}
	if b.Lookup(id) != first {
		t.Fatalf("expected row to be reused after B->A")
	}
}

func TestReconcilePatchesOnlyChangedRows(t *testing.T) {
	b := NewBody()
	if _, err := b.Reconcile(entries("a", "b"), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	next := entries("a", "b")
	next[1].Cells = []string{"b", "2"}
	stats, err := b.Reconcile(next, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats != (Stats{Patched: 1}) {
		t.Fatalf("expected one patch, got %+v", stats)
	}
	rows := b.Snapshot()
	if rows[1].Cells[1] != "2" {
		t.Fatalf("expected patched cell, got %v", rows[1].Cells)
	}
}

func TestReconcileRemovesAndInserts(t *testing.T) {
	b := NewBody()
	if _, err := b.Reconcile(entries("a", "b", "c"), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	stats, err := b.Reconcile(entries("a", "c", "d"), nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats.Removed != 1 || stats.Inserted != 1 || stats.Moved != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	got := keysOf(b.Snapshot())
	want := []string{"record:a", "record:c", "record:d"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestReconcileCountsMoves(t *testing.T) {
	b := NewBody()
	if _, err := b.Reconcile(entries("a", "b", "c"), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	stats, err := b.Reconcile(entries("c", "a", "b"), nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats.Moved != 1 || stats.Inserted != 0 || stats.Removed != 0 {
		t.Fatalf("expected a single move, got %+v", stats)
	}
}

func TestReconcileDuplicateKeyFailsFast(t *testing.T) {
	b := NewBody()
	if _, err := b.Reconcile(entries("a"), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	before := b.Mutations()
	_, err := b.Reconcile(entries("x", "x"), nil)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if b.Mutations() != before || b.Len() != 1 {
		t.Fatalf("expected body untouched after duplicate key")
	}
}

func TestReconcileEmptyRendersSingleNoDataRow(t *testing.T) {
	b := NewBody()
	in := []Entry{{Key: "a", Group: "node-a"}, {Key: "b", Group: "node-b"}}
	if _, err := b.Reconcile(in, []string{"node-c"}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := b.Reconcile(nil, []string{"node-c"}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	rows := b.Snapshot()
	if len(rows) != 1 || rows[0].ID.Kind != NoData {
		t.Fatalf("expected exactly one no-data row, got %v", keysOf(rows))
	}
	if !b.SetNoDataMessage("fetch failed") {
		t.Fatalf("expected no-data message to apply")
	}
	if got := b.Snapshot()[0].Attrs["error"]; got != "fetch failed" {
		t.Fatalf("expected error attribute, got %q", got)
	}
}

func TestReconcileGroupHeaders(t *testing.T) {
	b := NewBody()
	in := []Entry{
		{Key: "b1", Group: "Node-B"},
		{Key: "a1", Group: "node-a"},
		{Key: "a2", Group: "node-a"},
	}
	if _, err := b.Reconcile(in, []string{"node-c"}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	got := keysOf(b.Snapshot())
	want := []string{
		"header:node-a", "record:a1", "record:a2",
		"header:Node-B", "record:b1",
		"header:node-c", "group-empty:node-c",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	header := b.Lookup(RowID{Kind: GroupHeader, Key: "node-a"})
	in = append(in, Entry{Key: "0", Group: "aaa"})
	if _, err := b.Reconcile(in, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if b.Lookup(RowID{Kind: GroupHeader, Key: "node-a"}) != header {
		t.Fatalf("expected header to be moved, not recreated")
	}
	if b.Lookup(RowID{Kind: GroupHeader, Key: "node-c"}) != nil {
		t.Fatalf("expected undeclared empty group to be removed")
	}
}

func TestReconcileKeepsWidgetOnDataChange(t *testing.T) {
	b := NewBody()
	if _, err := b.Reconcile(entries("a", "b"), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	w := &fakeWidget{}
	if !b.AttachWidget("a", w) {
		t.Fatalf("expected widget to attach")
	}
	next := entries("b", "a")
	next[1].Cells = []string{"a", "77"}
	if _, err := b.Reconcile(next, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if b.WidgetFor("a") != w || w.detached != 0 {
		t.Fatalf("expected widget to survive a data change")
	}
	if _, err := b.Reconcile(entries("b"), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if w.detached != 1 {
		t.Fatalf("expected widget detach when its row goes away, got %d", w.detached)
	}
}
