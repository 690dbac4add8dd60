package table

import "testing"

func TestApplyDisplayGroupHeaderFollowsMembers(t *testing.T) {
	b := NewBody()
	in := []Entry{{Key: "r1", Group: "node-a"}, {Key: "r2", Group: "node-a"}}
	if _, err := b.Reconcile(in, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	b.ApplyDisplay(map[string]DisplayState{"r1": Shown, "r2": {}})
	if d, _ := b.HeaderDisplay("node-a"); !d.Visible {
		t.Fatalf("expected header visible while one member passes")
	}

	b.ApplyDisplay(map[string]DisplayState{"r1": {}, "r2": {}})
	if d, _ := b.HeaderDisplay("node-a"); d.Visible {
		t.Fatalf("expected header hidden when all members are hidden")
	}

	b.ApplyDisplay(map[string]DisplayState{"r1": Shown, "r2": {}})
	if d, _ := b.HeaderDisplay("node-a"); !d.Visible {
		t.Fatalf("expected header to reappear")
	}
}

func TestApplyDisplayCountsOnlyChanges(t *testing.T) {
	b := NewBody()
	if _, err := b.Reconcile(entries("a", "b"), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	states := map[string]DisplayState{"b": {Visible: true, Dimmed: true}}
	if n := b.ApplyDisplay(states); n != 1 {
		t.Fatalf("expected one change, got %d", n)
	}
	if n := b.ApplyDisplay(states); n != 0 {
		t.Fatalf("expected no changes on repeat, got %d", n)
	}
	if keys := b.VisibleKeys(); len(keys) != 2 {
		t.Fatalf("expected dimmed rows to stay visible, got %v", keys)
	}
}

func TestRowClassesClearCompletely(t *testing.T) {
	b := NewBody()
	if _, err := b.Reconcile(entries("a", "b"), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	b.SetRowClass("a", "alert", true)
	b.SetRowClass("b", "alert", true)
	if n := b.ClearRowClass("alert"); n != 2 {
		t.Fatalf("expected 2 cleared, got %d", n)
	}
	if keys := b.RowsWithClass("alert"); len(keys) != 0 {
		t.Fatalf("expected no rows with class, got %v", keys)
	}
}
