package filter

import "testing"

func TestSnapshotRoundTripKeepsCriteria(t *testing.T) {
	f := NewFilter()
	f.SetThreshold("cpu", 80)
	f.AddPattern("name", "web*")
	value, err := MarshalSnapshot(Capture(f, PolicyHide))
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	snap, err := UnmarshalSnapshot(value)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}
	restored, policy := snap.Restore()
	if policy != PolicyHide {
		t.Fatalf("expected hide policy, got %q", policy)
	}
	if restored.String() != f.String() {
		t.Fatalf("expected %q, got %q", f.String(), restored.String())
	}
}

func TestUnmarshalSnapshotRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalSnapshot(""); err == nil {
		t.Fatalf("expected empty snapshot error")
	}
	if _, err := UnmarshalSnapshot("thresholds: [oops"); err == nil {
		t.Fatalf("expected parse error")
	}
	snap, err := UnmarshalSnapshot("policy: sideways\nthresholds:\n  - field: cpu\n    threshold: -5\n")
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}
	f, policy := snap.Restore()
	if policy != PolicyDim || f.Active() {
		t.Fatalf("expected invalid values to fall back, got policy=%q filter=%q", policy, f.String())
	}
}
