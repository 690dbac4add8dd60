package table

// ApplyDisplay writes derived display states onto record rows and then runs
// the group header pass. Record rows missing from states are shown undimmed.
// A header is hidden exactly when its group has members and every member is
// hidden; it reappears as soon as one member is visible. Empty-group
// placeholders follow their header. Only real changes count as mutations.
func (b *Body) ApplyDisplay(states map[string]DisplayState) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := 0
	type groupVis struct {
		members int
		visible int
	}
	groups := make(map[string]*groupVis)
	for _, r := range b.rows {
		if r.id.Kind != RecordRow {
			continue
		}
		want, ok := states[r.id.Key]
		if !ok {
			want = Shown
		}
		if !want.Visible {
			want.Dimmed = false
		}
		if r.display != want {
			r.display = want
			changed++
		}
		if r.group == "" {
			continue
		}
		g := groups[r.group]
		if g == nil {
			g = &groupVis{}
			groups[r.group] = g
		}
		g.members++
		if want.Visible {
			g.visible++
		}
	}

	for _, r := range b.rows {
		if r.id.Kind != GroupHeader && r.id.Kind != GroupEmpty {
			continue
		}
		want := Shown
		if g := groups[r.id.Key]; g != nil && g.members > 0 && g.visible == 0 {
			want = DisplayState{}
		}
		if r.display != want {
			r.display = want
			changed++
		}
	}
	b.mutations += uint64(changed)
	return changed
}

// DisplayOf returns the display state of the record row for key.
func (b *Body) DisplayOf(key string) (DisplayState, bool) {
	return b.displayOf(RowID{Kind: RecordRow, Key: key})
}

// HeaderDisplay returns the display state of the header for group.
func (b *Body) HeaderDisplay(group string) (DisplayState, bool) {
	return b.displayOf(RowID{Kind: GroupHeader, Key: group})
}

func (b *Body) displayOf(id RowID) (DisplayState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r := b.index[id]
	if r == nil {
		return DisplayState{}, false
	}
	return r.display, true
}
