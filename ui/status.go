package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rivo/tview"

	"pulseview/live"
	"pulseview/viewmode"
)

// statusText renders the one-line footer for the front table.
func statusText(st live.Status, mode viewmode.Mode, window string, lat live.LatencySnapshot) string {
	parts := []string{accentText(strings.ToUpper(mode.String()))}
	if mode == viewmode.Charts && window != "" {
		parts[0] += " " + window
	}
	switch {
	case !st.Loaded && st.LastErr == nil:
		parts = append(parts, st.View+" loading")
	default:
		parts = append(parts, fmt.Sprintf("%s %d/%d", st.View, st.Visible, st.Rows))
	}
	dir := "▼"
	if st.Sort.Ascending {
		dir = "▲"
	}
	parts = append(parts, "sort "+st.Sort.Field+" "+dir)
	parts = append(parts, st.Filter)
	parts = append(parts, string(st.Policy))
	if lat.N > 0 {
		parts = append(parts, "refresh p50 "+lat.P50.Round(time.Millisecond).String())
	}
	if st.LastErr != nil {
		parts = append(parts, "[red]"+tview.Escape(st.LastErr.Error())+"[-]")
	}
	return strings.Join(parts, "  ·  ")
}

// noticeBoard holds the latest transient notice shown above the footer.
type noticeBoard struct {
	mu    sync.Mutex
	text  string
	until time.Time
	now   func() time.Time
}

func (n *noticeBoard) Post(text string, ttl time.Duration) {
	n.mu.Lock()
	n.text = text
	n.until = n.clock().Add(ttl)
	n.mu.Unlock()
}

// Current returns the notice, or "" once it has expired.
func (n *noticeBoard) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.text == "" || n.clock().After(n.until) {
		return ""
	}
	return n.text
}

func (n *noticeBoard) clock() time.Time {
	if n.now != nil {
		return n.now()
	}
	return time.Now()
}
