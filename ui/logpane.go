package ui

import (
	"strconv"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// logPane is a bounded scroll view for the program log. It keeps a ring of
// lines and draws only the rows on screen. Append may be called from any
// goroutine; Draw and HandleScroll run on the UI goroutine.
type logPane struct {
	*tview.Box

	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	dropped uint64

	offset int
	follow bool
	title  string

	rows []string
}

func newLogPane(title string, max int) *logPane {
	if max <= 0 {
		max = 1
	}
	p := &logPane{
		Box:    tview.NewBox().SetBorder(true),
		lines:  make([]string, max),
		follow: true,
		title:  title,
	}
	applyFocusBoxStyle(p.Box, title, false)
	return p
}

func (p *logPane) SetFocused(focused bool) {
	applyFocusBoxStyle(p.Box, p.title, focused)
}

// Append adds one line, evicting the oldest once full.
func (p *logPane) Append(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count < len(p.lines) {
		p.lines[(p.head+p.count)%len(p.lines)] = line
		p.count++
		return
	}
	p.lines[p.head] = line
	p.head = (p.head + 1) % len(p.lines)
	p.dropped++
}

// Lines returns the retained lines, oldest first, followed by an overflow
// marker when lines were evicted.
func (p *logPane) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allLocked()
}

func (p *logPane) allLocked() []string {
	out := make([]string, 0, p.count+1)
	if p.dropped > 0 {
		out = append(out, "... "+strconv.FormatUint(p.dropped, 10)+" earlier lines dropped")
	}
	for i := 0; i < p.count; i++ {
		out = append(out, p.lines[(p.head+i)%len(p.lines)])
	}
	return out
}

func (p *logPane) Draw(screen tcell.Screen) {
	p.Box.DrawForSubclass(screen, p)
	x, y, width, height := p.GetInnerRect()
	if width <= 0 || height <= 0 {
		return
	}
	p.mu.Lock()
	rows := p.windowLocked(height)
	p.mu.Unlock()
	for i, row := range rows {
		tview.Print(screen, " "+tview.Escape(row), x, y+i, width, tview.AlignLeft, lineColor(row))
	}
}

func (p *logPane) windowLocked(height int) []string {
	all := p.allLocked()
	maxOffset := len(all) - height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if p.follow || p.offset > maxOffset {
		p.offset = maxOffset
	}
	end := p.offset + height
	if end > len(all) {
		end = len(all)
	}
	p.rows = append(p.rows[:0], all[p.offset:end]...)
	return p.rows
}

// HandleScroll moves the window. Scrolling to the bottom resumes following.
func (p *logPane) HandleScroll(event *tcell.EventKey) bool {
	_, _, _, height := p.GetInnerRect()
	if height < 1 {
		height = 1
	}
	page := height - 1
	if page < 1 {
		page = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.count
	if p.dropped > 0 {
		total++
	}
	maxOffset := total - height
	if maxOffset < 0 {
		maxOffset = 0
	}
	next := p.offset
	switch event.Key() {
	case tcell.KeyUp:
		next--
	case tcell.KeyDown:
		next++
	case tcell.KeyPgUp:
		next -= page
	case tcell.KeyPgDn:
		next += page
	case tcell.KeyHome:
		next = 0
	case tcell.KeyEnd:
		next = maxOffset
	case tcell.KeyRune:
		switch event.Rune() {
		case 'k':
			next--
		case 'j':
			next++
		default:
			return false
		}
	default:
		return false
	}
	if next < 0 {
		next = 0
	}
	if next > maxOffset {
		next = maxOffset
	}
	p.offset = next
	p.follow = next == maxOffset
	return true
}

func lineColor(line string) tcell.Color {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "panic"), strings.Contains(lower, "error"), strings.Contains(lower, "failed"):
		return uiAlertColor
	case strings.Contains(lower, "unavailable"), strings.Contains(lower, "degraded"), strings.Contains(lower, "skipping"):
		return uiNoDataColor
	default:
		return uiDefaultColor
	}
}
