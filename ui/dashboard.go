package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"pulseview/chart"
	"pulseview/filter"
	"pulseview/internal/deferred"
	"pulseview/live"
	"pulseview/viewmode"
)

const (
	logPageName  = "log"
	helpPageName = "help"
	noticeTTL    = 6 * time.Second
	logLines     = 2000
)

// Options configures the dashboard.
type Options struct {
	// Pages lists the views shown, in hotkey order. Empty means every view
	// the driver owns.
	Pages       []string
	TargetFPS   int
	EnableMouse bool
	// SliderQuiet is the debounce period for +/- threshold input.
	SliderQuiet time.Duration
	Charts      *chart.Subsystem
}

// Dashboard is the page-based tview front end: one page per view, a log
// page, and a help overlay.
type Dashboard struct {
	app       *tview.Application
	pages     *tview.Pages
	root      *tview.Flex
	scheduler *frameScheduler
	driver    *live.Driver
	charts    *chart.Subsystem
	metrics   *Metrics

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	ready    chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	tables  map[string]*tablePage
	logs    *logPane
	status  *tview.TextView
	notice  *tview.TextView
	prompt  *tview.InputField
	notices noticeBoard

	pageOrder   []string
	pageIndex   int
	helpShown   bool
	promptShown bool

	slider      *deferred.Task
	sliderMu    sync.Mutex
	sliderField string
	sliderValue float64
}

// New builds the dashboard and starts the tview application.
func New(d *live.Driver, opts Options) *Dashboard {
	dash := build(d, opts)
	dash.start()
	return dash
}

// build wires every page and key binding without starting the application.
func build(d *live.Driver, opts Options) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	app := tview.NewApplication().EnableMouse(opts.EnableMouse)
	ready := make(chan struct{})
	var once sync.Once
	app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		once.Do(func() { close(ready) })
		return false
	})

	metrics := NewMetrics()
	dash := &Dashboard{
		app:     app,
		pages:   tview.NewPages(),
		driver:  d,
		charts:  opts.Charts,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		ready:   ready,
		done:    make(chan struct{}),
		tables:  make(map[string]*tablePage),
		logs:    newLogPane("Log", logLines),
		slider:  deferred.New(opts.SliderQuiet),
	}

	names := opts.Pages
	if len(names) == 0 {
		names = d.Views()
	}
	for _, name := range names {
		v, ok := d.View(name)
		if !ok {
			log.Printf("UI: no view named %q; page skipped", name)
			continue
		}
		body, ok := d.Body(name)
		if !ok {
			continue
		}
		page := newTablePage(v, body, len(dash.pageOrder)+1)
		dash.tables[name] = page
		dash.pages.AddPage(name, page.tbl, true, false)
		dash.pageOrder = append(dash.pageOrder, name)
	}
	dash.pages.AddPage(logPageName, dash.logs, true, false)
	dash.pageOrder = append(dash.pageOrder, logPageName)
	dash.pages.AddPage(helpPageName, buildHelpOverlay(), true, false)

	dash.status = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	dash.notice = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	dash.prompt = tview.NewInputField().SetLabel("Filter: ").SetFieldWidth(40)
	dash.prompt.SetDoneFunc(dash.promptDone)

	dash.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(dash.pages, 0, 1, true).
		AddItem(dash.notice, 1, 0, false).
		AddItem(dash.prompt, 0, 0, false).
		AddItem(dash.status, 1, 0, false).
		AddItem(buildFooter(), 1, 0, false)
	app.SetRoot(dash.root, true)
	app.SetInputCapture(dash.handleKey)

	dash.scheduler = newFrameScheduler(app, opts.TargetFPS, 100*time.Millisecond, metrics.ObserveFrame)
	if len(dash.pageOrder) > 0 {
		dash.showPage(dash.pageOrder[0])
	}
	return dash
}

func (dash *Dashboard) start() {
	dash.scheduler.Start()
	dash.wg.Add(1)
	go dash.tickStatus()
	go func() {
		defer close(dash.done)
		if err := dash.app.Run(); err != nil {
			log.Printf("UI: tview error: %v", err)
		}
	}()
}

// WaitReady blocks until the first frame is drawn.
func (dash *Dashboard) WaitReady() {
	if dash == nil {
		return
	}
	select {
	case <-dash.ready:
	case <-dash.done:
	}
}

// Done is closed when the application exits, including on user quit.
func (dash *Dashboard) Done() <-chan struct{} {
	return dash.done
}

// Stop flushes pending slider input and shuts the application down.
func (dash *Dashboard) Stop() {
	if dash == nil {
		return
	}
	dash.stopOnce.Do(func() {
		dash.cancel()
		dash.slider.Flush()
		dash.scheduler.Stop()
		waited := make(chan struct{})
		go func() {
			dash.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(200 * time.Millisecond):
			log.Printf("UI: dashboard stop timeout, some goroutines may leak")
		}
		dash.app.Stop()
	})
}

// Invalidate schedules a repaint of view. It is the driver's OnRender hook
// and never blocks.
func (dash *Dashboard) Invalidate(view string) {
	if dash == nil {
		return
	}
	page, ok := dash.tables[view]
	if !ok {
		return
	}
	dash.scheduler.Schedule("table:"+view, func() { dash.paint(page) })
	dash.scheduler.Schedule("status", dash.renderStatus)
}

// InvalidateAll schedules a repaint of every table.
func (dash *Dashboard) InvalidateAll() {
	if dash == nil {
		return
	}
	for name := range dash.tables {
		dash.Invalidate(name)
	}
}

// Notify shows msg above the status line for a few seconds.
func (dash *Dashboard) Notify(msg string) {
	if dash == nil || msg == "" {
		return
	}
	dash.notices.Post(msg, noticeTTL)
	dash.scheduler.Schedule("status", dash.renderStatus)
}

// SystemWriter returns a writer that feeds the log page.
func (dash *Dashboard) SystemWriter() io.Writer {
	return &paneWriter{sink: dash.appendLog}
}

func (dash *Dashboard) appendLog(line string) {
	dash.logs.Append(line)
	dash.scheduler.Schedule("log", func() {})
}

func (dash *Dashboard) paint(page *tablePage) {
	st, err := dash.driver.Status(page.view.Name)
	if err != nil {
		return
	}
	charts := page.body.HasClass(chart.ModeClass)
	page.render(st, charts, dash.driver.Modes().Window().Label)
	dash.metrics.Repaint()
}

func (dash *Dashboard) renderStatus() {
	modes := dash.driver.Modes()
	line := ""
	if page := dash.frontTable(); page != nil {
		if st, err := dash.driver.Status(page.view.Name); err == nil {
			line = statusText(st, modes.Mode(), modes.Window().Label, dash.driver.Metrics().Latency())
		}
	} else {
		line = accentText(strings.ToUpper(modes.Mode().String())) + "  ·  log"
	}
	dash.status.SetText(" " + line)
	dash.notice.SetText(" " + tview.Escape(dash.notices.Current()))
}

// tickStatus keeps the notice line and relative ages current between
// refreshes.
func (dash *Dashboard) tickStatus() {
	defer dash.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-dash.ctx.Done():
			return
		case <-ticker.C:
			dash.scheduler.Schedule("status", dash.renderStatus)
		}
	}
}

func (dash *Dashboard) frontName() string {
	name, _ := dash.pages.GetFrontPage()
	if name == helpPageName && len(dash.pageOrder) > 0 {
		return dash.pageOrder[dash.pageIndex]
	}
	return name
}

func (dash *Dashboard) frontTable() *tablePage {
	return dash.tables[dash.frontName()]
}

func (dash *Dashboard) showPage(name string) {
	idx := -1
	for i, page := range dash.pageOrder {
		if page == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	dash.pageIndex = idx
	dash.pages.SwitchToPage(name)
	dash.metrics.PageSwitch()
	if page, ok := dash.tables[name]; ok {
		dash.app.SetFocus(page.tbl)
		dash.paint(page)
	} else {
		dash.app.SetFocus(dash.logs)
	}
	dash.renderStatus()
}

func (dash *Dashboard) cyclePage(delta int) {
	n := len(dash.pageOrder)
	if n == 0 {
		return
	}
	dash.showPage(dash.pageOrder[((dash.pageIndex+delta)%n+n)%n])
}

func (dash *Dashboard) toggleHelp(show bool) {
	dash.helpShown = show
	if show {
		dash.pages.ShowPage(helpPageName)
		dash.pages.SendToFront(helpPageName)
		return
	}
	dash.pages.HidePage(helpPageName)
}

func (dash *Dashboard) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if dash.promptShown {
		return event
	}
	if dash.helpShown {
		if event.Key() == tcell.KeyEsc || event.Key() == tcell.KeyF1 || event.Rune() == 'h' || event.Rune() == '?' {
			dash.toggleHelp(false)
			return nil
		}
	}
	if dash.frontName() == logPageName && dash.logs.HandleScroll(event) {
		return nil
	}

	switch event.Key() {
	case tcell.KeyF1:
		dash.toggleHelp(!dash.helpShown)
		return nil
	case tcell.KeyF5:
		dash.refreshNow()
		return nil
	case tcell.KeyTab:
		dash.cyclePage(1)
		return nil
	case tcell.KeyBacktab:
		dash.cyclePage(-1)
		return nil
	case tcell.KeyCtrlC:
		dash.Stop()
		return nil
	case tcell.KeyLeft, tcell.KeyRight:
		if page := dash.frontTable(); page != nil {
			delta := 1
			if event.Key() == tcell.KeyLeft {
				delta = -1
			}
			page.moveCursor(delta)
			dash.Invalidate(page.view.Name)
			return nil
		}
	case tcell.KeyEnter:
		if page := dash.frontTable(); page != nil {
			dash.sortBy(page, page.cursorField())
			return nil
		}
	}

	r := event.Rune()
	if r >= '1' && r <= '9' {
		if idx := int(r - '1'); idx < len(dash.pageOrder) {
			dash.showPage(dash.pageOrder[idx])
		}
		return nil
	}
	switch r {
	case 'q', 'Q':
		dash.Stop()
	case 'h', '?':
		dash.toggleHelp(!dash.helpShown)
	case 's':
		if page := dash.frontTable(); page != nil {
			page.moveCursor(1)
			dash.sortBy(page, page.cursorField())
		}
	case 'S':
		if page := dash.frontTable(); page != nil {
			if st, err := dash.driver.Status(page.view.Name); err == nil {
				dash.sortBy(page, st.Sort.Field)
			}
		}
	case 'c':
		dash.setMode(viewmode.Charts)
	case 't':
		dash.setMode(viewmode.Thresholds)
	case 'a':
		dash.setMode(viewmode.Alerts)
	case '+', '=':
		dash.nudgeThreshold(1)
	case '-', '_':
		dash.nudgeThreshold(-1)
	case '[':
		dash.stepRange(-1)
	case ']':
		dash.stepRange(1)
	case '/':
		dash.showPrompt()
	case 'r':
		dash.driver.ResetFilters()
		dash.Notify("filters cleared")
	case 'p':
		dash.togglePolicy()
	case 'R':
		dash.refreshNow()
	default:
		return event
	}
	return nil
}

func (dash *Dashboard) sortBy(page *tablePage, field string) {
	st, err := dash.driver.SetSort(page.view.Name, field)
	if err != nil {
		dash.Notify(err.Error())
		return
	}
	page.setCursor(st.Field)
	dash.Invalidate(page.view.Name)
}

func (dash *Dashboard) setMode(m viewmode.Mode) {
	if m == viewmode.Charts && dash.charts == nil {
		dash.Notify("charts are disabled in the configuration")
		return
	}
	if err := dash.driver.SetViewMode(dash.ctx, m); err != nil {
		dash.Notify(err.Error())
	}
	dash.InvalidateAll()
}

// thresholdField picks the slider target: the cursor column when it offers a
// threshold, otherwise the view's first threshold field.
func (dash *Dashboard) thresholdField(page *tablePage) string {
	field := page.cursorField()
	for _, f := range page.view.ThresholdFields {
		if f == field {
			return field
		}
	}
	if len(page.view.ThresholdFields) == 0 {
		return ""
	}
	return page.view.ThresholdFields[0]
}

// nudgeThreshold moves the slider and applies it once input goes quiet.
func (dash *Dashboard) nudgeThreshold(delta int) {
	page := dash.frontTable()
	if page == nil {
		return
	}
	field := dash.thresholdField(page)
	if field == "" {
		dash.Notify(page.view.Title + " has no threshold fields")
		return
	}
	step, max := page.view.SliderStep(field)

	dash.sliderMu.Lock()
	current := dash.sliderValue
	if dash.sliderField != field || !dash.slider.Pending() {
		current = dash.currentThreshold(page.view.Name, field)
	}
	next := stepThreshold(current, delta, step, max)
	dash.sliderField, dash.sliderValue = field, next
	dash.sliderMu.Unlock()

	label := fmt.Sprintf("%s >= %g", field, next)
	if next == 0 {
		label = field + " threshold off"
	}
	if dash.driver.Modes().Mode() != viewmode.Thresholds {
		label += " (press t to apply thresholds)"
	}
	dash.Notify(label)
	dash.slider.Schedule(func() {
		if err := dash.driver.SetCriterion(field, next); err != nil {
			dash.Notify(err.Error())
		}
	})
}

func (dash *Dashboard) currentThreshold(view, field string) float64 {
	crit, err := dash.driver.Criteria(view)
	if err != nil {
		return 0
	}
	for _, c := range crit {
		if c.Field == field {
			return c.Threshold
		}
	}
	return 0
}

func (dash *Dashboard) stepRange(delta int) {
	if dash.charts == nil {
		dash.Notify("charts are disabled in the configuration")
		return
	}
	modes := dash.driver.Modes()
	windows := modes.Windows()
	if len(windows) == 0 {
		return
	}
	idx := 0
	current := modes.Window().Label
	for i, w := range windows {
		if w.Label == current {
			idx = i
			break
		}
	}
	idx += delta
	if idx < 0 || idx >= len(windows) {
		return
	}
	label := windows[idx].Label
	dash.charts.SelectRange(label)
	dash.Notify("chart range " + label)
}

func (dash *Dashboard) togglePolicy() {
	page := dash.frontTable()
	if page == nil {
		return
	}
	st, err := dash.driver.Status(page.view.Name)
	if err != nil {
		return
	}
	next := filter.PolicyHide
	if st.Policy == filter.PolicyHide {
		next = filter.PolicyDim
	}
	if err := dash.driver.SetPolicy(page.view.Name, next); err != nil {
		dash.Notify(err.Error())
		return
	}
	dash.Notify("failing rows: " + string(next))
}

func (dash *Dashboard) refreshNow() {
	go func() {
		err := dash.driver.UpdateView(dash.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			dash.Notify(firstLine(err.Error()))
		}
	}()
}

func (dash *Dashboard) showPrompt() {
	if dash.frontTable() == nil {
		return
	}
	dash.promptShown = true
	dash.prompt.SetText("")
	dash.root.ResizeItem(dash.prompt, 1, 0)
	dash.app.SetFocus(dash.prompt)
}

func (dash *Dashboard) hidePrompt() {
	dash.promptShown = false
	dash.root.ResizeItem(dash.prompt, 0, 0)
	if page := dash.frontTable(); page != nil {
		dash.app.SetFocus(page.tbl)
	}
}

func (dash *Dashboard) promptDone(key tcell.Key) {
	text := dash.prompt.GetText()
	dash.hidePrompt()
	if key != tcell.KeyEnter {
		return
	}
	page := dash.frontTable()
	if page == nil {
		return
	}
	if err := dash.applyFilter(page.view.Name, text); err != nil && !errors.Is(err, errEmptyCommand) {
		dash.Notify(err.Error())
	}
}

// applyFilter runs one prompt line against view.
func (dash *Dashboard) applyFilter(view, line string) error {
	cmd, err := parseFilter(line)
	if err != nil {
		return err
	}
	if cmd.IsPattern {
		return dash.driver.SetPattern(view, cmd.Field, cmd.Pattern)
	}
	if err := dash.driver.SetCriterion(cmd.Field, cmd.Threshold); err != nil {
		return err
	}
	if dash.driver.Modes().Mode() != viewmode.Thresholds {
		dash.Notify(cmd.Field + " threshold saved; press t to apply thresholds")
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " (more in log)"
	}
	return s
}

func buildFooter() *tview.TextView {
	return tview.NewTextView().SetDynamicColors(true).SetText(
		accentText("F1") + "Help  " + accentText("1-9") + "Pages  " + accentText("s") + "Sort  " +
			accentText("c/t/a") + "Modes  " + accentText("+/-") + "Threshold  " + accentText("/") + "Filter  " +
			accentText("r") + "Reset  " + accentText("p") + "Policy  " + accentText("q") + "Quit",
	)
}

func buildHelpOverlay() tview.Primitive {
	help := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	help.SetText(strings.TrimSpace(fmt.Sprintf(`
KEYBOARD HELP

PAGES
  %[1]s1-9%[2]s Jump to page   Tab / Shift+Tab Next / previous   q Quit

TABLES
  Left/Right Move header cursor   Enter Sort by cursor column
  s Sort by next column   S Reverse sort   Up/Down/PgUp/PgDn Scroll

FILTERS
  / Filter prompt: cpu>=80, mem 50, name~web*, name~ (clear)
  +/- Nudge threshold on cursor column   r Reset all filters
  p Toggle dim / hide for failing rows

MODES
  c Charts   t Thresholds   a Alerts   (same key again returns to normal)
  [ / ] Previous / next chart range   R or F5 Refresh now
`, accentTag, accentReset)))
	help.SetBorder(true).SetTitle("Help")
	help.SetBorderColor(uiBorderColor)
	help.SetTitleColor(uiTitleColor)
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(help, 20, 1, true).
			AddItem(nil, 0, 1, false),
			76, 1, true).
		AddItem(nil, 0, 1, false)
}
