package ui

import (
	"sync"
	"time"

	"github.com/rivo/tview"
)

// frameScheduler coalesces redraw requests per target and caps the draw
// rate. A burst of refreshes for one table costs one repaint per frame.
type frameScheduler struct {
	app          *tview.Application
	mu           sync.Mutex
	pending      map[string]func()
	order        []string
	quit         chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	frameTime    time.Duration
	drainTimeout time.Duration
	observeDelay func(time.Duration)
}

func newFrameScheduler(app *tview.Application, targetFPS int, drainTimeout time.Duration, observeDelay func(time.Duration)) *frameScheduler {
	if targetFPS <= 0 {
		targetFPS = 30
	}
	if drainTimeout <= 0 {
		drainTimeout = 100 * time.Millisecond
	}
	return &frameScheduler{
		app:          app,
		pending:      make(map[string]func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		frameTime:    time.Second / time.Duration(targetFPS),
		drainTimeout: drainTimeout,
		observeDelay: observeDelay,
	}
}

func (f *frameScheduler) Start() {
	go f.run()
}

// Stop flushes what is pending, bounded by the drain timeout. It is safe to
// call more than once.
func (f *frameScheduler) Stop() {
	f.stopOnce.Do(func() { close(f.quit) })
	select {
	case <-f.done:
	case <-time.After(f.drainTimeout):
	}
}

// Schedule replaces any pending update for id. Updates run in first-schedule
// order on the next frame.
func (f *frameScheduler) Schedule(id string, fn func()) {
	if f == nil || fn == nil {
		return
	}
	f.mu.Lock()
	if _, ok := f.pending[id]; !ok {
		f.order = append(f.order, id)
	}
	f.pending[id] = fn
	f.mu.Unlock()
}

func (f *frameScheduler) run() {
	defer close(f.done)
	ticker := time.NewTicker(f.frameTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.quit:
			f.flush()
			return
		}
	}
}

func (f *frameScheduler) take() []func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.order) == 0 {
		return nil
	}
	batch := make([]func(), 0, len(f.order))
	for _, id := range f.order {
		batch = append(batch, f.pending[id])
		delete(f.pending, id)
	}
	f.order = f.order[:0]
	return batch
}

// flush hands the batch to the application. Without an application the batch
// runs inline, which is how tests drive it.
func (f *frameScheduler) flush() {
	batch := f.take()
	if len(batch) == 0 {
		return
	}
	queuedAt := time.Now()
	apply := func() {
		for _, fn := range batch {
			fn()
		}
		if f.observeDelay != nil {
			f.observeDelay(time.Since(queuedAt))
		}
	}
	if f.app == nil {
		apply()
		return
	}
	f.app.QueueUpdateDraw(apply)
}
