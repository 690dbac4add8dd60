package ui

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"pulseview/live"
)

// Headless prints each changed table as plain text. It shares the frame
// scheduler with the dashboard, so bursts collapse into one print per frame.
type Headless struct {
	driver    *live.Driver
	out       io.Writer
	scheduler *frameScheduler
	outMu     sync.Mutex
	done      chan struct{}
	stopOnce  sync.Once
	clock     func() time.Time
}

// NewHeadless starts a headless surface writing to out. fps caps how often a
// table is reprinted.
func NewHeadless(d *live.Driver, out io.Writer, fps int) *Headless {
	h := &Headless{
		driver: d,
		out:    out,
		done:   make(chan struct{}),
		clock:  time.Now,
	}
	h.scheduler = newFrameScheduler(nil, fps, 200*time.Millisecond, nil)
	h.scheduler.Start()
	return h
}

func (h *Headless) WaitReady() {}

func (h *Headless) Done() <-chan struct{} { return h.done }

func (h *Headless) Stop() {
	h.stopOnce.Do(func() {
		h.scheduler.Stop()
		close(h.done)
	})
}

func (h *Headless) Invalidate(view string) {
	h.scheduler.Schedule(view, func() { h.print(view) })
}

func (h *Headless) InvalidateAll() {
	for _, view := range h.driver.Views() {
		h.Invalidate(view)
	}
}

func (h *Headless) Notify(msg string) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	fmt.Fprintf(h.out, "! %s\n", msg)
}

// SystemWriter sends log output to stderr so table output stays clean.
func (h *Headless) SystemWriter() io.Writer { return os.Stderr }

func (h *Headless) print(view string) {
	text, err := Text(h.driver, view)
	if err != nil {
		log.Printf("UI: rendering %s: %v", view, err)
		return
	}
	h.outMu.Lock()
	defer h.outMu.Unlock()
	fmt.Fprintf(h.out, "== %s  %s\n%s\n", view, h.clock().Format(time.TimeOnly), text)
}
