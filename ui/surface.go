package ui

import "io"

// Surface is the front end the root program drives. The tview dashboard and
// the headless printer both implement it. Implementations must accept calls
// from the driver's refresh goroutines.
type Surface interface {
	WaitReady()
	Done() <-chan struct{}
	Stop()
	Invalidate(view string)
	InvalidateAll()
	Notify(msg string)
	SystemWriter() io.Writer
}

var (
	_ Surface = (*Dashboard)(nil)
	_ Surface = (*Headless)(nil)
)
