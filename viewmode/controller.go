package viewmode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"pulseview/prefs"
	"pulseview/table"
)

// Token identifies one activation of a mode or window. Asynchronous work
// captures a token when it starts and applies its result only while the
// token is still current.
type Token uint64

// Effects are the side effects of a non-Normal mode. Exit must fully undo
// Enter before returning. Both run while the controller is locked and must
// not call back into it.
type Effects interface {
	Enter(ctx context.Context, tok Token) error
	Exit()
}

// Renderer is implemented by Effects that also decorate a table after each
// refresh while their mode is active.
type Renderer interface {
	Render(view string, body *table.Body)
}

// Notice describes a degraded restore: a stored value was replaced by a
// default or the nearest valid option.
type Notice struct {
	Degraded bool
	Message  string
}

// Controller is the view-mode state machine. Transitions are serialized;
// rendering hooks run under a shared lock so they never interleave with a
// transition.
type Controller struct {
	mu      sync.RWMutex
	mode    Mode
	window  Option
	effects map[Mode]Effects

	windows Options
	store   prefs.Store
	gen     atomic.Uint64
}

// New builds a controller in Normal mode. windows may be empty when the
// charts window is not in use; defaultWindow must then be empty too.
func New(store prefs.Store, windows Options, defaultWindow string) *Controller {
	if store == nil {
		store = prefs.NewMemory()
	}
	c := &Controller{
		effects: make(map[Mode]Effects),
		windows: windows,
		store:   store,
	}
	if opt, ok := windows.Find(defaultWindow); ok {
		c.window = opt
	} else if len(windows) > 0 {
		c.window = windows[0]
	}
	return c
}

// Register installs the effects for a non-Normal mode.
func (c *Controller) Register(m Mode, e Effects) {
	if m == Normal || e == nil {
		return
	}
	c.mu.Lock()
	c.effects[m] = e
	c.mu.Unlock()
}

// Mode returns the active mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Window returns the selected auxiliary window.
func (c *Controller) Window() Option {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window
}

// Windows returns the selectable windows.
func (c *Controller) Windows() Options {
	return c.windows
}

// Token returns the current generation.
func (c *Controller) Token() Token {
	return Token(c.gen.Load())
}

// Current reports whether tok still matches the active generation.
func (c *Controller) Current(tok Token) bool {
	return Token(c.gen.Load()) == tok
}

// Restore loads the persisted mode and window, enters the mode, and reports
// any value that had to be replaced.
func (c *Controller) Restore(ctx context.Context) (Notice, error) {
	var notice Notice
	name, err := prefs.Mode(ctx, c.store, Normal.String(), ValidModeName)
	if errors.Is(err, prefs.ErrInvalidPreference) {
		notice = Notice{Degraded: true, Message: fmt.Sprintf("stored view mode not available, using %s", Normal)}
		_ = c.store.Set(ctx, prefs.KeyMode, Normal.String())
	}
	mode, _ := ParseMode(name)

	if len(c.windows) > 0 {
		label, _, _ := c.store.Get(ctx, prefs.KeyChartRange)
		if label != "" {
			if opt, ok := c.windows.Find(label); ok {
				c.mu.Lock()
				c.window = opt
				c.mu.Unlock()
			} else {
				opt := c.fallbackWindow(label)
				c.mu.Lock()
				c.window = opt
				c.mu.Unlock()
				_ = c.store.Set(ctx, prefs.KeyChartRange, opt.Label)
				msg := fmt.Sprintf("time range %q no longer available, showing %s", label, opt.Label)
				if notice.Message != "" {
					msg = notice.Message + "; " + msg
				}
				notice = Notice{Degraded: true, Message: msg}
			}
		}
	}

	if mode != Normal {
		if err := c.transition(ctx, mode); err != nil {
			return notice, err
		}
	}
	if notice.Degraded {
		log.Printf("ViewMode: %s", notice.Message)
	}
	return notice, nil
}

func (c *Controller) fallbackWindow(label string) Option {
	if span, err := ParseSpan(label); err == nil {
		return c.windows.Nearest(span)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window
}

// Set handles a user toggle. Selecting the active non-Normal mode returns to
// Normal. The previous mode is fully exited before the next one is entered.
func (c *Controller) Set(ctx context.Context, m Mode) error {
	c.mu.Lock()
	target := m
	if c.mode == m {
		if m == Normal {
			c.mu.Unlock()
			return nil
		}
		target = Normal
	}
	err := c.transitionLocked(ctx, target)
	mode := c.mode
	c.mu.Unlock()
	_ = c.store.Set(ctx, prefs.KeyMode, mode.String())
	return err
}

func (c *Controller) transition(ctx context.Context, target Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(ctx, target)
}

func (c *Controller) transitionLocked(ctx context.Context, target Mode) error {
	if prev, ok := c.effects[c.mode]; ok && c.mode != Normal {
		prev.Exit()
	}
	tok := Token(c.gen.Add(1))
	c.mode = target
	if target == Normal {
		return nil
	}
	next, ok := c.effects[target]
	if !ok {
		return nil
	}
	if err := next.Enter(ctx, tok); err != nil {
		next.Exit()
		c.mode = Normal
		c.gen.Add(1)
		return fmt.Errorf("enter %s mode: %w", target, err)
	}
	return nil
}

// SetWindow selects a window by label, invalidating in-flight work tied to
// the previous one.
func (c *Controller) SetWindow(ctx context.Context, label string) (Token, error) {
	opt, ok := c.windows.Find(label)
	if !ok {
		return c.Token(), fmt.Errorf("%w: unknown time range %q", prefs.ErrInvalidPreference, label)
	}
	c.mu.Lock()
	c.window = opt
	tok := Token(c.gen.Add(1))
	c.mu.Unlock()
	_ = c.store.Set(ctx, prefs.KeyChartRange, opt.Label)
	return tok, nil
}

// Render runs the active mode's table decoration, if any.
func (c *Controller) Render(view string, body *table.Body) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mode == Normal {
		return
	}
	if r, ok := c.effects[c.mode].(Renderer); ok {
		r.Render(view, body)
	}
}

// ClassEffect toggles a body-level class on every registered table. It is the
// building block for modes whose only structural effect is styling.
type ClassEffect struct {
	Class  string
	Bodies func() []*table.Body
	// RowClass, when set, is cleared from every row on Exit.
	RowClass string
}

func (e ClassEffect) Enter(_ context.Context, _ Token) error {
	for _, b := range e.Bodies() {
		b.AddClass(e.Class)
	}
	return nil
}

func (e ClassEffect) Exit() {
	for _, b := range e.Bodies() {
		b.RemoveClass(e.Class)
		if e.RowClass != "" {
			b.ClearRowClass(e.RowClass)
		}
	}
}
