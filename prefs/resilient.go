package prefs

import (
	"context"
	"log"
	"sync/atomic"

	"pulseview/internal/ratelimit"
)

// Resilient fronts a backend with an in-memory copy. Backend failures are
// logged once per operation kind and answered from memory, so preference
// trouble never interrupts rendering.
type Resilient struct {
	backend  Store
	mem      *Memory
	latch    *ratelimit.Latch
	degraded atomic.Bool
}

// NewResilient wraps backend. A nil backend means memory only.
func NewResilient(backend Store) *Resilient {
	r := &Resilient{backend: backend, mem: NewMemory(), latch: ratelimit.NewLatch()}
	if backend == nil {
		r.degraded.Store(true)
	}
	return r
}

// Degraded reports whether the backend is absent or has failed since the last
// successful operation.
func (r *Resilient) Degraded() bool {
	return r.degraded.Load()
}

// Get never returns an error; it reads through to the backend and falls back
// to the memory copy when the backend fails or lacks the key. A value whose
// backend write failed therefore still reads back.
func (r *Resilient) Get(ctx context.Context, key string) (string, bool, error) {
	if r.backend != nil {
		v, ok, err := r.backend.Get(ctx, key)
		if err == nil {
			r.recovered("get")
			if ok {
				_ = r.mem.Set(ctx, key, v)
				return v, true, nil
			}
		} else {
			r.failed("get", err)
		}
	}
	return r.mem.Get(ctx, key)
}

// Set always succeeds from the caller's perspective.
func (r *Resilient) Set(ctx context.Context, key, value string) error {
	_ = r.mem.Set(ctx, key, value)
	if r.backend == nil {
		return nil
	}
	if err := r.backend.Set(ctx, key, value); err != nil {
		r.failed("set", err)
		return nil
	}
	r.recovered("set")
	return nil
}

// Close releases the backend when it holds resources.
func (r *Resilient) Close() error {
	if c, ok := r.backend.(Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Resilient) failed(op string, err error) {
	r.degraded.Store(true)
	if r.latch.Trip(op) {
		log.Printf("Prefs: %s failed, using in-memory preferences: %v", op, err)
	}
}

func (r *Resilient) recovered(op string) {
	r.degraded.Store(false)
	if n := r.latch.Clear(op); n > 0 {
		log.Printf("Prefs: backend %s recovered after %d suppressed failures", op, n)
	}
}
