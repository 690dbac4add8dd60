// Package prefs persists small user preferences (view mode, sort column,
// chart window, filter state) across sessions. Backends are interchangeable;
// wrap any of them in Resilient so storage trouble never reaches the UI.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidPreference reports a stored value that failed validation. Callers
// fall back to a default and may surface it as a notice.
var ErrInvalidPreference = errors.New("invalid preference")

// Store is a string key/value preference backend.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Closer is implemented by backends that hold OS resources.
type Closer interface {
	Close() error
}

// Memory is a process-local Store. The zero value is ready to use.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend   string // memory | file | pebble | redis
	Path      string
	RedisURL  string
	Namespace string
}

// Open builds the configured backend wrapped in Resilient. A backend that
// cannot be opened degrades to memory; the returned error is informational.
func Open(ctx context.Context, opts Options) (*Resilient, error) {
	var (
		backend Store
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "memory":
		backend = NewMemory()
	case "file":
		backend, err = OpenFile(opts.Path)
	case "pebble":
		backend, err = OpenPebble(opts.Path)
	case "redis":
		backend, err = OpenRedis(ctx, opts.RedisURL, opts.Namespace)
	default:
		err = fmt.Errorf("prefs: unknown backend %q", opts.Backend)
	}
	if err != nil {
		return NewResilient(nil), err
	}
	return NewResilient(backend), nil
}
