package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// File stores preferences as a single YAML mapping. Every Set rewrites the
// document through a temp file and rename so a crash never leaves it torn.
type File struct {
	path   string
	mu     sync.Mutex
	values map[string]string
}

// OpenFile loads path if it exists. A missing file starts empty.
func OpenFile(path string) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("prefs: file path is empty")
	}
	f := &File{path: path, values: make(map[string]string)}
	bs, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(bs, &f.values); err != nil {
		return nil, fmt.Errorf("prefs: parse %s: %w", path, err)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.values[key]
	f.values[key] = value
	if err := f.saveLocked(); err != nil {
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *File) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("prefs: ensure directory: %w", err)
	}
	bs, err := yaml.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("prefs: encode: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return fmt.Errorf("prefs: write: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("prefs: replace: %w", err)
	}
	return nil
}
