package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/pebble"
)

const pebbleKeyPrefix = "pref:"

// Pebble stores preferences in an embedded Pebble database. It suits hosts
// that already keep state on local disk and want crash-safe writes.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens or creates the database directory at path.
func OpenPebble(path string) (*Pebble, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("prefs: pebble path is empty")
	}
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("prefs: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("prefs: stat path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("prefs: ensure directory: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("prefs: open pebble: %w", err)
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Get(_ context.Context, key string) (string, bool, error) {
	val, closer, err := p.db.Get([]byte(pebbleKeyPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("prefs: pebble get: %w", err)
	}
	out := string(val)
	_ = closer.Close()
	return out, true, nil
}

func (p *Pebble) Set(_ context.Context, key, value string) error {
	if err := p.db.Set([]byte(pebbleKeyPrefix+key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("prefs: pebble set: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (p *Pebble) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
