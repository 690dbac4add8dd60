// Package sqliteutil guards the chart history database. A corrupt or wedged
// file is moved aside before the real open so pulseview starts with an empty
// history instead of stalling or failing.
package sqliteutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const quarantineStamp = "20060102T150405Z"

var sidecarSuffixes = []string{"-wal", "-shm", "-journal"}

// Options tunes Check.
type Options struct {
	// Role names the database in log lines, e.g. "chart history".
	Role    string
	Timeout time.Duration
	// Keep bounds how many quarantined copies are retained; older ones are
	// deleted. Zero keeps 3.
	Keep int
	Logf func(string, ...any)
}

// Report is the outcome of Check.
type Report struct {
	Healthy bool
	// MovedTo is the quarantine path of the main file, empty when healthy.
	MovedTo string
	Elapsed time.Duration
	// Cause is the checkpoint or integrity error that triggered quarantine.
	Cause error
}

// Check runs a bounded WAL checkpoint and quick_check on an existing
// database. On failure the file and its sidecars are renamed with a
// timestamped .bad- suffix. A missing file is healthy.
func Check(ctx context.Context, path string, opts Options) (Report, error) {
	if strings.TrimSpace(path) == "" {
		return Report{}, errors.New("sqlite check: empty path")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Keep <= 0 {
		opts.Keep = 3
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	if opts.Role == "" {
		opts.Role = filepath.Base(path)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Report{Healthy: true}, nil
	}

	start := time.Now()
	present := presentFiles(path)
	cause, err := probe(ctx, path, opts.Timeout)
	rep := Report{Elapsed: time.Since(start), Cause: cause}
	if err != nil {
		return rep, fmt.Errorf("sqlite check %s: %w", opts.Role, err)
	}
	if cause == nil {
		rep.Healthy = true
		return rep, nil
	}

	moved, err := quarantine(path, present, time.Now().UTC())
	if err != nil {
		return rep, fmt.Errorf("sqlite check %s: quarantine: %w (cause: %v)", opts.Role, err, cause)
	}
	rep.MovedTo = moved
	opts.Logf("SQLite: %s database failed its check (%v); moved to %s", opts.Role, cause, moved)
	if n := pruneQuarantined(path, opts.Keep); n > 0 {
		opts.Logf("SQLite: removed %d old %s quarantine copies", n, opts.Role)
	}
	return rep, nil
}

// probe returns the failed check as cause. err is reserved for conditions
// that must stop startup, such as the check itself timing out.
func probe(ctx context.Context, path string, timeout time.Duration) (cause, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", timeout.Milliseconds())); err != nil {
		return err, nil
	}
	if _, err := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)"); err != nil {
		cause = fmt.Errorf("checkpoint: %w", err)
	} else if err := quickCheck(ctx, db); err != nil {
		cause = fmt.Errorf("quick_check: %w", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return cause, fmt.Errorf("timed out after %s", timeout)
	}
	return cause, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("reported %q", status)
		}
	}
	return rows.Err()
}

func presentFiles(path string) []string {
	var out []string
	for _, p := range append([]string{path}, sidecarPaths(path)...) {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func sidecarPaths(path string) []string {
	out := make([]string, len(sidecarSuffixes))
	for i, s := range sidecarSuffixes {
		out[i] = path + s
	}
	return out
}

// quarantine renames every file that existed before the probe. Sidecars the
// checkpoint removed in the meantime are skipped.
func quarantine(path string, present []string, now time.Time) (string, error) {
	suffix := ".bad-" + now.Format(quarantineStamp)
	for _, p := range present {
		if err := os.Rename(p, p+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	// The open itself may have created sidecars for a file that was never a
	// database.
	for _, p := range sidecarPaths(path) {
		_ = os.Remove(p)
	}
	return path + suffix, nil
}

// pruneQuarantined keeps the newest keep quarantined main files and their
// sidecars, returning how many main files were removed.
func pruneQuarantined(path string, keep int) int {
	matches, err := filepath.Glob(path + ".bad-*")
	if err != nil || len(matches) <= keep {
		return 0
	}
	sort.Strings(matches)
	removed := 0
	for _, old := range matches[:len(matches)-keep] {
		if err := os.Remove(old); err == nil {
			removed++
		}
		stamp := strings.TrimPrefix(old, path)
		for _, s := range sidecarPaths(path) {
			_ = os.Remove(s + stamp)
		}
	}
	return removed
}
