package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pulseview/config"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFilePrefix      = "pulseview-"
	logFileDateLayout  = "2006-01-02"
	maxPartialLogBytes = 16 * 1024
)

// lineSink receives complete log lines.
type lineSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

type writerSink struct {
	w     io.Writer
	stamp bool
}

func (s *writerSink) WriteLine(line string, now time.Time) {
	if s == nil || s.w == nil {
		return
	}
	if s.stamp {
		line = now.UTC().Format(logTimestampLayout) + " " + line
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *writerSink) Close() error { return nil }

// rolloverFunc runs after the file sink switched to a new day. day is the
// UTC date that just ended.
type rolloverFunc func(day time.Time)

// dayFileSink writes one file per UTC day and prunes files older than the
// retention window each time it rolls over.
type dayFileSink struct {
	dir       string
	keepDays  int
	mu        sync.Mutex
	day       string
	file      *os.File
	onRoll    rolloverFunc
	lastErrAt time.Time
}

// Purpose: Create the log directory and prune stale files once at startup.
// Key aspects: The file itself is opened lazily on the first line.
// Upstream: setupLogging.
// Downstream: pruneLogs.
func newDayFileSink(dir string, keepDays int) (*dayFileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if keepDays <= 0 {
		keepDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}
	if err := pruneLogs(dir, time.Now().UTC(), keepDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: prune failed for %s: %v\n", dir, err)
	}
	return &dayFileSink{dir: dir, keepDays: keepDays}, nil
}

// Purpose: Append a timestamped line, rolling to a new file at UTC midnight.
// Key aspects: The rollover callback runs on its own goroutine, outside the
// sink lock and the caller's log.Logger lock, so it may log.
// Upstream: logFanout.Write.
// Downstream: os.File.WriteString, rolloverFunc.
func (s *dayFileSink) WriteLine(line string, now time.Time) {
	if s == nil {
		return
	}
	now = now.UTC()
	day := now.Format(logFileDateLayout)

	var (
		roll  rolloverFunc
		ended time.Time
	)
	s.mu.Lock()
	if s.file == nil || s.day != day {
		roll, ended = s.openLocked(day, now)
	}
	if s.file != nil {
		if _, err := s.file.WriteString(now.Format(logTimestampLayout) + " " + line + "\n"); err != nil {
			s.reportLocked(now, fmt.Errorf("write: %w", err))
		}
	}
	s.mu.Unlock()

	if roll != nil {
		go roll(ended)
	}
}

func (s *dayFileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.day = ""
	return err
}

func (s *dayFileSink) OnRollover(fn rolloverFunc) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.onRoll = fn
	s.mu.Unlock()
}

func (s *dayFileSink) openLocked(day string, now time.Time) (rolloverFunc, time.Time) {
	var (
		roll  rolloverFunc
		ended time.Time
	)
	if s.day != "" && s.day != day {
		if parsed, err := time.ParseInLocation(logFileDateLayout, s.day, time.UTC); err == nil {
			ended = parsed
			roll = s.onRoll
		}
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	path := filepath.Join(s.dir, logFileName(now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.reportLocked(now, fmt.Errorf("open %s: %w", path, err))
		return nil, time.Time{}
	}
	s.file = file
	s.day = day
	if err := pruneLogs(s.dir, now, s.keepDays); err != nil {
		s.reportLocked(now, fmt.Errorf("prune: %w", err))
	}
	return roll, ended
}

// reportLocked prints sink failures to stderr at most once a minute.
func (s *dayFileSink) reportLocked(now time.Time, err error) {
	if !s.lastErrAt.IsZero() && now.Sub(s.lastErrAt) < time.Minute {
		return
	}
	s.lastErrAt = now
	fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
}

// logFanout is the log.Logger output. It splits writes into lines and
// duplicates each to the console sink (stderr or the dashboard log pane) and
// the optional file sink.
type logFanout struct {
	mu      sync.Mutex
	partial []byte
	console lineSink
	file    lineSink
}

// Purpose: Build the fanout from config.
// Key aspects: Always returns a usable writer; a file sink failure is reported
// through the error while console logging keeps working.
// Upstream: main startup.
// Downstream: newDayFileSink.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	f := &logFanout{console: &writerSink{w: console, stamp: true}}
	if !cfg.Enabled {
		return f, nil
	}
	sink, err := newDayFileSink(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return f, err
	}
	f.file = sink
	return f, nil
}

// SetConsole swaps the console sink, e.g. to the dashboard's log pane.
func (f *logFanout) SetConsole(w io.Writer, stamp bool) {
	if f == nil {
		return
	}
	var sink lineSink
	if w != nil {
		sink = &writerSink{w: w, stamp: stamp}
	}
	f.mu.Lock()
	f.console = sink
	f.mu.Unlock()
}

// OnRollover installs fn on the file sink. It is a no-op without file
// logging.
func (f *logFanout) OnRollover(fn rolloverFunc) {
	if f == nil {
		return
	}
	f.mu.Lock()
	sink, ok := f.file.(*dayFileSink)
	f.mu.Unlock()
	if ok {
		sink.OnRollover(fn)
	}
}

func (f *logFanout) Write(p []byte) (int, error) {
	if f == nil {
		return len(p), nil
	}
	f.mu.Lock()
	f.partial = append(f.partial, p...)
	data := f.partial
	var lines []string
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	if len(data) > maxPartialLogBytes {
		if rest := string(bytes.TrimRight(data, "\r")); rest != "" {
			lines = append(lines, rest)
		}
		data = data[:0]
	}
	f.partial = append(f.partial[:0], data...)
	console, file := f.console, f.file
	f.mu.Unlock()

	now := time.Now().UTC()
	for _, line := range lines {
		if console != nil {
			console.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

// FileOnly writes a line to the file sink only. Periodic summaries use it so
// they do not scroll the dashboard.
func (f *logFanout) FileOnly(line string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file != nil {
		file.WriteLine(line, time.Now())
	}
}

func (f *logFanout) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	console, file := f.console, f.file
	f.mu.Unlock()
	if console != nil {
		_ = console.Close()
	}
	if file != nil {
		return file.Close()
	}
	return nil
}

func logFileName(now time.Time) string {
	return logFilePrefix + now.UTC().Format(logFileDateLayout) + ".log"
}

func parseLogFileName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, logFilePrefix) || filepath.Ext(name) != ".log" {
		return time.Time{}, false
	}
	base := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), ".log")
	day, err := time.ParseInLocation(logFileDateLayout, base, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// pruneLogs removes daily files older than keepDays, counting today.
func pruneLogs(dir string, now time.Time, keepDays int) error {
	if keepDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(keepDays - 1))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		day, ok := parseLogFileName(e.Name())
		if ok && day.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}
