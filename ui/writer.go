package ui

import (
	"bytes"
	"log"
	"sync"
	"time"
)

const paneWriterMaxBytes = 64 * 1024

// paneWriter splits log output into lines for the log page.
type paneWriter struct {
	sink func(line string)
	// buf holds any partial line; it is bounded so output without a newline
	// cannot grow it forever.
	buf          []byte
	mu           sync.Mutex
	droppedBytes uint64
	lastDropLog  time.Time
}

func (w *paneWriter) Write(p []byte) (int, error) {
	if w == nil || w.sink == nil {
		return len(p), nil
	}
	var (
		logDrop      bool
		dropBytes    uint64
		totalDropped uint64
		lines        []string
	)
	now := time.Now().UTC()

	w.mu.Lock()
	w.buf = append(w.buf, p...)
	if excess := len(w.buf) - paneWriterMaxBytes; excess > 0 {
		w.buf = w.buf[excess:]
		w.droppedBytes += uint64(excess)
		dropBytes = uint64(excess)
		totalDropped = w.droppedBytes
		if w.lastDropLog.IsZero() || now.Sub(w.lastDropLog) >= 30*time.Second {
			w.lastDropLog = now
			logDrop = true
		}
	}
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(w.buf[:idx], "\r")))
		w.buf = w.buf[idx+1:]
	}
	w.mu.Unlock()

	for _, line := range lines {
		w.sink(line)
	}
	if logDrop {
		// Goes through the same writer once a newline arrives.
		log.Printf("UI: log pane dropped %d bytes (total %d) waiting for a newline", dropBytes, totalDropped)
	}
	return len(p), nil
}
