package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"pulseview/internal/ratelimit"
	"pulseview/record"
)

const (
	pongWait       = 60 * time.Second
	maxMessageSize = 64 << 20
	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
)

// message is the Pulse websocket envelope. Only state-bearing types are
// decoded further.
type message struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data"`
}

// WebSocket keeps the latest state pushed by the Pulse /ws endpoint.
type WebSocket struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer

	drops *ratelimit.Counter

	mu     sync.RWMutex
	latest *State
	lastAt time.Time
	// stale reports whether the connection dropped since the last frame.
	stale bool
}

// NewWebSocket derives the ws:// or wss:// endpoint from the Pulse base URL.
func NewWebSocket(baseURL, token string) (*WebSocket, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return &WebSocket{
		URL:    u.String(),
		Token:  token,
		Dialer: websocket.DefaultDialer,
		drops:  ratelimit.NewCounter(time.Minute),
	}, nil
}

func (w *WebSocket) Fetch(ctx context.Context, kind record.Kind) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	st := w.latest
	w.mu.RUnlock()
	if st == nil {
		return nil, ErrNoData
	}
	return FromState(st, kind)
}

// Stale reports whether the last frame predates a dropped connection.
func (w *WebSocket) Stale() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stale
}

// LastFrame returns when the latest state frame arrived.
func (w *WebSocket) LastFrame() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastAt
}

// Run connects and reconnects with backoff until ctx is done.
func (w *WebSocket) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.mu.Lock()
		w.stale = true
		w.mu.Unlock()
		if n, ok := w.drops.Inc(); ok {
			log.Printf("Source: websocket disconnected (%v), retrying in %s (%d disconnects total)", err, backoff, n)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (w *WebSocket) session(ctx context.Context) error {
	header := http.Header{}
	if w.Token != "" {
		header.Set("X-API-Token", w.Token)
	}
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, w.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by server")
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := w.handle(data); err != nil {
			log.Printf("Source: dropping websocket frame: %v", err)
		}
	}
}

func (w *WebSocket) handle(data []byte) error {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	switch msg.Type {
	case "initialState", "rawData":
	default:
		return nil
	}
	var st State
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	w.mu.Lock()
	w.latest = &st
	w.lastAt = time.Now()
	w.stale = false
	w.mu.Unlock()
	return nil
}
