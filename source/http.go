package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"pulseview/record"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxStateBytes bounds a single state document.
const maxStateBytes = 64 << 20

// HTTP polls the Pulse /api/state endpoint. Decoded documents are cached for
// MaxAge so that the five views refreshing on the same interval share one
// request.
type HTTP struct {
	BaseURL string
	Token   string
	Client  *http.Client
	MaxAge  time.Duration

	mu      sync.Mutex
	cached  *State
	fetched time.Time
	flight  *stateCall
}

type stateCall struct {
	done chan struct{}
	st   *State
	err  error
}

// NewHTTP builds a polling source. maxAge should be a little below the
// refresh interval.
func NewHTTP(baseURL, token string, timeout, maxAge time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
		MaxAge:  maxAge,
	}
}

func (h *HTTP) Fetch(ctx context.Context, kind record.Kind) ([]record.Record, error) {
	st, err := h.state(ctx)
	if err != nil {
		return nil, err
	}
	return FromState(st, kind)
}

// state returns the cached document or joins a single in-flight request.
func (h *HTTP) state(ctx context.Context) (*State, error) {
	h.mu.Lock()
	if h.cached != nil && time.Since(h.fetched) < h.MaxAge {
		st := h.cached
		h.mu.Unlock()
		return st, nil
	}
	call := h.flight
	if call == nil {
		call = &stateCall{done: make(chan struct{})}
		h.flight = call
		go h.run(call)
	}
	h.mu.Unlock()

	select {
	case <-call.done:
		return call.st, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run performs the shared request. It is detached from every caller's
// context so one table giving up does not fail the others waiting on it.
func (h *HTTP) run(call *stateCall) {
	timeout := 10 * time.Second
	if h.Client != nil && h.Client.Timeout > 0 {
		timeout = h.Client.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	call.st, call.err = h.get(ctx)

	h.mu.Lock()
	if call.err == nil {
		h.cached = call.st
		h.fetched = time.Now()
	}
	h.flight = nil
	h.mu.Unlock()
	close(call.done)
}

func (h *HTTP) get(ctx context.Context) (*State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+"/api/state", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if h.Token != "" {
		req.Header.Set("X-API-Token", h.Token)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("state request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("state request: unexpected status %s", resp.Status)
	}
	return DecodeState(io.LimitReader(resp.Body, maxStateBytes))
}

// DecodeState parses a state document.
func DecodeState(r io.Reader) (*State, error) {
	var st State
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &st, nil
}
