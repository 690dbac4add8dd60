package chart

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Point is one chart sample.
type Point struct {
	Timestamp int64   `json:"timestamp"` // unix milliseconds
	Value     float64 `json:"value"`
}

// Series maps resource key to metric name to samples.
type Series map[string]map[string][]Point

// Fetcher loads series for keys over a range.
type Fetcher interface {
	Series(ctx context.Context, rangeLabel string, keys []string) (Series, error)
}

// ServerFetcher reads /api/charts from the Pulse server.
type ServerFetcher struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewServerFetcher builds a fetcher with a request timeout.
func NewServerFetcher(baseURL, token string, timeout time.Duration) *ServerFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ServerFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

type chartResponse struct {
	Data        Series `json:"data"`
	NodeData    Series `json:"nodeData"`
	StorageData Series `json:"storageData"`
	Timestamp   int64  `json:"timestamp"`
}

func (f *ServerFetcher) Series(ctx context.Context, rangeLabel string, keys []string) (Series, error) {
	q := url.Values{}
	q.Set("range", normalizeLabel(rangeLabel))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/api/charts?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.Token != "" {
		req.Header.Set("X-API-Token", f.Token)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("charts request: unexpected status %s", resp.Status)
	}
	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode charts: %w", err)
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make(Series, len(keys))
	for _, src := range []Series{body.Data, body.StorageData, body.NodeData} {
		for key, metrics := range src {
			if want[key] {
				if _, dup := out[key]; !dup {
					out[key] = metrics
				}
			}
		}
	}
	return out, nil
}
