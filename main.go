package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"pulseview/chart"
	"pulseview/config"
	"pulseview/filter"
	"pulseview/live"
	"pulseview/prefs"
	"pulseview/sorting"
	"pulseview/source"
	"pulseview/ui"
	"pulseview/viewmode"
	"pulseview/views"
)

const (
	defaultConfigPath = "data/config"
	envConfigPath     = "PULSEVIEW_CONFIG_PATH"
	summaryInterval   = time.Minute
)

// Version is set at build time.
var Version = "dev"

// Purpose: Report whether stdout is a TTY for UI gating.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main UI selection.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Load configuration from env/default locations.
// Key aspects: Tries the env override first, then the default config dir;
// only a missing directory falls through to the next candidate.
// Upstream: main startup.
// Downstream: config.Load.
func loadConfig() (*config.Config, error) {
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(envConfigPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, defaultConfigPath)

	var lastErr error
	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("unable to load config; tried %s (last error: %v)", strings.Join(candidates, ", "), lastErr)
}

// enabledViews returns the configured pages that are enabled, in page order.
func enabledViews(cfg *config.Config) []views.View {
	var out []views.View
	for _, name := range cfg.UI.Pages {
		if !*cfg.View(name).Enabled {
			continue
		}
		if v, ok := views.ByName(name); ok {
			out = append(out, v)
		}
	}
	return out
}

// viewDefaults converts per-view config into driver defaults. A sort field
// without an explicit direction takes the column's natural first direction.
func viewDefaults(cfg *config.Config, vs []views.View) map[string]live.Defaults {
	out := make(map[string]live.Defaults, len(vs))
	for _, v := range vs {
		vc := cfg.View(v.Name)
		var def live.Defaults
		if field := strings.TrimSpace(vc.SortField); field != "" {
			if !v.HasField(field) {
				log.Printf("Config: views.%s.sort_field %q is not a column; using %s", v.Name, field, v.DefaultSort)
			} else {
				def.Sort = sorting.State{}.Click(field, v.SortColumns())
				if vc.SortAscending != nil {
					def.Sort.Ascending = *vc.SortAscending
				}
			}
		}
		if vc.Policy != "" {
			def.Policy = filter.NormalizePolicy(vc.Policy)
		}
		out[v.Name] = def
	}
	return out
}

// chartMetrics maps each view to its charted field and lists the distinct
// fields the local history samples.
func chartMetrics(vs []views.View) (map[string]string, []string) {
	byView := make(map[string]string)
	seen := make(map[string]bool)
	var fields []string
	for _, v := range vs {
		if v.ChartMetric == "" {
			continue
		}
		byView[v.Name] = v.ChartMetric
		if !seen[v.ChartMetric] {
			seen[v.ChartMetric] = true
			fields = append(fields, v.ChartMetric)
		}
	}
	sort.Strings(fields)
	return byView, fields
}

// Purpose: Program entrypoint; wires config, preferences, data source, live
// driver, chart subsystem, and the selected UI surface.
// Key aspects: The surface is chosen before logging is redirected so startup
// errors still reach the console.
// Upstream: OS process start.
// Downstream: live.Driver.Run and signal-driven shutdown.
func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	fanout, err := setupLogging(cfg.Logging, os.Stderr)
	if err != nil {
		log.Printf("Logging: file logging disabled: %v", err)
	}
	defer fanout.Close()
	log.SetFlags(0)
	log.SetOutput(fanout)
	log.Printf("pulseview v%s: loaded configuration from %s", Version, cfg.LoadedFrom)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := prefs.Open(ctx, prefs.Options{
		Backend:   cfg.Prefs.Backend,
		Path:      cfg.Prefs.Path,
		RedisURL:  cfg.Prefs.RedisURL,
		Namespace: cfg.Prefs.Namespace,
	})
	if err != nil {
		log.Printf("Preferences: %s backend unavailable, keeping preferences in memory: %v", cfg.Prefs.Backend, err)
	}
	defer store.Close()

	src, err := buildSource(ctx, cfg)
	if err != nil {
		log.Fatalf("Source: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	vs := enabledViews(cfg)
	if len(vs) == 0 {
		log.Fatalf("Config: every view is disabled")
	}
	modes := viewmode.New(store, chart.Ranges, cfg.Charts.DefaultRange)

	var surface ui.Surface
	driver := live.New(src, vs, live.Options{
		Interval: time.Duration(cfg.Refresh.IntervalMS) * time.Millisecond,
		Timeout:  time.Duration(cfg.Refresh.CycleTimeoutMS) * time.Millisecond,
		Debounce: time.Duration(cfg.Refresh.DebounceMS) * time.Millisecond,
		Prefs:    store,
		Modes:    modes,
		Metrics:  live.NewMetrics(reg),
		Defaults: viewDefaults(cfg, vs),
		OnRender: func(view string) {
			if surface != nil {
				surface.Invalidate(view)
			}
		},
	})

	var (
		charts  *chart.Subsystem
		history *chart.History
	)
	if cfg.Charts.Enabled {
		charts, history = buildCharts(cfg, driver, modes, vs, func() {
			if surface != nil {
				surface.InvalidateAll()
			}
		})
		if history != nil {
			defer history.Close()
			fanout.OnRollover(func(day time.Time) {
				pruneHistory(history, day)
			})
		}
	}

	surface = buildSurface(cfg, driver, charts)
	surface.WaitReady()
	defer surface.Stop()
	fanout.SetConsole(surface.SystemWriter(), true)

	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen, reg)
	}

	for _, notice := range driver.Restore(ctx) {
		log.Printf("Preferences: %s", notice)
		surface.Notify(notice)
	}
	if store.Degraded() {
		surface.Notify("preferences are not persisted this session")
	}
	surface.InvalidateAll()

	done := make(chan struct{})
	go func() {
		defer close(done)
		driver.Run(ctx)
	}()
	go logSummaries(ctx, driver, fanout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.Printf("Watching %d views of %s every %s", len(vs), cfg.Server.URL, time.Duration(cfg.Refresh.IntervalMS)*time.Millisecond)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case <-surface.Done():
		log.Printf("Dashboard closed")
	}
	log.Println("Shutting down...")
	cancel()
	<-done
	driver.FlushPreferences()
	log.Println("pulseview stopped")
}

// Purpose: Pick the data source for the configured transport.
// Key aspects: The websocket source reconnects in the background until ctx
// ends; the poll source caches one state document per refresh round.
// Upstream: main.
// Downstream: source.NewHTTP, source.NewWebSocket.
func buildSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	timeout := time.Duration(cfg.Server.TimeoutMS) * time.Millisecond
	switch cfg.Server.Transport {
	case "websocket":
		ws, err := source.NewWebSocket(cfg.Server.URL, cfg.Server.Token)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := ws.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Source: websocket stopped: %v", err)
			}
		}()
		return ws, nil
	default:
		maxAge := time.Duration(cfg.Refresh.IntervalMS) * time.Millisecond / 2
		return source.NewHTTP(cfg.Server.URL, cfg.Server.Token, timeout, maxAge), nil
	}
}

// Purpose: Wire the chart subsystem as the Charts mode effect and as the
// driver's visible-set listener.
// Key aspects: A history store that fails to open leaves charts on the server
// fetcher rather than disabling them.
// Upstream: main.
// Downstream: chart.NewSubsystem, viewmode.Controller.Register.
func buildCharts(cfg *config.Config, driver *live.Driver, modes *viewmode.Controller, vs []views.View, onApply func()) (*chart.Subsystem, *chart.History) {
	metric, fields := chartMetrics(vs)
	timeout := time.Duration(cfg.Server.TimeoutMS) * time.Millisecond

	var (
		fetcher chart.Fetcher = chart.NewServerFetcher(cfg.Server.URL, cfg.Server.Token, timeout)
		history *chart.History
	)
	if cfg.Charts.Source == "local" {
		h, err := chart.OpenHistory(cfg.Charts.HistoryDB, time.Duration(cfg.Charts.RetentionHours)*time.Hour, fields)
		if err != nil {
			log.Printf("Charts: local history unavailable, using server charts: %v", err)
		} else {
			history = h
			fetcher = h
		}
	}
	sub := chart.NewSubsystem(driver, fetcher, history, modes, chart.Options{
		Metric:  metric,
		Quiet:   time.Duration(cfg.Refresh.DebounceMS) * time.Millisecond,
		Timeout: timeout,
		OnApply: onApply,
	})
	modes.Register(viewmode.Charts, sub)
	driver.AddListener(sub)
	if history != nil {
		driver.SetObserver(sub)
	}
	return sub, history
}

// Purpose: Choose the interactive dashboard or the headless printer.
// Key aspects: tview needs a terminal; without one the headless surface
// prints text snapshots instead.
// Upstream: main.
// Downstream: ui.New, ui.NewHeadless.
func buildSurface(cfg *config.Config, driver *live.Driver, charts *chart.Subsystem) ui.Surface {
	mode := cfg.UI.Mode
	if mode == "tview" && !isStdoutTTY() {
		log.Printf("UI: tview requires an interactive console; falling back to headless")
		mode = "headless"
	}
	if mode == "headless" {
		return ui.NewHeadless(driver, os.Stdout, cfg.UI.TargetFPS)
	}
	return ui.New(driver, ui.Options{
		Pages:       cfg.UI.Pages,
		TargetFPS:   cfg.UI.TargetFPS,
		EnableMouse: cfg.UI.EnableMouse,
		SliderQuiet: time.Duration(cfg.Refresh.DebounceMS) * time.Millisecond,
		Charts:      charts,
	})
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("Metrics: serving /metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics: listener stopped: %v", err)
	}
}

// pruneHistory runs on log rollover so chart samples age out once a day.
func pruneHistory(h *chart.History, day time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := h.Prune(ctx)
	if err != nil {
		log.Printf("Charts: history prune after %s failed: %v", day.Format(logFileDateLayout), err)
		return
	}
	if n > 0 {
		log.Printf("Charts: pruned %s history samples", humanize.Comma(n))
	}
}

// logSummaries writes one line per view to the log file every minute. The
// lines skip the console so the dashboard log pane stays readable.
func logSummaries(ctx context.Context, driver *live.Driver, fanout *logFanout) {
	ticker := time.NewTicker(summaryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, line := range summaryLines(driver) {
				fanout.FileOnly(line)
			}
		}
	}
}

func summaryLines(driver *live.Driver) []string {
	lat := driver.Metrics().Latency()
	lines := make([]string, 0, len(driver.Views())+1)
	for _, view := range driver.Views() {
		st, err := driver.Status(view)
		if err != nil {
			continue
		}
		state := "ok"
		if st.LastErr != nil {
			state = "error: " + st.LastErr.Error()
		} else if !st.Loaded {
			state = "loading"
		}
		lines = append(lines, fmt.Sprintf("Summary: %s rows=%d visible=%d cycles=%s %s",
			view, st.Rows, st.Visible, humanize.Comma(int64(st.Cycles)), state))
	}
	if lat.N > 0 {
		lines = append(lines, fmt.Sprintf("Summary: refresh p50=%s p99=%s over %d cycles",
			lat.P50.Round(time.Millisecond), lat.P99.Round(time.Millisecond), lat.N))
	}
	return lines
}
