package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pulseview/config"
	"pulseview/filter"
	"pulseview/live"
	"pulseview/record"
	"pulseview/source"
	"pulseview/views"
)

func writeConfigDir(t *testing.T, text string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pulseview.yaml"), []byte(text), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadConfigPrefersEnvPath(t *testing.T) {
	dir := writeConfigDir(t, "server:\n  url: http://pve.lan:7655\n")
	t.Setenv(envConfigPath, dir)
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.URL != "http://pve.lan:7655" || cfg.LoadedFrom != dir {
		t.Fatalf("loaded %q from %q", cfg.Server.URL, cfg.LoadedFrom)
	}
}

func TestLoadConfigReportsInvalidFile(t *testing.T) {
	dir := writeConfigDir(t, "ui:\n  mode: curses\n")
	t.Setenv(envConfigPath, dir)
	_, err := loadConfig()
	if err == nil || !strings.Contains(err.Error(), "ui.mode") {
		t.Fatalf("expected ui.mode validation error, got %v", err)
	}
}

func TestEnabledViewsFollowPageOrder(t *testing.T) {
	dir := writeConfigDir(t, "ui:\n  pages: [storage, dashboard, pbs]\nviews:\n  pbs:\n    enabled: false\n")
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	vs := enabledViews(cfg)
	if len(vs) != 2 || vs[0].Name != "storage" || vs[1].Name != "dashboard" {
		names := make([]string, len(vs))
		for i, v := range vs {
			names[i] = v.Name
		}
		t.Fatalf("enabled views = %v", names)
	}
}

func TestViewDefaults(t *testing.T) {
	dir := writeConfigDir(t, `views:
  dashboard:
    sort_field: cpu
    policy: HIDE
  storage:
    sort_field: usage
    sort_ascending: true
  snapshots:
    sort_field: bogus
`)
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defs := viewDefaults(cfg, []views.View{views.Dashboard, views.Storage, views.Snapshots})

	if d := defs["dashboard"]; d.Sort.Field != "cpu" || d.Sort.Ascending || d.Policy != filter.PolicyHide {
		t.Fatalf("dashboard defaults = %+v", d)
	}
	if d := defs["storage"]; d.Sort.Field != "usage" || !d.Sort.Ascending {
		t.Fatalf("storage defaults = %+v", d)
	}
	if d := defs["snapshots"]; d.Sort.Field != "" {
		t.Fatalf("unknown sort field should be ignored, got %+v", d)
	}
}

func TestChartMetrics(t *testing.T) {
	byView, fields := chartMetrics([]views.View{views.Dashboard, views.Storage, views.Snapshots})
	if byView["dashboard"] != "cpu" || byView["storage"] != "usage" {
		t.Fatalf("metric map = %v", byView)
	}
	if _, ok := byView["snapshots"]; ok {
		t.Fatalf("snapshots has no chart metric")
	}
	if strings.Join(fields, ",") != "cpu,usage" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestSummaryLines(t *testing.T) {
	src := source.NewStatic()
	src.Set(record.Guests, []record.Record{
		{Key: "qemu/100", Group: "node-a", Fields: map[string]record.Value{"name": record.Str("web"), "cpu": record.Num(12)}},
		{Key: "qemu/101", Group: "node-a", Fields: map[string]record.Value{"name": record.Str("db"), "cpu": record.Num(40)}},
	})
	d := live.New(src, []views.View{views.Dashboard, views.Storage}, live.Options{Metrics: live.NewMetrics(nil)})
	if err := d.Refresh(context.Background(), "dashboard"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	lines := summaryLines(d)
	if len(lines) != 3 {
		t.Fatalf("summary lines = %q", lines)
	}
	if !strings.Contains(lines[0], "dashboard rows=2 visible=2 cycles=1 ok") {
		t.Fatalf("dashboard line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "storage rows=0 visible=0 cycles=0 loading") {
		t.Fatalf("storage line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "over 1 cycles") {
		t.Fatalf("latency line = %q", lines[2])
	}
}
