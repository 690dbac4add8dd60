// Package config loads the pulseview YAML configuration. A config path is a
// directory; every *.yaml file inside is merged in lexical order so operators
// can split server, UI, and view settings into separate files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"
)

// ViewNames lists the table views in default page order.
var ViewNames = []string{"dashboard", "storage", "snapshots", "backups", "pbs"}

// Config represents the complete pulseview configuration.
type Config struct {
	Server  ServerConfig          `yaml:"server"`
	Refresh RefreshConfig         `yaml:"refresh"`
	UI      UIConfig              `yaml:"ui"`
	Views   map[string]ViewConfig `yaml:"views"`
	Prefs   PrefsConfig           `yaml:"prefs"`
	Charts  ChartsConfig          `yaml:"charts"`
	Logging LoggingConfig         `yaml:"logging"`
	Metrics MetricsConfig         `yaml:"metrics"`

	// LoadedFrom is the directory the configuration was read from.
	LoadedFrom string `yaml:"-"`
}

// ServerConfig describes the Pulse API the data source talks to.
type ServerConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	Transport string `yaml:"transport"` // poll | websocket
	TimeoutMS int    `yaml:"timeout_ms"`
}

// RefreshConfig controls the live update driver.
type RefreshConfig struct {
	IntervalMS     int `yaml:"interval_ms"`
	DebounceMS     int `yaml:"debounce_ms"`
	CycleTimeoutMS int `yaml:"cycle_timeout_ms"`
}

// UIConfig selects and tunes the renderer.
type UIConfig struct {
	Mode        string   `yaml:"mode"` // tview | headless
	TargetFPS   int      `yaml:"target_fps"`
	Pages       []string `yaml:"pages"`
	EnableMouse bool     `yaml:"enable_mouse"`
}

// ViewConfig holds per-view defaults. Preferences saved by the user override
// these at runtime.
type ViewConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	SortField     string `yaml:"sort_field"`
	SortAscending *bool  `yaml:"sort_ascending"`
	Policy        string `yaml:"policy"` // dim | hide
}

// PrefsConfig selects where browser-style preferences persist.
type PrefsConfig struct {
	Backend   string `yaml:"backend"` // memory | file | pebble | redis
	Path      string `yaml:"path"`
	RedisURL  string `yaml:"redis_url"`
	Namespace string `yaml:"namespace"`
}

// ChartsConfig tunes the chart subsystem.
type ChartsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Source         string `yaml:"source"` // server | local
	HistoryDB      string `yaml:"history_db"`
	DefaultRange   string `yaml:"default_range"`
	RetentionHours int    `yaml:"retention_hours"`
}

// LoggingConfig contains file logging settings.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// MetricsConfig exposes refresh counters for scraping.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads every *.yaml file in dir, merges them, applies defaults, and
// validates the result.
func Load(dir string) (*Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config path %s is not a directory", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no *.yaml files in %s: %w", dir, os.ErrNotExist)
	}

	var cfg Config
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filepath.Base(path), err)
		}
	}
	cfg.LoadedFrom = dir
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, for commands
// that run without a config directory.
func Default() *Config {
	var cfg Config
	cfg.normalize()
	return &cfg
}

func (c *Config) normalize() {
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	if c.Server.URL == "" {
		c.Server.URL = "http://localhost:7655"
	}
	c.Server.Transport = strings.ToLower(strings.TrimSpace(c.Server.Transport))
	if c.Server.Transport == "" {
		c.Server.Transport = "poll"
	}
	if c.Server.TimeoutMS <= 0 {
		c.Server.TimeoutMS = 10000
	}

	if c.Refresh.IntervalMS <= 0 {
		c.Refresh.IntervalMS = 5000
	}
	if c.Refresh.IntervalMS < 250 {
		c.Refresh.IntervalMS = 250
	}
	if c.Refresh.DebounceMS <= 0 {
		c.Refresh.DebounceMS = 100
	}
	if c.Refresh.CycleTimeoutMS <= 0 {
		c.Refresh.CycleTimeoutMS = 10000
	}

	c.UI.Mode = strings.ToLower(strings.TrimSpace(c.UI.Mode))
	if c.UI.Mode == "" {
		c.UI.Mode = "tview"
	}
	if c.UI.TargetFPS <= 0 {
		c.UI.TargetFPS = 30
	}
	if len(c.UI.Pages) == 0 {
		c.UI.Pages = append([]string(nil), ViewNames...)
	}
	for i, p := range c.UI.Pages {
		c.UI.Pages[i] = strings.ToLower(strings.TrimSpace(p))
	}
	if c.Views == nil {
		c.Views = make(map[string]ViewConfig)
	}

	c.Prefs.Backend = strings.ToLower(strings.TrimSpace(c.Prefs.Backend))
	if c.Prefs.Backend == "" {
		c.Prefs.Backend = "file"
	}
	if strings.TrimSpace(c.Prefs.Path) == "" {
		switch c.Prefs.Backend {
		case "pebble":
			c.Prefs.Path = "data/prefs.pebble"
		default:
			c.Prefs.Path = "data/prefs.yaml"
		}
	}
	if strings.TrimSpace(c.Prefs.Namespace) == "" {
		c.Prefs.Namespace = "pulseview"
	}

	c.Charts.Source = strings.ToLower(strings.TrimSpace(c.Charts.Source))
	if c.Charts.Source == "" {
		c.Charts.Source = "server"
	}
	if strings.TrimSpace(c.Charts.HistoryDB) == "" {
		c.Charts.HistoryDB = "data/chart_history.db"
	}
	if strings.TrimSpace(c.Charts.DefaultRange) == "" {
		c.Charts.DefaultRange = "1h"
	}
	if c.Charts.RetentionHours <= 0 {
		c.Charts.RetentionHours = 24 * 7
	}

	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = "data/logs"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
}

func (c *Config) validate() error {
	var errs []error
	switch c.Server.Transport {
	case "poll", "websocket":
	default:
		errs = append(errs, fmt.Errorf("server.transport %q must be poll or websocket", c.Server.Transport))
	}
	switch c.UI.Mode {
	case "tview", "headless":
	default:
		errs = append(errs, fmt.Errorf("ui.mode %q must be tview or headless", c.UI.Mode))
	}
	seen := make(map[string]bool, len(c.UI.Pages))
	for _, page := range c.UI.Pages {
		if !containsName(ViewNames, page) {
			errs = append(errs, unknownName("ui.pages entry", page, ViewNames))
			continue
		}
		if seen[page] {
			errs = append(errs, fmt.Errorf("ui.pages lists %q twice", page))
		}
		seen[page] = true
	}
	for name, view := range c.Views {
		if !containsName(ViewNames, name) {
			errs = append(errs, unknownName("views key", name, ViewNames))
		}
		if p := strings.ToLower(strings.TrimSpace(view.Policy)); p != "" && p != "dim" && p != "hide" {
			errs = append(errs, fmt.Errorf("views.%s.policy %q must be dim or hide", name, view.Policy))
		}
	}
	switch c.Prefs.Backend {
	case "memory", "file", "pebble":
	case "redis":
		if strings.TrimSpace(c.Prefs.RedisURL) == "" {
			errs = append(errs, errors.New("prefs.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("prefs.backend %q must be memory, file, pebble, or redis", c.Prefs.Backend))
	}
	switch c.Charts.Source {
	case "server", "local":
	default:
		errs = append(errs, fmt.Errorf("charts.source %q must be server or local", c.Charts.Source))
	}
	return errors.Join(errs...)
}

// View returns the per-view config, with enabled defaulting to true.
func (c *Config) View(name string) ViewConfig {
	v := c.Views[name]
	if v.Enabled == nil {
		enabled := true
		v.Enabled = &enabled
	}
	return v
}

// Print displays the configuration.
func (c *Config) Print() {
	fmt.Printf("Server: %s (transport=%s)\n", c.Server.URL, c.Server.Transport)
	fmt.Printf("Refresh: every %dms (debounce %dms)\n", c.Refresh.IntervalMS, c.Refresh.DebounceMS)
	fmt.Printf("UI: %s pages=%s\n", c.UI.Mode, strings.Join(c.UI.Pages, ", "))
	fmt.Printf("Preferences: %s\n", c.Prefs.Backend)
	if c.Charts.Enabled {
		fmt.Printf("Charts: source=%s default range %s\n", c.Charts.Source, c.Charts.DefaultRange)
	}
}

func containsName(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

func unknownName(what, name string, candidates []string) error {
	if s := Suggest(name, candidates); s != "" {
		return fmt.Errorf("unknown %s %q (did you mean %q?)", what, name, s)
	}
	return fmt.Errorf("unknown %s %q", what, name)
}

// Suggest returns the closest candidate to name by edit distance, or "" when
// nothing is close enough to be a plausible typo.
func Suggest(name string, candidates []string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, strings.ToLower(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	limit := len(name) / 2
	if limit < 1 {
		limit = 1
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return best
}
