// Command snapshot runs one refresh of a single view and prints the rendered
// table as text. It reads live state from the configured Pulse server, or a
// saved state document with -state for offline inspection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"pulseview/config"
	"pulseview/filter"
	"pulseview/live"
	"pulseview/source"
	"pulseview/ui"
	"pulseview/viewmode"
	"pulseview/views"
)

type options struct {
	configDir string
	view      string
	statePath string
	sortField string
	policy    string
	matches   multiFlag
	floors    multiFlag
	timeout   time.Duration
}

// multiFlag collects repeated field=value flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	var opts options
	flag.StringVar(&opts.configDir, "config", "", "config directory (default: built-in defaults)")
	flag.StringVar(&opts.view, "view", "dashboard", "view to render: "+strings.Join(views.Names(), ", "))
	flag.StringVar(&opts.statePath, "state", "", "read a saved state JSON document instead of the server")
	flag.StringVar(&opts.sortField, "sort", "", "sort field; prefix with - for descending (e.g. -sort=-cpu)")
	flag.StringVar(&opts.policy, "policy", "", "filter policy: dim or hide")
	flag.Var(&opts.matches, "match", "field=pattern name filter, repeatable (e.g. name=web*)")
	flag.Var(&opts.floors, "min", "field=value threshold, repeatable (e.g. cpu=80)")
	flag.DurationVar(&opts.timeout, "timeout", 15*time.Second, "fetch timeout")
	flag.Parse()

	log.SetFlags(0)
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "snapshot: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	v, ok := views.ByName(strings.ToLower(strings.TrimSpace(opts.view)))
	if !ok {
		if s := config.Suggest(opts.view, views.Names()); s != "" {
			return fmt.Errorf("unknown view %q (did you mean %q?)", opts.view, s)
		}
		return fmt.Errorf("unknown view %q", opts.view)
	}

	cfg := config.Default()
	if opts.configDir != "" {
		loaded, err := config.Load(opts.configDir)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	src, err := openSource(opts, cfg, v)
	if err != nil {
		return err
	}
	d := live.New(src, []views.View{v}, live.Options{Timeout: opts.timeout})
	if err := applyControls(ctx, d, v, opts); err != nil {
		return err
	}
	if err := d.Refresh(ctx, v.Name); err != nil {
		return err
	}
	st, err := d.Status(v.Name)
	if err != nil {
		return err
	}
	if st.LastErr != nil {
		return st.LastErr
	}
	text, err := ui.Text(d, v.Name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, text)
	return err
}

func openSource(opts options, cfg *config.Config, v views.View) (source.Source, error) {
	if opts.statePath == "" {
		return source.NewHTTP(cfg.Server.URL, cfg.Server.Token, opts.timeout, 0), nil
	}
	f, err := os.Open(opts.statePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := source.DecodeState(f)
	if err != nil {
		return nil, err
	}
	recs, err := source.FromState(st, v.Kind)
	if err != nil {
		return nil, err
	}
	src := source.NewStatic()
	src.Set(v.Kind, recs)
	return src, nil
}

// applyControls sets sort, policy, and filters before the single refresh so
// the first render already reflects them.
func applyControls(ctx context.Context, d *live.Driver, v views.View, opts options) error {
	if field := strings.TrimSpace(opts.sortField); field != "" {
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		st, err := d.SetSort(v.Name, field)
		if err != nil {
			return err
		}
		// A field's first click uses its natural direction; click again to
		// reach the requested one.
		if st.Ascending == desc {
			if _, err := d.SetSort(v.Name, field); err != nil {
				return err
			}
		}
	}
	if p := strings.TrimSpace(opts.policy); p != "" {
		if !filter.ValidPolicy(p) {
			return fmt.Errorf("policy %q must be dim or hide", p)
		}
		if err := d.SetPolicy(v.Name, filter.NormalizePolicy(p)); err != nil {
			return err
		}
	}
	for _, m := range opts.matches {
		field, expr, ok := strings.Cut(m, "=")
		if !ok {
			return fmt.Errorf("-match %q: want field=pattern", m)
		}
		if err := d.SetPattern(v.Name, strings.TrimSpace(field), expr); err != nil {
			return err
		}
	}
	for _, m := range opts.floors {
		field, raw, ok := strings.Cut(m, "=")
		if !ok {
			return fmt.Errorf("-min %q: want field=value", m)
		}
		value, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(raw), "%"), 64)
		if err != nil {
			return fmt.Errorf("-min %q: %w", m, err)
		}
		if err := d.SetCriterion(strings.TrimSpace(field), value); err != nil {
			return err
		}
	}
	if len(opts.floors) > 0 {
		if err := d.SetViewMode(ctx, viewmode.Thresholds); err != nil {
			return errors.Join(errors.New("enable thresholds"), err)
		}
	}
	return nil
}
