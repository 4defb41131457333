// Package cli implements the availcache command line: one-shot resolutions
// and store maintenance against the backend named in the config file.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/availcache"
	"github.com/unkn0wn-root/availcache/config"
	asynchook "github.com/unkn0wn-root/availcache/hooks/async"
	"github.com/unkn0wn-root/availcache/hooks/prom"
	"github.com/unkn0wn-root/availcache/sloghooks"
)

const (
	flagConfig  = "config"
	flagMetrics = "metrics"
	flagTimeout = "timeout"

	shutdownTimeout = 10 * time.Second
)

type app struct {
	configPath string
	metrics    bool
	timeout    time.Duration

	// set up lazily by engine
	cfg      *config.Config
	eng      *availcache.Engine
	reg      *prometheus.Registry
	cleanups []func()
}

func New() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "availcache [sub-command]",
		Short: "Resolve and cache per-platform availability of catalog entities",
		Long: `availcache resolves entities through cache, overrides, providers and a
search fallback, and maintains the backing store.

Without a config file an in-process BigCache backend is used, so nothing
survives the process. Point --config at a file with a redis backend to work
against a shared store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, flagConfig, "", "path to the YAML config file")
	cmd.PersistentFlags().BoolVar(&a.metrics, flagMetrics, false, "print collected metrics to stderr on exit")
	cmd.PersistentFlags().DurationVar(&a.timeout, flagTimeout, time.Minute, "overall deadline of the command")

	cmd.AddCommand(
		newResolveCmd(a),
		newBatchCmd(a),
		newRefreshCmd(a),
		newGetCmd(a),
		newStatsCmd(a),
		newClearCmd(a),
		newFixturesCmd(a),
	)
	return cmd
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// engine builds the Engine on first use. Logs and metrics go to stderr so
// stdout stays machine readable.
func (a *app) engine(cmd *cobra.Command) (*availcache.Engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	log, flush, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("setting up logger failed: %w", err)
	}
	a.cleanups = append(a.cleanups, flush)

	a.reg = prometheus.NewRegistry()
	metrics, err := prom.New(cfg.Namespace, a.reg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics failed: %w", err)
	}
	hooks := availcache.TeeHooks{metrics}
	if cfg.Log.Events {
		sl, err := newSlog(cfg.Log, cmd.ErrOrStderr())
		if err != nil {
			return nil, err
		}
		events := asynchook.New(sloghooks.New(sl, sloghooks.Options{}), 1, 256)
		a.cleanups = append(a.cleanups, events.Close)
		hooks = append(hooks, events)
	}

	opts, err := cfg.Options(log, hooks)
	if err != nil {
		return nil, fmt.Errorf("building engine options failed: %w", err)
	}
	eng, err := availcache.New(opts)
	if err != nil {
		return nil, errors.Join(err, opts.Backend.Close(context.Background()))
	}
	a.eng = eng
	return eng, nil
}

// run hands fn a ready engine and a context bounded by --timeout, and shuts
// everything down afterwards whether fn failed or not.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, eng *availcache.Engine) error) (err error) {
	defer func() { err = errors.Join(err, a.shutdown(cmd)) }()

	eng, err := a.engine(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if a.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	return fn(ctx, eng)
}

func (a *app) shutdown(cmd *cobra.Command) error {
	var err error
	if a.eng != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = a.eng.Close(ctx)
		cancel()
		a.eng = nil
	}
	// hooks drain before the logger flushes
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
	if a.metrics && a.reg != nil {
		err = errors.Join(err, writeMetrics(cmd, a.reg))
	}
	return err
}

func writeMetrics(cmd *cobra.Command, reg *prometheus.Registry) error {
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(cmd.ErrOrStderr(), mf); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
