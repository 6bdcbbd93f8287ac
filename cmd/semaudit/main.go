// Package main provides the semaudit binary entry point.
// Semaudit validates building-design model versions against fire-safety,
// cost and schedule rules.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	// Register LLM providers via init()
	_ "github.com/c360studio/semaudit/llm/providers"

	"github.com/c360studio/semaudit/automation"
	"github.com/c360studio/semaudit/config"
	"github.com/c360studio/semaudit/element"
	"github.com/c360studio/semaudit/watch"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semaudit"
)

// errValidationFailed marks a run whose outcome was already reported.
var errValidationFailed = errors.New("validation failed")

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd(os.Stdout).Execute(); err != nil {
		if !errors.Is(err, errValidationFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd(stdout io.Writer) *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   "semaudit",
		Short: "Building-design model validation",
		Long: `Semaudit evaluates a building-design model version against a set of
compliance and cost rules and reports the findings.

Rules:
- Fire rating completeness on structural elements
- Fire sealing on openings
- Category budgets
- AI cost plausibility against a price list
- 4D schedule placement
- Cost increase against the previous version`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(runCmd(&g), watchCmd(&g), initConfigCmd(&g))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

// overrides are command-line settings applied on top of the loaded config.
type overrides struct {
	out      string
	prices   string
	schedule string
	webhook  string
}

func (o overrides) config() *config.Config {
	return &config.Config{
		Inputs: config.InputsConfig{Prices: o.prices, Schedule: o.schedule},
		Report: config.ReportConfig{OutputDir: o.out},
		Notify: config.NotifyConfig{WebhookURL: o.webhook},
	}
}

func (o *overrides) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.out, "out", "", "Report output directory")
	cmd.Flags().StringVar(&o.prices, "prices", "", "Price list file (JSON)")
	cmd.Flags().StringVar(&o.schedule, "schedule", "", "4D schedule file (JSON)")
	cmd.Flags().StringVar(&o.webhook, "webhook", "", "Chat webhook URL")
}

func setup(g *globalFlags, o overrides, extra func(*config.Config)) (*App, *slog.Logger, error) {
	logger := newLogger(g.logLevel)

	cfg, err := config.NewLoader(logger).Load(g.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Merge(o.config())
	if extra != nil {
		extra(cfg)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app, logger, nil
}

func runCmd(g *globalFlags) *cobra.Command {
	var (
		o        overrides
		model    string
		previous string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate model snapshots once",
		Long: `Validate every model snapshot matching --model (a path or ** glob).
Exits with status 1 when a snapshot cannot be read or has error findings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := setup(g, o, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runOnce(ctx, app, cmd.OutOrStdout(), model, previous)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model snapshot path or glob (required)")
	cmd.Flags().StringVar(&previous, "previous", "", "Previous model version, for cost comparison")
	_ = cmd.MarkFlagRequired("model")
	o.register(cmd)

	return cmd
}

func runOnce(ctx context.Context, app *App, out io.Writer, model, previous string) error {
	paths, err := automation.ResolveModelPaths(model)
	if err != nil {
		return err
	}
	if previous != "" && len(paths) > 1 {
		return fmt.Errorf("--previous needs a single model, but %q matches %d snapshots", model, len(paths))
	}

	failed := false
	for _, path := range paths {
		actx := automation.NewFileContext(path, previous, app.cfg.Report.OutputDir)
		outcome, err := app.Runner().Run(ctx, actx)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed = true
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", path, outcome.Message)
		if !outcome.Passed {
			failed = true
		}
	}

	if failed {
		return errValidationFailed
	}
	return nil
}

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		o           overrides
		dir         string
		pattern     string
		metricsAddr string
		debounce    time.Duration
		initial     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-validate model snapshots as they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, err := setup(g, o, func(c *config.Config) {
				if metricsAddr != "" {
					c.Metrics.Addr = metricsAddr
				}
			})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr := app.cfg.Metrics.Addr; addr != "" {
				srv := serveMetrics(addr, app, logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			w, err := watch.NewWatcher(watch.Config{
				Root:          dir,
				Pattern:       pattern,
				DebounceDelay: debounce,
				Logger:        logger,
			})
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}

			return watchLoop(ctx, app, w, cmd.OutOrStdout(), initial, logger)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory holding model snapshots")
	cmd.Flags().StringVar(&pattern, "pattern", watch.DefaultPattern, "Snapshot file pattern, relative to --dir")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a change is evaluated")
	cmd.Flags().BoolVar(&initial, "initial", false, "Validate existing snapshots on start")
	o.register(cmd)

	return cmd
}

func watchLoop(ctx context.Context, app *App, w *watch.Watcher, out io.Writer, initial bool, logger *slog.Logger) error {
	existing, err := w.Seed()
	if err != nil {
		return fmt.Errorf("scan snapshots: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	// Last evaluated version per snapshot, used as the previous version.
	previous := make(map[string]*element.Node)

	evaluate := func(path string) {
		actx := automation.NewFileContext(path, "", app.cfg.Report.OutputDir)
		actx.Previous = previous[path]

		outcome, err := app.Runner().Run(ctx, actx)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			return
		}
		fmt.Fprintf(out, "%s: %s\n", path, outcome.Message)
		if root := actx.Received(); root != nil {
			previous[path] = root
		}
	}

	if initial {
		for _, path := range existing {
			evaluate(path)
		}
	}

	logger.Info("Watching for model changes", "snapshots", len(existing))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if ev.Operation == watch.OpDelete {
				delete(previous, ev.Path)
				continue
			}
			evaluate(ev.Path)
		}
	}
}

func serveMetrics(addr string, app *App, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics().Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}

func initConfigCmd(g *globalFlags) *cobra.Command {
	var project bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration",
		Long: `Write the default configuration to the user config path
(~/.config/semaudit/config.yaml), or to ./semaudit.yaml with --project.
An existing file is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(g.logLevel)

			if !project {
				return config.NewLoader(logger).EnsureUserConfig()
			}

			path := filepath.Join(".", config.ProjectConfigFile)
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
				return nil
			}
			if err := config.DefaultConfig().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&project, "project", false, "Write semaudit.yaml in the current directory")
	return cmd
}

func newLogger(logLevel string) *slog.Logger {
	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
