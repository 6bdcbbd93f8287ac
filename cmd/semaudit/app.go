package main

import (
	"fmt"
	"log/slog"

	"github.com/c360studio/semaudit/automation"
	"github.com/c360studio/semaudit/config"
	"github.com/c360studio/semaudit/llm"
	"github.com/c360studio/semaudit/metrics"
	"github.com/c360studio/semaudit/notify"
	"github.com/c360studio/semaudit/pricing"
	"github.com/c360studio/semaudit/report"
	"github.com/c360studio/semaudit/rules"
	"github.com/c360studio/semaudit/schedule"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics *metrics.Metrics
	runner  *automation.Runner

	// closers run on Close, in order
	closers []func() error
}

// NewApp loads the external inputs and builds the runner.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{cfg: cfg, logger: logger, metrics: metrics.New()}

	prices, err := pricing.Load(cfg.Inputs.Prices)
	if err != nil {
		return nil, fmt.Errorf("load price list: %w", err)
	}
	sched, err := schedule.Load(cfg.Inputs.Schedule)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	logger.Debug("Inputs loaded",
		"prices", prices.Len(),
		"scheduled_tasks", sched.Len())

	deps := rules.Dependencies{
		Prices:   prices,
		Schedule: sched,
		Logger:   logger,
	}
	if len(cfg.AI.Endpoints) > 0 {
		client := llm.NewClient(cfg.AI.Endpoints,
			llm.WithTimeout(cfg.AI.GetTimeout()),
			llm.WithRetryConfig(cfg.AI.RetryConfig()),
			llm.WithTemperature(cfg.AI.Temperature),
			llm.WithMaxTokens(cfg.AI.MaxTokens),
			llm.WithLogger(logger),
		)
		deps.Asker = app.metrics.InstrumentAsker(client)
	}

	engine := rules.NewEngine(logger, rules.Build(cfg.Rules, deps)...)

	notifier, err := app.notifier()
	if err != nil {
		return nil, err
	}

	opts := []automation.Option{
		automation.WithLogger(logger),
		automation.WithFlattener(cfg.Flatten.Flattener()),
		automation.WithMetrics(app.metrics),
		automation.WithNotifier(notifier),
	}
	if cfg.Report.OutputDir != "" {
		opts = append(opts, automation.WithReports(
			report.Writer{HTML: cfg.Report.HTML, CSV: cfg.Report.CSV},
			cfg.Report.OutputDir,
		))
	}
	app.runner = automation.NewRunner(engine, opts...)

	return app, nil
}

func (a *App) notifier() (notify.Notifier, error) {
	var notifiers []notify.Notifier

	if url := a.cfg.Notify.WebhookURL; url != "" {
		notifiers = append(notifiers, notify.NewWebhook(url, nil, a.cfg.Notify.GetTimeout()))
	}

	if url := a.cfg.Notify.NATSURL; url != "" {
		pub, err := notify.ConnectNATS(url, a.cfg.Notify.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		notifiers = append(notifiers, pub)
		a.logger.Info("Publishing reports to NATS", "url", url, "subject_prefix", a.cfg.Notify.SubjectPrefix)
	}

	if len(notifiers) == 0 {
		return nil, nil
	}
	return notify.NewMulti(a.logger, notifiers...), nil
}

// Runner returns the configured runner.
func (a *App) Runner() *automation.Runner {
	return a.runner
}

// Metrics returns the process metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Close releases notifier connections.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("Shutdown error", "error", err)
		}
	}
}
