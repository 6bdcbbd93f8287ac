package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semaudit/aggregation"
	"github.com/c360studio/semaudit/element"
	"github.com/c360studio/semaudit/metrics"
	"github.com/c360studio/semaudit/notify"
	"github.com/c360studio/semaudit/params"
	"github.com/c360studio/semaudit/report"
	"github.com/c360studio/semaudit/rules"
)

// Run outcome messages reported to the host.
const (
	MessageNoElements = "No Revit elements found in the commit."
	MessagePassed     = "Validation passed: All rules were successful."
)

// Outcome is the result of one completed run.
type Outcome struct {
	Run      report.Run
	Report   *aggregation.Report
	Elements int
	Passed   bool
	Message  string
	// Files are the report files written, if any.
	Files []string
}

// Runner evaluates model versions received from a host Context.
type Runner struct {
	engine    *rules.Engine
	resolver  *params.Resolver
	flattener element.Flattener
	writer    report.Writer
	outDir    string
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	colors    Colors
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithResolver sets the parameter resolver.
func WithResolver(r *params.Resolver) Option {
	return func(rn *Runner) { rn.resolver = r }
}

// WithFlattener sets the element flattener.
func WithFlattener(f element.Flattener) Option {
	return func(rn *Runner) { rn.flattener = f }
}

// WithReports writes report files into dir after each run.
func WithReports(w report.Writer, dir string) Option {
	return func(rn *Runner) {
		rn.writer = w
		rn.outDir = dir
	}
}

// WithNotifier sets where reports are sent.
func WithNotifier(n notify.Notifier) Option {
	return func(rn *Runner) { rn.notifier = n }
}

// WithMetrics records each run.
func WithMetrics(m *metrics.Metrics) Option {
	return func(rn *Runner) { rn.metrics = m }
}

// WithColors sets the annotation colours.
func WithColors(c Colors) Option {
	return func(rn *Runner) { rn.colors = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rn *Runner) { rn.logger = l }
}

// WithClock overrides the run clock and ID source.
func WithClock(now func() time.Time, newID func() string) Option {
	return func(rn *Runner) {
		if now != nil {
			rn.now = now
		}
		if newID != nil {
			rn.newID = newID
		}
	}
}

// NewRunner creates a runner around an engine.
func NewRunner(engine *rules.Engine, opts ...Option) *Runner {
	r := &Runner{
		engine:    engine,
		resolver:  params.NewResolver(),
		flattener: element.Flattener{},
		colors:    DefaultColors(),
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates the version delivered by actx and signals the outcome back.
// Error findings mark the run failed but are not a Go error; an error is
// returned only when the model cannot be read or the run is cancelled.
func (r *Runner) Run(ctx context.Context, actx Context) (*Outcome, error) {
	started := r.now()
	run := report.Run{ID: r.newID(), Started: started}
	if fc, ok := actx.(*FileContext); ok {
		run.Model = fc.ModelPath
		fc.RunID = run.ID
	}
	logger := r.logger.With("run_id", run.ID)
	logger.Info("Starting validation", "model", run.Model)

	root, err := actx.ReceiveVersion(ctx)
	if err != nil {
		msg := fmt.Sprintf("The model version could not be read: %v", err)
		if markErr := actx.MarkFailed(ctx, msg); markErr != nil {
			logger.Warn("Failed to mark run failed", "error", markErr)
		}
		return nil, fmt.Errorf("receive version: %w", err)
	}

	elements := r.flattener.Flatten(root)
	out := &Outcome{Run: run, Elements: len(elements)}

	if len(elements) == 0 {
		out.Report = aggregation.Aggregate(nil)
		out.Passed = true
		out.Message = MessageNoElements
		r.metrics.ObserveRun(0, out.Report, r.now().Sub(started))
		logger.Info(MessageNoElements)
		return out, r.mark(ctx, actx, out)
	}
	logger.Info("Found elements to analyze", "count", len(elements))

	in := rules.Input{Elements: elements, Resolver: r.resolver}
	if prev, ok, err := actx.PreviousVersion(ctx); err != nil {
		logger.Warn("Previous version unavailable, skipping comparison", "error", err)
	} else if ok {
		in.Previous = r.flattener.Flatten(prev)
	}

	outputs := r.engine.Evaluate(ctx, in)
	if err := ctx.Err(); err != nil {
		if markErr := actx.MarkFailed(context.WithoutCancel(ctx), "Validation was cancelled."); markErr != nil {
			logger.Warn("Failed to mark run failed", "error", markErr)
		}
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	rep := aggregation.Aggregate(outputs)
	out.Report = rep
	out.Passed = rep.Passed()
	out.Message = outcomeMessage(rep)

	if err := actx.AttachFindings(ctx, Annotations(rep, r.colors)); err != nil {
		logger.Warn("Failed to attach findings", "error", err)
	}

	if r.outDir != "" {
		files, err := r.writer.WriteFiles(r.outDir, run, rep)
		if err != nil {
			logger.Warn("Failed to write reports", "error", err)
		}
		out.Files = files
	}

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, run, rep); err != nil {
			logger.Warn("Failed to send notifications", "error", err)
		}
	}

	elapsed := r.now().Sub(started)
	r.metrics.ObserveRun(len(elements), rep, elapsed)

	logger.Info("Validation finished",
		"verdict", rep.Verdict(),
		"errors", rep.Errors(),
		"warnings", rep.Warnings(),
		"duration", elapsed)

	return out, r.mark(ctx, actx, out)
}

func (r *Runner) mark(ctx context.Context, actx Context, out *Outcome) error {
	var err error
	if out.Passed {
		err = actx.MarkSuccess(ctx, out.Message)
	} else {
		err = actx.MarkFailed(ctx, out.Message)
	}
	if err != nil {
		return fmt.Errorf("signal run outcome: %w", err)
	}
	return nil
}

func outcomeMessage(rep *aggregation.Report) string {
	switch {
	case !rep.Passed():
		return fmt.Sprintf("Validation failed with a total of %d errors.", rep.Errors())
	case rep.Total > 0:
		return fmt.Sprintf("Validation passed with %d warnings.", rep.Warnings())
	default:
		return MessagePassed
	}
}
