// Package metrics exposes evaluation counters for Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/semaudit/aggregation"
	"github.com/c360studio/semaudit/rules"
)

const namespace = "semaudit"

// AI call outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the collectors of one process, registered on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	findings  *prometheus.CounterVec
	aiCalls   *prometheus.CounterVec
	runs      *prometheus.CounterVec
	duration  prometheus.Histogram
	evaluated prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings produced, by rule and severity.",
		}, []string{"rule", "severity"}),
		aiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_calls_total",
			Help:      "Calls to the AI service, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed evaluations, by verdict.",
		}, []string{"verdict"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one evaluation.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		evaluated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elements_evaluated",
			Help:      "Elements in the most recently evaluated model version.",
		}),
	}

	m.registry.MustRegister(m.findings, m.aiCalls, m.runs, m.duration, m.evaluated)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one finished evaluation.
func (m *Metrics) ObserveRun(elements int, rep *aggregation.Report, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluated.Set(float64(elements))
	m.duration.Observe(elapsed.Seconds())
	if rep == nil {
		return
	}
	for _, f := range rep.Findings {
		m.findings.WithLabelValues(f.RuleID, string(f.Severity)).Inc()
	}
	m.runs.WithLabelValues(rep.Verdict()).Inc()
}

// InstrumentAsker counts the outcome of every call made through asker.
func (m *Metrics) InstrumentAsker(asker rules.Asker) rules.Asker {
	if m == nil || asker == nil {
		return asker
	}
	return &instrumentedAsker{next: asker, calls: m.aiCalls}
}

type instrumentedAsker struct {
	next  rules.Asker
	calls *prometheus.CounterVec
}

func (a *instrumentedAsker) Ask(ctx context.Context, prompt string) (string, error) {
	reply, err := a.next.Ask(ctx, prompt)
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	a.calls.WithLabelValues(outcome).Inc()
	return reply, err
}
