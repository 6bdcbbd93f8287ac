// Package rules evaluates flattened model elements against the compliance and
// cost-sanity rule battery.
//
// Each rule is independent: it reads the element list through a params.Resolver
// and its own configuration, and returns findings. A rule that hits bad data on
// one element skips that element; a rule that panics loses only its own output.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/semaudit/element"
	"github.com/c360studio/semaudit/params"
)

// Rule IDs.
const (
	IDCompleteness = "completeness"
	IDSealing      = "sealing"
	IDBudget       = "budget"
	IDPlausibility = "plausibility"
	IDSequencing   = "sequencing"
	IDDeltaCost    = "delta-cost"
)

// Input is what every rule evaluates.
type Input struct {
	// Elements are the flattened leaf elements of the current version.
	Elements []*element.Node

	// Previous are the flattened elements of the previous version, if any.
	Previous []*element.Node

	// Resolver reads parameters. Nil uses the default shapes.
	Resolver *params.Resolver
}

func (in Input) resolver() *params.Resolver {
	if in.Resolver == nil {
		return params.NewResolver()
	}
	return in.Resolver
}

// Rule is one independent evaluator.
type Rule interface {
	// ID returns the stable rule identifier.
	ID() string

	// Description returns the label findings are grouped under.
	Description() string

	// Evaluate returns the rule's findings. It never fails: bad data on an
	// element skips that element.
	Evaluate(ctx context.Context, in Input) []Finding
}

// Engine runs rules sequentially over the same input.
type Engine struct {
	rules  []Rule
	logger *slog.Logger
}

// NewEngine creates an engine over rules, run in the given order.
func NewEngine(logger *slog.Logger, rules ...Rule) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{rules: rules, logger: logger}
}

// Rules returns the engine's rules in run order.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate runs every rule and returns one finding list per rule, in rule
// order. A cancelled context stops before the next rule starts.
func (e *Engine) Evaluate(ctx context.Context, in Input) [][]Finding {
	if in.Resolver == nil {
		in.Resolver = params.NewResolver()
	}

	outputs := make([][]Finding, 0, len(e.rules))
	for _, r := range e.rules {
		if ctx.Err() != nil {
			e.logger.Warn("Evaluation cancelled", "next_rule", r.ID(), "error", ctx.Err())
			break
		}

		start := time.Now()
		findings := e.run(ctx, r, in)
		e.logger.Info("Rule finished",
			"rule", r.ID(),
			"findings", len(findings),
			"duration_ms", time.Since(start).Milliseconds())
		outputs = append(outputs, findings)
	}
	return outputs
}

func (e *Engine) run(ctx context.Context, r Rule, in Input) (findings []Finding) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("Rule panicked, discarding its findings",
				"rule", r.ID(),
				"panic", fmt.Sprint(rec))
			findings = nil
		}
	}()
	return r.Evaluate(ctx, in)
}

// matchesAny reports whether category contains any target, case-insensitively.
func matchesAny(category string, targets []string) bool {
	if category == "" {
		return false
	}
	lower := strings.ToLower(category)
	for _, t := range targets {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// sizeMetric is the element volume if present, else its area if present,
// else 0. A present but non-numeric metric counts as 0; it does not fall
// through to the next one.
func sizeMetric(el *element.Node) float64 {
	for _, key := range []string{"volume", "area"} {
		v, ok := el.Field(key)
		if !ok {
			continue
		}
		f, _ := params.Number(v)
		return f
	}
	return 0
}

// unitCost resolves a numeric cost parameter.
func unitCost(r *params.Resolver, el *element.Node, ref params.Ref) (float64, bool) {
	v, ok := r.Get(el, ref)
	if !ok {
		return 0, false
	}
	return params.Number(v)
}

// elementCost is unit cost times size; unresolvable costs count as 0.
func elementCost(r *params.Resolver, el *element.Node, ref params.Ref) float64 {
	c, ok := unitCost(r, el, ref)
	if !ok {
		return 0
	}
	return c * sizeMetric(el)
}

func formatAmount(v float64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.2f %s", v, currency)
}
