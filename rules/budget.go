package rules

import (
	"context"
	"fmt"
	"log/slog"
)

// Budget sums unit cost times size per configured category and flags each
// category whose total exceeds its ceiling. It produces category findings,
// never element findings.
type Budget struct {
	cfg    BudgetConfig
	logger *slog.Logger
}

// NewBudget creates the budget aggregation rule.
func NewBudget(cfg BudgetConfig, logger *slog.Logger) *Budget {
	if logger == nil {
		logger = slog.Default()
	}
	return &Budget{cfg: cfg, logger: logger}
}

// ID implements Rule.
func (r *Budget) ID() string { return IDBudget }

// Description implements Rule.
func (r *Budget) Description() string {
	if r.cfg.Label != "" {
		return r.cfg.Label
	}
	return "Budget Exceeded"
}

// Totals returns the summed cost per configured category, in config order.
func (r *Budget) Totals(in Input) []float64 {
	resolver := in.resolver()
	totals := make([]float64, len(r.cfg.Budgets))
	for i, b := range r.cfg.Budgets {
		targets := []string{b.Category}
		for _, el := range in.Elements {
			if matchesAny(el.Category, targets) {
				totals[i] += elementCost(resolver, el, r.cfg.CostParameter)
			}
		}
	}
	return totals
}

// Evaluate implements Rule.
func (r *Budget) Evaluate(_ context.Context, in Input) []Finding {
	totals := r.Totals(in)

	var findings []Finding
	for i, b := range r.cfg.Budgets {
		total := totals[i]
		r.logger.Debug("Category total",
			"rule", IDBudget,
			"category", b.Category,
			"total", total,
			"budget", b.Limit)
		if total <= b.Limit {
			continue
		}

		overrun := total - b.Limit
		findings = append(findings, Finding{
			RuleID:   IDBudget,
			Rule:     r.Description(),
			Severity: r.cfg.Severity,
			Category: b.Category,
			Message: fmt.Sprintf("Total cost of category '%s' is %s, exceeding the budget of %s by %s.",
				b.Category,
				formatAmount(total, r.cfg.Currency),
				formatAmount(b.Limit, r.cfg.Currency),
				formatAmount(overrun, r.cfg.Currency)),
		})
	}
	return findings
}
