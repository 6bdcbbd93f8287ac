package rules

import (
	"context"
	"fmt"
	"log/slog"
)

// DeltaCost compares element costs against the previous model version and
// flags increases above the configured percentage. Elements present in only
// one version, or with no previous cost, are skipped.
type DeltaCost struct {
	cfg    DeltaConfig
	logger *slog.Logger
}

// NewDeltaCost creates the previous-version comparison rule.
func NewDeltaCost(cfg DeltaConfig, logger *slog.Logger) *DeltaCost {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeltaCost{cfg: cfg, logger: logger}
}

// ID implements Rule.
func (r *DeltaCost) ID() string { return IDDeltaCost }

// Description implements Rule.
func (r *DeltaCost) Description() string {
	if r.cfg.Label != "" {
		return r.cfg.Label
	}
	return "Cost Increase"
}

// Evaluate implements Rule. Without a previous version it returns nothing.
func (r *DeltaCost) Evaluate(_ context.Context, in Input) []Finding {
	if len(in.Previous) == 0 {
		return nil
	}
	resolver := in.resolver()

	previous := make(map[string]float64, len(in.Previous))
	for _, el := range in.Previous {
		if el.ID == "" {
			continue
		}
		if _, seen := previous[el.ID]; !seen {
			previous[el.ID] = elementCost(resolver, el, r.cfg.CostParameter)
		}
	}

	var findings []Finding
	for _, el := range in.Elements {
		before, ok := previous[el.ID]
		if !ok || before <= 0 {
			continue
		}
		after := elementCost(resolver, el, r.cfg.CostParameter)
		increase := (after - before) / before * 100
		if increase <= r.cfg.MaxIncreasePercent {
			continue
		}

		r.logger.Debug("Cost increase above limit",
			"rule", IDDeltaCost,
			"element_id", el.ID,
			"before", before,
			"after", after)
		findings = append(findings, Finding{
			RuleID:    IDDeltaCost,
			Rule:      r.Description(),
			Severity:  r.cfg.Severity,
			ElementID: el.ID,
			Category:  el.Category,
			Message: fmt.Sprintf("Cost rose from %s to %s (+%.1f%%), above the %.1f%% limit.",
				formatAmount(before, r.cfg.Currency),
				formatAmount(after, r.cfg.Currency),
				increase, r.cfg.MaxIncreasePercent),
		})
	}
	return findings
}
