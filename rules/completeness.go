package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/semaudit/params"
)

// Completeness flags elements of the target categories whose required
// parameter is missing or blank.
type Completeness struct {
	cfg    CompletenessConfig
	logger *slog.Logger
}

// NewCompleteness creates the data census rule.
func NewCompleteness(cfg CompletenessConfig, logger *slog.Logger) *Completeness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Completeness{cfg: cfg, logger: logger}
}

// ID implements Rule.
func (r *Completeness) ID() string { return IDCompleteness }

// Description implements Rule.
func (r *Completeness) Description() string {
	if r.cfg.Label != "" {
		return r.cfg.Label
	}
	return "Missing Data: " + r.cfg.Parameter.Name
}

// Evaluate implements Rule. A value of "0" is present; "" and whitespace are not.
func (r *Completeness) Evaluate(_ context.Context, in Input) []Finding {
	resolver := in.resolver()
	message := fmt.Sprintf("The parameter '%s' is missing or empty.", r.cfg.Parameter.Name)

	var findings []Finding
	for _, el := range in.Elements {
		if !matchesAny(el.Category, r.cfg.Categories) {
			continue
		}

		v, ok := resolver.Get(el, r.cfg.Parameter)
		if ok && !params.Blank(v) {
			continue
		}

		r.logger.Debug("Required parameter missing",
			"rule", IDCompleteness,
			"element_id", el.ID,
			"parameter", r.cfg.Parameter.String())
		findings = append(findings, Finding{
			RuleID:    IDCompleteness,
			Rule:      r.Description(),
			Severity:  r.cfg.Severity,
			ElementID: el.ID,
			Category:  el.Category,
			Message:   message,
		})
	}
	return findings
}
