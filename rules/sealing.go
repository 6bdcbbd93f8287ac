package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/semaudit/params"
)

// Sealing flags openings whose yes/no sealing parameter is not affirmative.
type Sealing struct {
	cfg    SealingConfig
	logger *slog.Logger
}

// NewSealing creates the sealing compliance rule.
func NewSealing(cfg SealingConfig, logger *slog.Logger) *Sealing {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sealing{cfg: cfg, logger: logger}
}

// ID implements Rule.
func (r *Sealing) ID() string { return IDSealing }

// Description implements Rule.
func (r *Sealing) Description() string {
	if r.cfg.Label != "" {
		return r.cfg.Label
	}
	return "Unsealed: " + r.cfg.Parameter.Name
}

// Evaluate implements Rule. Missing, false, "no", 0 and any unrecognised value
// are all non-compliant.
func (r *Sealing) Evaluate(_ context.Context, in Input) []Finding {
	resolver := in.resolver()
	message := fmt.Sprintf("This opening in a fire-rated wall is missing the '%s' parameter.", r.cfg.Parameter.Name)

	var findings []Finding
	for _, el := range in.Elements {
		if !matchesAny(el.Category, r.cfg.Categories) {
			continue
		}

		v, _ := resolver.Get(el, r.cfg.Parameter)
		if params.Truthy(v, r.cfg.TruthyValues) {
			continue
		}

		r.logger.Debug("Opening not sealed",
			"rule", IDSealing,
			"element_id", el.ID,
			"value", v)
		findings = append(findings, Finding{
			RuleID:    IDSealing,
			Rule:      r.Description(),
			Severity:  r.cfg.Severity,
			ElementID: el.ID,
			Category:  el.Category,
			Message:   message,
		})
	}
	return findings
}
