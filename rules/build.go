package rules

import (
	"log/slog"

	"github.com/c360studio/semaudit/pricing"
	"github.com/c360studio/semaudit/schedule"
)

// Dependencies are the external inputs some rules need.
type Dependencies struct {
	// Asker is the AI service. Nil disables the plausibility rule.
	Asker Asker

	// Prices is the reference price list. Nil is an empty list.
	Prices *pricing.List

	// Schedule is the 4D schedule. Nil or empty disables sequencing findings.
	Schedule *schedule.Schedule

	Logger *slog.Logger
}

// Build constructs the enabled rules in their fixed run order: completeness,
// sealing, budget, plausibility, sequencing, delta cost.
func Build(cfg Config, deps Dependencies) []Rule {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var out []Rule
	if cfg.Completeness.Enabled {
		out = append(out, NewCompleteness(cfg.Completeness, logger))
	}
	if cfg.Sealing.Enabled {
		out = append(out, NewSealing(cfg.Sealing, logger))
	}
	if cfg.Budget.Enabled {
		out = append(out, NewBudget(cfg.Budget, logger))
	}
	if cfg.Plausibility.Enabled {
		if deps.Asker == nil {
			logger.Info("No AI service configured, cost plausibility disabled")
		} else {
			out = append(out, NewPlausibility(cfg.Plausibility, deps.Asker, deps.Prices, logger))
		}
	}
	if cfg.Sequencing.Enabled {
		out = append(out, NewSequencing(cfg.Sequencing, deps.Schedule, logger))
	}
	if cfg.Delta.Enabled {
		out = append(out, NewDeltaCost(cfg.Delta, logger))
	}
	return out
}
