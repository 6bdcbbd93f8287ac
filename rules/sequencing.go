package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semaudit/element"
	"github.com/c360studio/semaudit/params"
	"github.com/c360studio/semaudit/schedule"
)

// Sequencing cross-references each element's assigned 4D task with the
// schedule and flags elements placed outside the task's expected location.
type Sequencing struct {
	cfg      SequencingConfig
	schedule *schedule.Schedule
	logger   *slog.Logger
}

// NewSequencing creates the schedule consistency rule.
func NewSequencing(cfg SequencingConfig, sched *schedule.Schedule, logger *slog.Logger) *Sequencing {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencing{cfg: cfg, schedule: sched, logger: logger}
}

// ID implements Rule.
func (r *Sequencing) ID() string { return IDSequencing }

// Description implements Rule.
func (r *Sequencing) Description() string {
	if r.cfg.Label != "" {
		return r.cfg.Label
	}
	return "Schedule Mismatch"
}

// Evaluate implements Rule. Unassigned elements and tasks missing from the
// schedule are skipped. Locations match by case-insensitive substring.
func (r *Sequencing) Evaluate(_ context.Context, in Input) []Finding {
	if r.schedule.Len() == 0 {
		return nil
	}
	resolver := in.resolver()

	var findings []Finding
	for _, el := range in.Elements {
		raw, ok := resolver.Get(el, r.cfg.TaskParameter)
		if !ok {
			continue
		}
		task, _ := params.Text(raw)
		task = strings.TrimSpace(task)
		if task == "" {
			continue
		}

		expected, ok := r.schedule.Location(task)
		if !ok {
			r.logger.Debug("Task not in schedule, skipping",
				"rule", IDSequencing,
				"element_id", el.ID,
				"task", task)
			continue
		}

		actual := r.location(el)
		if strings.Contains(strings.ToLower(actual), strings.ToLower(expected)) {
			continue
		}

		where := actual
		if where == "" {
			where = "no location"
		}
		findings = append(findings, Finding{
			RuleID:    IDSequencing,
			Rule:      r.Description(),
			Severity:  r.cfg.Severity,
			ElementID: el.ID,
			Category:  el.Category,
			Message: fmt.Sprintf("Element is assigned to task '%s' scheduled on '%s', but is placed on '%s'.",
				task, expected, where),
		})
	}
	return findings
}

// location reads the element location attribute. Object values such as a
// level reference use their name.
func (r *Sequencing) location(el *element.Node) string {
	v, ok := el.Field(r.cfg.LocationAttribute)
	if !ok {
		return ""
	}
	if obj, isObj := v.(map[string]any); isObj {
		v = obj["name"]
	}
	s, _ := params.Text(v)
	return strings.TrimSpace(s)
}
