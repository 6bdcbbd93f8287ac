package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/semaudit/element"
	"github.com/c360studio/semaudit/llm"
	"github.com/c360studio/semaudit/params"
	"github.com/c360studio/semaudit/pricing"
)

// Asker is the AI completion service: it takes a prompt and returns the raw
// reply text, expected to hold a JSON judgment.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Judgment is the AI service's verdict on one modelled cost.
type Judgment struct {
	IsConsistent  bool
	Justification string
	SuggestedCost *float64
}

// ParseJudgment reads a judgment from a reply. The reply may wrap the JSON
// object in prose or markdown fences; is_consistent is required.
func ParseJudgment(reply string) (Judgment, error) {
	var raw struct {
		IsConsistent  any    `json:"is_consistent"`
		Justification string `json:"justification"`
		SuggestedCost any    `json:"suggested_cost"`
	}
	if err := llm.DecodeJSON(reply, &raw); err != nil {
		return Judgment{}, err
	}

	var j Judgment
	switch v := raw.IsConsistent.(type) {
	case bool:
		j.IsConsistent = v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			j.IsConsistent = true
		case "false":
			j.IsConsistent = false
		default:
			return Judgment{}, fmt.Errorf("is_consistent: unexpected value %q", v)
		}
	case nil:
		return Judgment{}, errors.New("is_consistent missing from reply")
	default:
		return Judgment{}, fmt.Errorf("is_consistent: unexpected type %T", v)
	}

	j.Justification = strings.TrimSpace(raw.Justification)
	if cost, ok := params.Number(raw.SuggestedCost); ok {
		j.SuggestedCost = &cost
	}
	return j, nil
}

// Plausibility asks the AI service whether each element's modelled unit cost
// is consistent with the reference price list. Elements without a description,
// a numeric cost, a price entry or a reference cost are skipped. Any AI failure
// yields no finding for that element.
type Plausibility struct {
	cfg    PlausibilityConfig
	asker  Asker
	prices *pricing.List
	delay  time.Duration
	logger *slog.Logger
}

// NewPlausibility creates the AI-assisted cost check.
func NewPlausibility(cfg PlausibilityConfig, asker Asker, prices *pricing.List, logger *slog.Logger) *Plausibility {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plausibility{
		cfg:    cfg,
		asker:  asker,
		prices: prices,
		delay:  cfg.GetCallDelay(),
		logger: logger,
	}
}

// ID implements Rule.
func (r *Plausibility) ID() string { return IDPlausibility }

// Description implements Rule.
func (r *Plausibility) Description() string {
	if r.cfg.Label != "" {
		return r.cfg.Label
	}
	return "Cost Inconsistency"
}

// candidate is an element with everything needed to ask about its cost.
type candidate struct {
	el          *element.Node
	description string
	cost        float64
	reference   float64
	unit        string
	demolition  bool
}

// Evaluate implements Rule. AI calls are made one at a time, paced by the
// configured call delay.
func (r *Plausibility) Evaluate(ctx context.Context, in Input) []Finding {
	if r.asker == nil {
		r.logger.Warn("No AI service configured, skipping cost plausibility", "rule", IDPlausibility)
		return nil
	}

	resolver := in.resolver()
	var findings []Finding
	calls, failures := 0, 0

	for _, el := range in.Elements {
		if ctx.Err() != nil {
			r.logger.Warn("Cost plausibility interrupted", "rule", IDPlausibility, "error", ctx.Err())
			break
		}

		c, ok := r.candidate(resolver, el)
		if !ok {
			continue
		}

		if r.cfg.LowCostThreshold > 0 && c.cost < r.cfg.LowCostThreshold {
			findings = append(findings, r.finding(c, fmt.Sprintf(
				"Modelled cost %s for '%s' is below the minimum plausible cost of %s.",
				r.amount(c.cost, c.unit), c.description, r.amount(r.cfg.LowCostThreshold, c.unit))))
			continue
		}

		if calls > 0 && r.delay > 0 {
			if err := wait(ctx, r.delay); err != nil {
				r.logger.Warn("Cost plausibility interrupted", "rule", IDPlausibility, "error", err)
				break
			}
		}
		calls++

		reply, err := r.asker.Ask(ctx, r.prompt(c))
		if err != nil {
			failures++
			r.logger.Warn("AI call failed, treating element as consistent",
				"rule", IDPlausibility,
				"element_id", el.ID,
				"error", err)
			continue
		}

		j, err := ParseJudgment(reply)
		if err != nil {
			failures++
			r.logger.Warn("Unparseable AI reply, treating element as consistent",
				"rule", IDPlausibility,
				"element_id", el.ID,
				"error", err)
			continue
		}
		if j.IsConsistent {
			continue
		}

		msg := fmt.Sprintf("Modelled cost %s for '%s' is inconsistent with the reference %s: %s",
			r.amount(c.cost, c.unit), c.description, r.amount(c.reference, c.unit), sentence(j.Justification))
		if j.SuggestedCost != nil {
			msg += fmt.Sprintf(" Suggested cost: %s.", r.amount(*j.SuggestedCost, c.unit))
		}
		findings = append(findings, r.finding(c, msg))
	}

	r.logger.Debug("Cost plausibility finished",
		"rule", IDPlausibility,
		"ai_calls", calls,
		"ai_failures", failures)
	return findings
}

func (r *Plausibility) candidate(resolver *params.Resolver, el *element.Node) (candidate, bool) {
	raw, ok := resolver.Get(el, r.cfg.DescriptionParameter)
	if !ok {
		return candidate{}, false
	}
	description, ok := params.Text(raw)
	description = strings.TrimSpace(description)
	if !ok || description == "" {
		return candidate{}, false
	}

	cost, ok := unitCost(resolver, el, r.cfg.CostParameter)
	if !ok {
		r.logger.Debug("No numeric unit cost, skipping", "rule", IDPlausibility, "element_id", el.ID)
		return candidate{}, false
	}

	demolition := r.demolished(el)
	entry, ok := r.prices.LookupVariant(description, demolition, r.cfg.DemolitionSuffix)
	if !ok {
		r.logger.Debug("No price entry, skipping",
			"rule", IDPlausibility,
			"element_id", el.ID,
			"description", description)
		return candidate{}, false
	}

	reference, basis, ok := entry.ReferenceCost(demolition)
	if !ok {
		return candidate{}, false
	}

	unit := entry.Unit
	if basis == pricing.BasisMass {
		unit = string(pricing.BasisMass)
	}

	return candidate{
		el:          el,
		description: description,
		cost:        cost,
		reference:   reference,
		unit:        unit,
		demolition:  demolition,
	}, true
}

func (r *Plausibility) demolished(el *element.Node) bool {
	if r.cfg.PhaseAttribute == "" {
		return false
	}
	v, ok := el.Field(r.cfg.PhaseAttribute)
	if !ok {
		return false
	}
	if s, isString := v.(string); isString {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "", "none", "no", "false", "0":
			return false
		default:
			return true
		}
	}
	return params.Truthy(v, nil)
}

func (r *Plausibility) prompt(c candidate) string {
	work := "new construction"
	if c.demolition {
		work = "demolition"
	}
	return fmt.Sprintf(`A building model element has the following cost data.

Description: %s
Work type: %s
Modelled unit cost: %s
Reference unit cost from the price list: %s

Is the modelled cost consistent with the reference cost for this kind of work?
Reply with a JSON object with exactly these keys:
{"is_consistent": true or false, "justification": "one short sentence", "suggested_cost": number or null}`,
		c.description, work, r.amount(c.cost, c.unit), r.amount(c.reference, c.unit))
}

func (r *Plausibility) finding(c candidate, msg string) Finding {
	return Finding{
		RuleID:    IDPlausibility,
		Rule:      r.Description(),
		Severity:  r.cfg.Severity,
		ElementID: c.el.ID,
		Category:  c.el.Category,
		Message:   msg,
	}
}

func (r *Plausibility) amount(v float64, unit string) string {
	s := formatAmount(v, r.cfg.Currency)
	if unit != "" {
		s += "/" + unit
	}
	return s
}

func sentence(s string) string {
	if s == "" {
		return "no justification given."
	}
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
