package automation

import (
	"github.com/c360studio/semaudit/aggregation"
	"github.com/c360studio/semaudit/rules"
)

// Annotation is one group of findings attached to model objects, sharing a
// rule category and severity.
type Annotation struct {
	Category string         `json:"category"`
	Severity rules.Severity `json:"severity"`
	Message  string         `json:"message"`
	// Color is the visual override applied to the affected objects.
	Color   string   `json:"color"`
	Objects []Object `json:"objects"`
}

// Object is one affected element. Category-level findings have no ID.
type Object struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// Colors maps findings to visual override colours. ByRule entries, keyed by
// rule ID, win over the per-severity defaults.
type Colors struct {
	ByRule  map[string]string `yaml:"by_rule" json:"by_rule"`
	Error   string            `yaml:"error" json:"error"`
	Warning string            `yaml:"warning" json:"warning"`
}

// DefaultColors returns red for errors and dark orange for warnings and
// fire penetrations.
func DefaultColors() Colors {
	return Colors{
		ByRule: map[string]string{
			rules.IDCompleteness: "red",
			rules.IDSealing:      "#FF8C00",
		},
		Error:   "red",
		Warning: "#FF8C00",
	}
}

func (c Colors) color(ruleID string, severity rules.Severity) string {
	if v, ok := c.ByRule[ruleID]; ok && v != "" {
		return v
	}
	if severity == rules.SeverityWarning {
		return c.Warning
	}
	return c.Error
}

// Annotations groups the report's findings by rule category and severity.
// A group's message is the shared finding message, or the rule category when
// the messages differ.
func Annotations(rep *aggregation.Report, colors Colors) []Annotation {
	groups := rep.Groups()
	out := make([]Annotation, 0, len(groups))
	for _, g := range groups {
		a := Annotation{
			Category: g.Rule,
			Severity: g.Severity,
			Color:    colors.color(g.Findings[0].RuleID, g.Severity),
			Message:  g.Findings[0].Message,
		}
		for _, f := range g.Findings {
			if f.Message != a.Message {
				a.Message = g.Rule
			}
			a.Objects = append(a.Objects, Object{ID: f.ElementID, Message: f.Message})
		}
		out = append(out, a)
	}
	return out
}
