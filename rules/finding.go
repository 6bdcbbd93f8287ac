package rules

import "fmt"

// Severity is the seriousness of a finding.
type Severity string

// Severity constants.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityError || s == SeverityWarning
}

// Finding is one rule violation. Findings are values and are never modified
// after a rule returns them.
type Finding struct {
	// RuleID identifies the rule that produced the finding.
	RuleID string `json:"rule_id"`

	// Rule is the rule description the finding is counted and grouped under,
	// e.g. "Missing Data: Fire_Rating".
	Rule string `json:"rule"`

	Severity Severity `json:"severity"`

	// ElementID is empty for findings that are not about a single element,
	// such as a budget overrun.
	ElementID string `json:"element_id,omitempty"`

	// Category is the element category, or the budget category for
	// category-scoped findings.
	Category string `json:"category,omitempty"`

	Message string `json:"message"`
}

// String formats the finding for logs.
func (f Finding) String() string {
	if f.ElementID == "" {
		return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Rule, f.Message)
	}
	return fmt.Sprintf("[%s] %s (%s): %s", f.Severity, f.Rule, f.ElementID, f.Message)
}
