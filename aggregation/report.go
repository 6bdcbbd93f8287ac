// Package aggregation merges the findings of every rule into one report.
//
// Aggregate is pure: it never mutates its input and returns the same report for
// the same finding lists.
package aggregation

import (
	"fmt"
	"strings"

	"github.com/c360studio/semaudit/rules"
)

// Verdict constants for a report.
const (
	VerdictPassed       = "passed"
	VerdictWithWarnings = "passed_with_warnings"
	VerdictFailed       = "failed"
)

// RuleCount is the number of findings under one rule description.
type RuleCount struct {
	Rule   string `json:"rule"`
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// Group is the findings sharing a rule description and severity.
type Group struct {
	Rule     string          `json:"rule"`
	Severity rules.Severity  `json:"severity"`
	Findings []rules.Finding `json:"findings"`
}

// Report is the aggregated outcome of one evaluation.
type Report struct {
	// Findings holds every finding, in rule order then rule output order.
	Findings []rules.Finding `json:"findings"`

	// Counts holds one entry per rule description, in first-seen order.
	Counts []RuleCount `json:"counts"`

	Total      int                    `json:"total"`
	BySeverity map[rules.Severity]int `json:"by_severity"`
}

// Aggregate merges the per-rule finding lists.
func Aggregate(outputs [][]rules.Finding) *Report {
	r := &Report{
		Findings:   []rules.Finding{},
		Counts:     []RuleCount{},
		BySeverity: make(map[rules.Severity]int),
	}

	index := make(map[string]int)
	for _, findings := range outputs {
		for _, f := range findings {
			r.Findings = append(r.Findings, f)
			r.BySeverity[f.Severity]++

			i, ok := index[f.Rule]
			if !ok {
				i = len(r.Counts)
				index[f.Rule] = i
				r.Counts = append(r.Counts, RuleCount{Rule: f.Rule, RuleID: f.RuleID})
			}
			r.Counts[i].Count++
		}
	}
	r.Total = len(r.Findings)
	return r
}

// Count returns the number of findings under a rule description.
func (r *Report) Count(rule string) int {
	for _, c := range r.Counts {
		if c.Rule == rule {
			return c.Count
		}
	}
	return 0
}

// Errors returns the number of error-severity findings.
func (r *Report) Errors() int {
	return r.BySeverity[rules.SeverityError]
}

// Warnings returns the number of warning-severity findings.
func (r *Report) Warnings() int {
	return r.BySeverity[rules.SeverityWarning]
}

// Passed reports whether the run has no error-severity findings.
func (r *Report) Passed() bool {
	return r.Errors() == 0
}

// Verdict classifies the report.
func (r *Report) Verdict() string {
	switch {
	case r.Errors() > 0:
		return VerdictFailed
	case r.Total > 0:
		return VerdictWithWarnings
	default:
		return VerdictPassed
	}
}

// Groups returns the findings grouped by rule description and severity, in
// first-seen order.
func (r *Report) Groups() []Group {
	type key struct {
		rule     string
		severity rules.Severity
	}

	var groups []Group
	index := make(map[key]int)
	for _, f := range r.Findings {
		k := key{f.Rule, f.Severity}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Rule: f.Rule, Severity: f.Severity})
		}
		groups[i].Findings = append(groups[i].Findings, f)
	}
	return groups
}

// Summary is a one-paragraph plain-text summary of the report.
func (r *Report) Summary() string {
	var parts []string

	if r.Total == 0 {
		return "Validation passed: All rules were successful."
	}

	if r.Passed() {
		parts = append(parts, fmt.Sprintf("Validation passed with %d warnings.", r.Warnings()))
	} else {
		parts = append(parts, fmt.Sprintf("Validation failed with a total of %d errors.", r.Errors()))
	}

	var severityParts []string
	if n := r.Errors(); n > 0 {
		severityParts = append(severityParts, fmt.Sprintf("%d error", n))
	}
	if n := r.Warnings(); n > 0 {
		severityParts = append(severityParts, fmt.Sprintf("%d warning", n))
	}
	parts = append(parts, fmt.Sprintf("Found %d findings (%s).", r.Total, strings.Join(severityParts, ", ")))

	var ruleParts []string
	for _, c := range r.Counts {
		ruleParts = append(ruleParts, fmt.Sprintf("%s: %d", c.Rule, c.Count))
	}
	parts = append(parts, strings.Join(ruleParts, "; ")+".")

	return strings.Join(parts, " ")
}
