package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/c360studio/semaudit/aggregation"
	"github.com/c360studio/semaudit/report"
	"github.com/c360studio/semaudit/rules"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

// ReportPayload is the published form of one evaluation.
type ReportPayload struct {
	// RunID identifies the evaluation
	RunID string `json:"run_id"`

	// Model is the evaluated model version
	Model string `json:"model,omitempty"`

	// Started is when the evaluation began
	Started time.Time `json:"started"`

	// Verdict is passed, passed_with_warnings or failed
	Verdict string `json:"verdict"`

	// Summary is the plain-text summary line
	Summary string `json:"summary"`

	Total    int `json:"total"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`

	// Counts holds the number of findings per rule description
	Counts []aggregation.RuleCount `json:"counts"`

	// Findings holds every finding
	Findings []rules.Finding `json:"findings"`
}

// NewReportPayload builds the payload for a run.
func NewReportPayload(run report.Run, rep *aggregation.Report) *ReportPayload {
	return &ReportPayload{
		RunID:    run.ID,
		Model:    run.Model,
		Started:  run.Started,
		Verdict:  rep.Verdict(),
		Summary:  rep.Summary(),
		Total:    rep.Total,
		Errors:   rep.Errors(),
		Warnings: rep.Warnings(),
		Counts:   rep.Counts,
		Findings: rep.Findings,
	}
}

// Schema returns the message type for ReportPayload.
func (p *ReportPayload) Schema() message.Type {
	return ReportType
}

// Validate validates the ReportPayload.
func (p *ReportPayload) Validate() error {
	if p.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if p.Verdict == "" {
		return fmt.Errorf("verdict is required")
	}
	return nil
}

// MarshalJSON marshals the ReportPayload to JSON.
func (p *ReportPayload) MarshalJSON() ([]byte, error) {
	type Alias ReportPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON unmarshals the ReportPayload from JSON.
func (p *ReportPayload) UnmarshalJSON(data []byte) error {
	type Alias ReportPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// ReportType is the message type for evaluation reports.
var ReportType = message.Type{
	Domain:   "semaudit",
	Category: "report",
	Version:  "v1",
}

func init() {
	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "semaudit",
		Category:    "report",
		Version:     "v1",
		Description: "Design model validation report",
		Factory:     func() any { return &ReportPayload{} },
	}); err != nil {
		log.Printf("ERROR: failed to register ReportPayload: %v", err)
	}
}
