package rules

import (
	"fmt"
	"time"

	"github.com/c360studio/semaudit/params"
	"github.com/c360studio/semaudit/pricing"
)

// Config holds the static configuration of every rule. It is built once at
// startup and passed by value into the rule constructors.
type Config struct {
	Completeness CompletenessConfig `yaml:"completeness" json:"completeness"`
	Sealing      SealingConfig      `yaml:"sealing" json:"sealing"`
	Budget       BudgetConfig       `yaml:"budget" json:"budget"`
	Plausibility PlausibilityConfig `yaml:"plausibility" json:"plausibility"`
	Sequencing   SequencingConfig   `yaml:"sequencing" json:"sequencing"`
	Delta        DeltaConfig        `yaml:"delta" json:"delta"`
}

// CompletenessConfig configures the data census.
type CompletenessConfig struct {
	Enabled    bool       `yaml:"enabled" json:"enabled"`
	Categories []string   `yaml:"categories" json:"categories"`
	Parameter  params.Ref `yaml:"parameter" json:"parameter"`
	Severity   Severity   `yaml:"severity" json:"severity"`
	Label      string     `yaml:"label,omitempty" json:"label,omitempty"`
}

// SealingConfig configures the yes/no compliance check on openings.
type SealingConfig struct {
	Enabled      bool       `yaml:"enabled" json:"enabled"`
	Categories   []string   `yaml:"categories" json:"categories"`
	Parameter    params.Ref `yaml:"parameter" json:"parameter"`
	TruthyValues []string   `yaml:"truthy_values,omitempty" json:"truthy_values,omitempty"`
	Severity     Severity   `yaml:"severity" json:"severity"`
	Label        string     `yaml:"label,omitempty" json:"label,omitempty"`
}

// CategoryBudget is a cost ceiling for one category.
type CategoryBudget struct {
	Category string  `yaml:"category" json:"category"`
	Limit    float64 `yaml:"limit" json:"limit"`
}

// BudgetConfig configures the per-category cost aggregation.
type BudgetConfig struct {
	Enabled       bool             `yaml:"enabled" json:"enabled"`
	CostParameter params.Ref       `yaml:"cost_parameter" json:"cost_parameter"`
	Budgets       []CategoryBudget `yaml:"budgets" json:"budgets"`
	Currency      string           `yaml:"currency,omitempty" json:"currency,omitempty"`
	Severity      Severity         `yaml:"severity" json:"severity"`
	Label         string           `yaml:"label,omitempty" json:"label,omitempty"`
}

// PlausibilityConfig configures the AI-assisted cost check.
type PlausibilityConfig struct {
	Enabled              bool       `yaml:"enabled" json:"enabled"`
	DescriptionParameter params.Ref `yaml:"description_parameter" json:"description_parameter"`
	CostParameter        params.Ref `yaml:"cost_parameter" json:"cost_parameter"`

	// PhaseAttribute is the element attribute marking a demolished element.
	PhaseAttribute string `yaml:"phase_attribute,omitempty" json:"phase_attribute,omitempty"`

	// DemolitionSuffix is appended to the description to find the demolition
	// price entry.
	DemolitionSuffix string `yaml:"demolition_suffix,omitempty" json:"demolition_suffix,omitempty"`

	// LowCostThreshold flags costs below it without asking the AI service.
	// Zero disables the cutoff.
	LowCostThreshold float64 `yaml:"low_cost_threshold,omitempty" json:"low_cost_threshold,omitempty"`

	// CallDelay is the pause between consecutive AI calls (e.g. "1s").
	CallDelay string `yaml:"call_delay,omitempty" json:"call_delay,omitempty"`

	Currency string   `yaml:"currency,omitempty" json:"currency,omitempty"`
	Severity Severity `yaml:"severity" json:"severity"`
	Label    string   `yaml:"label,omitempty" json:"label,omitempty"`
}

// defaultCallDelay paces AI calls when CallDelay is unset or invalid.
const defaultCallDelay = 500 * time.Millisecond

// GetCallDelay parses CallDelay, falling back to the default.
func (c PlausibilityConfig) GetCallDelay() time.Duration {
	if c.CallDelay == "" {
		return defaultCallDelay
	}
	d, err := time.ParseDuration(c.CallDelay)
	if err != nil || d < 0 {
		return defaultCallDelay
	}
	return d
}

// SequencingConfig configures the 4D schedule consistency check.
type SequencingConfig struct {
	Enabled       bool       `yaml:"enabled" json:"enabled"`
	TaskParameter params.Ref `yaml:"task_parameter" json:"task_parameter"`

	// LocationAttribute is the element attribute holding its actual location.
	// Object values use their "name" field.
	LocationAttribute string   `yaml:"location_attribute" json:"location_attribute"`
	Severity          Severity `yaml:"severity" json:"severity"`
	Label             string   `yaml:"label,omitempty" json:"label,omitempty"`
}

// DeltaConfig configures the previous-version cost comparison.
type DeltaConfig struct {
	Enabled            bool       `yaml:"enabled" json:"enabled"`
	CostParameter      params.Ref `yaml:"cost_parameter" json:"cost_parameter"`
	MaxIncreasePercent float64    `yaml:"max_increase_percent" json:"max_increase_percent"`
	Currency           string     `yaml:"currency,omitempty" json:"currency,omitempty"`
	Severity           Severity   `yaml:"severity" json:"severity"`
	Label              string     `yaml:"label,omitempty" json:"label,omitempty"`
}

// Default parameter references.
var (
	DefaultFireRating  = params.Ref{Group: "Testo", Name: "Fire_Rating"}
	DefaultFireSeal    = params.Ref{Group: "Altro", Name: "Sigillatura_Rei_Installation"}
	DefaultUnitCost    = params.Ref{Group: "Dati identità", Name: "Costo"}
	DefaultDescription = params.Ref{Group: "Dati identità", Name: "Descrizione"}
	DefaultTask        = params.Ref{Group: "Fasi", Name: "Task_4D"}
)

// DefaultConfig returns the default rule configuration.
func DefaultConfig() Config {
	return Config{
		Completeness: CompletenessConfig{
			Enabled:    true,
			Categories: []string{"Muri", "Pavimenti"},
			Parameter:  DefaultFireRating,
			Severity:   SeverityError,
		},
		Sealing: SealingConfig{
			Enabled:    true,
			Categories: []string{"Porte", "Finestre"},
			Parameter:  DefaultFireSeal,
			Severity:   SeverityError,
			Label:      "Unsealed Fire Penetration",
		},
		Budget: BudgetConfig{
			Enabled:       true,
			CostParameter: DefaultUnitCost,
			Currency:      "EUR",
			Severity:      SeverityError,
			Label:         "Budget Exceeded",
		},
		Plausibility: PlausibilityConfig{
			Enabled:              true,
			DescriptionParameter: DefaultDescription,
			CostParameter:        DefaultUnitCost,
			PhaseAttribute:       "phaseDemolished",
			DemolitionSuffix:     pricing.DefaultDemolitionSuffix,
			CallDelay:            defaultCallDelay.String(),
			Currency:             "EUR",
			Severity:             SeverityWarning,
			Label:                "Cost Inconsistency",
		},
		Sequencing: SequencingConfig{
			Enabled:           true,
			TaskParameter:     DefaultTask,
			LocationAttribute: "level",
			Severity:          SeverityWarning,
			Label:             "Schedule Mismatch",
		},
		Delta: DeltaConfig{
			Enabled:            true,
			CostParameter:      DefaultUnitCost,
			MaxIncreasePercent: 20,
			Currency:           "EUR",
			Severity:           SeverityWarning,
			Label:              "Cost Increase",
		},
	}
}

// Validate checks the configuration of enabled rules.
func (c Config) Validate() error {
	checkSeverity := func(rule string, s Severity) error {
		if !s.Valid() {
			return fmt.Errorf("%s: invalid severity %q (want error or warning)", rule, s)
		}
		return nil
	}

	if c.Completeness.Enabled {
		if err := checkSeverity(IDCompleteness, c.Completeness.Severity); err != nil {
			return err
		}
		if c.Completeness.Parameter.Name == "" {
			return fmt.Errorf("%s: parameter name is required", IDCompleteness)
		}
	}

	if c.Sealing.Enabled {
		if err := checkSeverity(IDSealing, c.Sealing.Severity); err != nil {
			return err
		}
		if c.Sealing.Parameter.Name == "" {
			return fmt.Errorf("%s: parameter name is required", IDSealing)
		}
	}

	if c.Budget.Enabled {
		if err := checkSeverity(IDBudget, c.Budget.Severity); err != nil {
			return err
		}
		for _, b := range c.Budget.Budgets {
			if b.Category == "" {
				return fmt.Errorf("%s: budget category is required", IDBudget)
			}
			if b.Limit < 0 {
				return fmt.Errorf("%s: budget for %q must not be negative", IDBudget, b.Category)
			}
		}
	}

	if c.Plausibility.Enabled {
		if err := checkSeverity(IDPlausibility, c.Plausibility.Severity); err != nil {
			return err
		}
		if c.Plausibility.LowCostThreshold < 0 {
			return fmt.Errorf("%s: low_cost_threshold must not be negative", IDPlausibility)
		}
		if c.Plausibility.CallDelay != "" {
			if _, err := time.ParseDuration(c.Plausibility.CallDelay); err != nil {
				return fmt.Errorf("%s: invalid call_delay: %w", IDPlausibility, err)
			}
		}
	}

	if c.Sequencing.Enabled {
		if err := checkSeverity(IDSequencing, c.Sequencing.Severity); err != nil {
			return err
		}
		if c.Sequencing.LocationAttribute == "" {
			return fmt.Errorf("%s: location_attribute is required", IDSequencing)
		}
	}

	if c.Delta.Enabled {
		if err := checkSeverity(IDDeltaCost, c.Delta.Severity); err != nil {
			return err
		}
		if c.Delta.MaxIncreasePercent < 0 {
			return fmt.Errorf("%s: max_increase_percent must not be negative", IDDeltaCost)
		}
	}

	return nil
}
