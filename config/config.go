// Package config provides configuration loading and management for semaudit.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/semaudit/element"
	"github.com/c360studio/semaudit/llm"
	"github.com/c360studio/semaudit/rules"
	"gopkg.in/yaml.v3"
)

// Config represents the complete semaudit configuration
type Config struct {
	Flatten FlattenConfig `yaml:"flatten"`
	Rules   rules.Config  `yaml:"rules"`
	AI      AIConfig      `yaml:"ai"`
	Inputs  InputsConfig  `yaml:"inputs"`
	Report  ReportConfig  `yaml:"report"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// FlattenConfig controls which model nodes become evaluated elements
type FlattenConfig struct {
	// ExcludedTypes are type-tag fragments of organizational nodes (empty = defaults)
	ExcludedTypes []string `yaml:"excluded_types,omitempty"`
	// IncludeHosts also evaluates containers carrying their own id, e.g. a wall hosting doors
	IncludeHosts bool `yaml:"include_hosts"`
}

// Flattener builds the element flattener for this configuration.
func (f FlattenConfig) Flattener() element.Flattener {
	return element.Flattener{ExcludedTypes: f.ExcludedTypes, IncludeHosts: f.IncludeHosts}
}

// AIConfig configures the AI service used by the cost plausibility check
type AIConfig struct {
	// Endpoints is the fallback chain, tried in order. Empty disables the check.
	Endpoints []llm.Endpoint `yaml:"endpoints"`
	// Temperature controls randomness (0.0-1.0, default: 0.1)
	Temperature float64 `yaml:"temperature"`
	// MaxTokens limits the reply length (0 = provider default)
	MaxTokens int `yaml:"max_tokens,omitempty"`
	// Timeout is the per-call network timeout (e.g. "30s")
	Timeout string `yaml:"timeout"`
	// MaxAttempts is the number of attempts per endpoint
	MaxAttempts int `yaml:"max_attempts"`
	// Backoff is the initial backoff after a transient failure (e.g. "2s")
	Backoff string `yaml:"backoff"`
	// RateLimitBackoff is the initial backoff after a rate-limit response (e.g. "10s")
	RateLimitBackoff string `yaml:"rate_limit_backoff"`
}

// InputsConfig points at the external documents read at run start
type InputsConfig struct {
	// Prices is the price reference list (JSON array). Missing file = empty list.
	Prices string `yaml:"prices"`
	// Schedule is the 4D schedule document. Missing file = no schedule.
	Schedule string `yaml:"schedule"`
}

// ReportConfig configures file reports
type ReportConfig struct {
	// OutputDir is where reports and annotations are written
	OutputDir string `yaml:"output_dir"`
	HTML      bool   `yaml:"html"`
	CSV       bool   `yaml:"csv"`
}

// NotifyConfig configures outbound notifications
type NotifyConfig struct {
	// WebhookURL is the chat webhook (empty = disabled)
	WebhookURL string `yaml:"webhook_url"`
	// NATSURL is the NATS server to publish reports to (empty = disabled)
	NATSURL string `yaml:"nats_url"`
	// SubjectPrefix is prepended to the run ID to form the NATS subject
	SubjectPrefix string `yaml:"subject_prefix"`
	// Timeout bounds each notification (e.g. "10s")
	Timeout string `yaml:"timeout"`
}

// MetricsConfig configures Prometheus exposition in watch mode
type MetricsConfig struct {
	// Addr is the listen address (empty = disabled)
	Addr string `yaml:"addr"`
}

// Default durations, used when a duration string is empty or invalid.
const (
	DefaultAITimeout        = 30 * time.Second
	DefaultAIBackoff        = 2 * time.Second
	DefaultRateLimitBackoff = 10 * time.Second
	DefaultNotifyTimeout    = 10 * time.Second
)

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Rules: rules.DefaultConfig(),
		AI: AIConfig{
			Endpoints:        nil, // AI check disabled until configured
			Temperature:      0.1,
			Timeout:          DefaultAITimeout.String(),
			MaxAttempts:      3,
			Backoff:          DefaultAIBackoff.String(),
			RateLimitBackoff: DefaultRateLimitBackoff.String(),
		},
		Inputs: InputsConfig{
			Prices:   "prices.json",
			Schedule: "schedule.json",
		},
		Report: ReportConfig{
			OutputDir: "semaudit-out",
			HTML:      true,
			CSV:       true,
		},
		Notify: NotifyConfig{
			SubjectPrefix: "semaudit.report",
			Timeout:       DefaultNotifyTimeout.String(),
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("rules.%w", err)
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		return fmt.Errorf("ai.temperature must be between 0 and 1")
	}
	if c.AI.MaxAttempts < 1 {
		return fmt.Errorf("ai.max_attempts must be at least 1")
	}
	for i, ep := range c.AI.Endpoints {
		if ep.Provider == "" {
			return fmt.Errorf("ai.endpoints[%d].provider is required", i)
		}
		if ep.Model == "" {
			return fmt.Errorf("ai.endpoints[%d].model is required", i)
		}
	}
	for name, d := range map[string]string{
		"ai.timeout":            c.AI.Timeout,
		"ai.backoff":            c.AI.Backoff,
		"ai.rate_limit_backoff": c.AI.RateLimitBackoff,
		"notify.timeout":        c.Notify.Timeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, d)
		}
	}
	if c.Report.OutputDir == "" && (c.Report.HTML || c.Report.CSV) {
		return fmt.Errorf("report.output_dir is required when html or csv reports are enabled")
	}
	return nil
}

// GetTimeout returns the AI call timeout, falling back to the default
func (a AIConfig) GetTimeout() time.Duration {
	return parseDuration(a.Timeout, DefaultAITimeout)
}

// RetryConfig builds the AI retry policy
func (a AIConfig) RetryConfig() llm.RetryConfig {
	cfg := llm.DefaultRetryConfig()
	if a.MaxAttempts > 0 {
		cfg.MaxAttempts = a.MaxAttempts
	}
	cfg.BackoffBase = parseDuration(a.Backoff, DefaultAIBackoff)
	cfg.RateLimitBackoff = parseDuration(a.RateLimitBackoff, DefaultRateLimitBackoff)
	return cfg
}

// GetTimeout returns the notification timeout, falling back to the default
func (n NotifyConfig) GetTimeout() time.Duration {
	return parseDuration(n.Timeout, DefaultNotifyTimeout)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := config.overlay(path); err != nil {
		return nil, err
	}
	return config, nil
}

// overlay reads a YAML file onto c. Keys absent from the file keep their
// current values; lists present in the file replace the current ones.
func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges command-line overrides into this config (other takes
// precedence for non-zero values). Rule settings are file-only.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// AI
	if len(other.AI.Endpoints) > 0 {
		c.AI.Endpoints = other.AI.Endpoints
	}
	if other.AI.Timeout != "" {
		c.AI.Timeout = other.AI.Timeout
	}

	// Inputs
	if other.Inputs.Prices != "" {
		c.Inputs.Prices = other.Inputs.Prices
	}
	if other.Inputs.Schedule != "" {
		c.Inputs.Schedule = other.Inputs.Schedule
	}

	// Report
	if other.Report.OutputDir != "" {
		c.Report.OutputDir = other.Report.OutputDir
	}

	// Notify
	if other.Notify.WebhookURL != "" {
		c.Notify.WebhookURL = other.Notify.WebhookURL
	}
	if other.Notify.NATSURL != "" {
		c.Notify.NATSURL = other.Notify.NATSURL
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}

// ApplyEnv applies environment overrides for secrets and deployment-specific
// endpoints.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SEMAUDIT_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Notify.NATSURL = v
	}
}
