package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/semaudit/llm"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.AI.Endpoints) != 0 {
		t.Errorf("expected no AI endpoints by default, got %d", len(cfg.AI.Endpoints))
	}
	if cfg.AI.Temperature != 0.1 {
		t.Errorf("expected default temperature 0.1, got %f", cfg.AI.Temperature)
	}
	if cfg.Inputs.Prices != "prices.json" {
		t.Errorf("expected default prices file prices.json, got %s", cfg.Inputs.Prices)
	}
	if cfg.Notify.SubjectPrefix != "semaudit.report" {
		t.Errorf("expected subject prefix semaudit.report, got %s", cfg.Notify.SubjectPrefix)
	}
	if !cfg.Rules.Completeness.Enabled {
		t.Error("expected completeness rule enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "temperature too low",
			modify:  func(c *Config) { c.AI.Temperature = -0.1 },
			wantErr: true,
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.AI.Temperature = 1.1 },
			wantErr: true,
		},
		{
			name:    "zero attempts",
			modify:  func(c *Config) { c.AI.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name: "endpoint without model",
			modify: func(c *Config) {
				c.AI.Endpoints = []llm.Endpoint{{Provider: "ollama"}}
			},
			wantErr: true,
		},
		{
			name: "endpoint without provider",
			modify: func(c *Config) {
				c.AI.Endpoints = []llm.Endpoint{{Model: "qwen"}}
			},
			wantErr: true,
		},
		{
			name:    "bad duration",
			modify:  func(c *Config) { c.AI.Backoff = "soon" },
			wantErr: true,
		},
		{
			name:    "invalid rule severity",
			modify:  func(c *Config) { c.Rules.Budget.Severity = "fatal" },
			wantErr: true,
		},
		{
			name:    "reports without output dir",
			modify:  func(c *Config) { c.Report.OutputDir = "" },
			wantErr: true,
		},
		{
			name: "no reports and no output dir",
			modify: func(c *Config) {
				c.Report = ReportConfig{}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "semaudit.yaml")

	content := `
ai:
  endpoints:
    - name: local
      provider: ollama
      url: http://localhost:11434/v1
      model: qwen2.5:7b
  timeout: 45s
inputs:
  prices: data/prices.json
rules:
  budget:
    budgets:
      - category: Muri
        limit: 120000
  completeness:
    categories: [Muri]
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if len(cfg.AI.Endpoints) != 1 || cfg.AI.Endpoints[0].Model != "qwen2.5:7b" {
		t.Errorf("expected one endpoint with model qwen2.5:7b, got %+v", cfg.AI.Endpoints)
	}
	if got := cfg.AI.GetTimeout(); got != 45*time.Second {
		t.Errorf("expected timeout 45s, got %v", got)
	}
	if cfg.Inputs.Prices != "data/prices.json" {
		t.Errorf("expected prices data/prices.json, got %s", cfg.Inputs.Prices)
	}
	// Unset keys keep their defaults
	if cfg.Inputs.Schedule != "schedule.json" {
		t.Errorf("expected default schedule, got %s", cfg.Inputs.Schedule)
	}
	if cfg.AI.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.AI.MaxAttempts)
	}
	if len(cfg.Rules.Budget.Budgets) != 1 || cfg.Rules.Budget.Budgets[0].Limit != 120000 {
		t.Errorf("unexpected budgets %+v", cfg.Rules.Budget.Budgets)
	}
	if got := cfg.Rules.Completeness.Categories; len(got) != 1 || got[0] != "Muri" {
		t.Errorf("expected completeness categories [Muri], got %v", got)
	}
	if cfg.Rules.Completeness.Parameter.Name != "Fire_Rating" {
		t.Errorf("expected default completeness parameter, got %+v", cfg.Rules.Completeness.Parameter)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("ai: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestRetryConfig(t *testing.T) {
	ai := DefaultConfig().AI
	ai.MaxAttempts = 5
	ai.Backoff = "1s"
	ai.RateLimitBackoff = "bogus"

	rc := ai.RetryConfig()
	if rc.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", rc.MaxAttempts)
	}
	if rc.BackoffBase != time.Second {
		t.Errorf("expected 1s backoff, got %v", rc.BackoffBase)
	}
	if rc.RateLimitBackoff != DefaultRateLimitBackoff {
		t.Errorf("expected default rate-limit backoff, got %v", rc.RateLimitBackoff)
	}
	if rc.MaxBackoff != llm.DefaultRetryConfig().MaxBackoff {
		t.Errorf("expected default max backoff, got %v", rc.MaxBackoff)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Inputs: InputsConfig{Prices: "other.json"},
		Notify: NotifyConfig{WebhookURL: "https://chat.example/hook"},
	}

	base.Merge(override)

	if base.Inputs.Prices != "other.json" {
		t.Errorf("expected merged prices other.json, got %s", base.Inputs.Prices)
	}
	if base.Notify.WebhookURL != "https://chat.example/hook" {
		t.Errorf("expected merged webhook, got %s", base.Notify.WebhookURL)
	}
	// Schedule should remain unchanged
	if base.Inputs.Schedule != "schedule.json" {
		t.Errorf("expected schedule unchanged, got %s", base.Inputs.Schedule)
	}

	base.Merge(nil)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SEMAUDIT_WEBHOOK_URL", "https://chat.example/env")
	t.Setenv("NATS_URL", "nats://nats:4222")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Notify.WebhookURL != "https://chat.example/env" {
		t.Errorf("expected webhook from env, got %s", cfg.Notify.WebhookURL)
	}
	if cfg.Notify.NATSURL != "nats://nats:4222" {
		t.Errorf("expected NATS URL from env, got %s", cfg.Notify.NATSURL)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Report.OutputDir = "out"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load it back
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}

	if loaded.Report.OutputDir != "out" {
		t.Errorf("expected output dir out, got %s", loaded.Report.OutputDir)
	}
	if loaded.Rules.Sealing.Label != "Unsealed Fire Penetration" {
		t.Errorf("expected sealing label preserved, got %s", loaded.Rules.Sealing.Label)
	}
}

func TestLoaderLayers(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	nested := filepath.Join(project, "models", "tower")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	user := DefaultConfig()
	user.Inputs.Prices = "user-prices.json"
	user.Notify.WebhookURL = "https://chat.example/user"
	if err := user.SaveToFile(filepath.Join(home, UserConfigDir, UserConfigFile)); err != nil {
		t.Fatal(err)
	}

	projectYAML := "inputs:\n  prices: project-prices.json\n"
	if err := os.WriteFile(filepath.Join(project, ProjectConfigFile), []byte(projectYAML), 0644); err != nil {
		t.Fatal(err)
	}

	explicit := filepath.Join(t.TempDir(), "ci.yaml")
	if err := os.WriteFile(explicit, []byte("report:\n  output_dir: ci-out\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(nil).WithHomeDir(home).WithWorkDir(nested).Load(explicit)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Inputs.Prices != "project-prices.json" {
		t.Errorf("project config should override user config, got %s", cfg.Inputs.Prices)
	}
	if cfg.Notify.WebhookURL != "https://chat.example/user" {
		t.Errorf("user config value should survive, got %s", cfg.Notify.WebhookURL)
	}
	if cfg.Report.OutputDir != "ci-out" {
		t.Errorf("explicit config should apply last, got %s", cfg.Report.OutputDir)
	}

	if _, err := NewLoader(nil).WithHomeDir(home).WithWorkDir(nested).Load(filepath.Join(project, "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	home := t.TempDir()
	loader := NewLoader(nil).WithHomeDir(home)

	if err := loader.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig failed: %v", err)
	}
	path := filepath.Join(home, UserConfigDir, UserConfigFile)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("user config not created: %v", err)
	}

	// Second call leaves the file alone
	if err := os.WriteFile(path, []byte("inputs:\n  prices: kept.json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := loader.EnsureUserConfig(); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Inputs.Prices != "kept.json" {
		t.Errorf("existing user config was overwritten")
	}
}

func TestFlattenConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "semaudit.yaml")
	content := "flatten:\n  include_hosts: true\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	f := cfg.Flatten.Flattener()
	if !f.IncludeHosts {
		t.Error("expected include_hosts to reach the flattener")
	}
	if f.ExcludedTypes != nil {
		t.Errorf("expected default excluded types, got %v", f.ExcludedTypes)
	}

	if DefaultConfig().Flatten.Flattener().IncludeHosts {
		t.Error("hosts should not be evaluated by default")
	}
}
