package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if !cfg.Enabled || !cfg.PatternCheckEnabled || !cfg.ModerationEnabled {
		t.Error("all checks should be enabled by default")
	}
	if cfg.AIThreshold != 0.7 {
		t.Errorf("AIThreshold = %v, want 0.7", cfg.AIThreshold)
	}
	if cfg.MinSubmissionTime != 3*time.Second {
		t.Errorf("MinSubmissionTime = %v, want 3s", cfg.MinSubmissionTime)
	}
	if cfg.DuplicateTimeframe != 24*time.Hour {
		t.Errorf("DuplicateTimeframe = %v, want 24h", cfg.DuplicateTimeframe)
	}
	if cfg.StrikeTTL != 15*time.Minute {
		t.Errorf("StrikeTTL = %v, want 15m", cfg.StrikeTTL)
	}
	if cfg.BlockAction != ActionMark {
		t.Errorf("BlockAction = %v, want mark", cfg.BlockAction)
	}
	if cfg.ModerationCallsPerHour != 60 {
		t.Errorf("ModerationCallsPerHour = %d, want 60", cfg.ModerationCallsPerHour)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FORMWARD_AI_THRESHOLD", "0.55")
	t.Setenv("FORMWARD_BLOCK_ACTION", "reject")
	t.Setenv("FORMWARD_MIN_SUBMISSION_TIME", "5s")
	t.Setenv("FORMWARD_STRIKE_TTL", "600") // bare seconds
	t.Setenv("FORMWARD_TIME_CHECK", "false")

	cfg := NewDefaultConfig()
	if cfg.AIThreshold != 0.55 {
		t.Errorf("AIThreshold = %v, want 0.55", cfg.AIThreshold)
	}
	if cfg.BlockAction != ActionReject {
		t.Errorf("BlockAction = %v, want reject", cfg.BlockAction)
	}
	if cfg.MinSubmissionTime != 5*time.Second {
		t.Errorf("MinSubmissionTime = %v, want 5s", cfg.MinSubmissionTime)
	}
	if cfg.StrikeTTL != 10*time.Minute {
		t.Errorf("StrikeTTL = %v, want 10m from bare seconds", cfg.StrikeTTL)
	}
	if cfg.TimeCheckEnabled {
		t.Error("TimeCheckEnabled should be overridden to false")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formward.yaml")
	data := []byte(`
ai_threshold: 0.6
block_action: reject
expected_language: de
min_submission_time: 10
log_retention_days: 30
moderation_model: gpt-4o-mini
redis_addr: localhost:6379
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AIThreshold != 0.6 {
		t.Errorf("AIThreshold = %v, want 0.6", cfg.AIThreshold)
	}
	if cfg.BlockAction != ActionReject {
		t.Errorf("BlockAction = %v", cfg.BlockAction)
	}
	if cfg.ExpectedLanguage != "de" {
		t.Errorf("ExpectedLanguage = %q", cfg.ExpectedLanguage)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.MinSubmissionTime != 10*time.Second {
		t.Errorf("MinSubmissionTime = %v, want 10s", cfg.MinSubmissionTime)
	}
	if cfg.LogRetention != 30*24*time.Hour {
		t.Errorf("LogRetention = %v, want 30 days", cfg.LogRetention)
	}
	// Untouched settings keep their defaults.
	if cfg.StrikeTTL != 15*time.Minute {
		t.Errorf("StrikeTTL = %v, want default 15m", cfg.StrikeTTL)
	}
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formward.yaml")
	if err := os.WriteFile(path, []byte("ai_threshold: 0.6\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FORMWARD_AI_THRESHOLD", "0.9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AIThreshold != 0.9 {
		t.Errorf("AIThreshold = %v, env must win over the file", cfg.AIThreshold)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above 1", func(c *Config) { c.AIThreshold = 1.5 }},
		{"threshold negative", func(c *Config) { c.AIThreshold = -0.1 }},
		{"bad block action", func(c *Config) { c.BlockAction = "explode" }},
		{"negative min time", func(c *Config) { c.MinSubmissionTime = -time.Second }},
		{"zero strike ttl", func(c *Config) { c.StrikeTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should reject this config")
			}
		})
	}
}

func TestPresets(t *testing.T) {
	strict := NewStrictConfig()
	if strict.AIThreshold >= NewDefaultConfig().AIThreshold {
		t.Error("strict preset should lower the threshold")
	}
	if strict.BlockAction != ActionReject {
		t.Error("strict preset should reject outright")
	}

	lenient := NewLenientConfig()
	if lenient.AIThreshold <= NewDefaultConfig().AIThreshold {
		t.Error("lenient preset should raise the threshold")
	}
	if lenient.TimeCheckEnabled {
		t.Error("lenient preset should disable the timing check")
	}
	for _, cfg := range []*Config{strict, lenient} {
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset should validate: %v", err)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("FW_TEST_DUR", "90s")
	if d := GetEnvDuration("FW_TEST_DUR", time.Minute); d != 90*time.Second {
		t.Errorf("duration syntax: got %v", d)
	}
	t.Setenv("FW_TEST_DUR", "120")
	if d := GetEnvDuration("FW_TEST_DUR", time.Minute); d != 2*time.Minute {
		t.Errorf("bare seconds: got %v", d)
	}
	t.Setenv("FW_TEST_DUR", "nonsense")
	if d := GetEnvDuration("FW_TEST_DUR", time.Minute); d != time.Minute {
		t.Errorf("unparseable value should fall back: got %v", d)
	}
}

func TestGetEnvSlice(t *testing.T) {
	t.Setenv("FW_TEST_FIELDS", "honeypot, tracking_id ,")
	got := GetEnvSlice("FW_TEST_FIELDS", nil)
	if len(got) != 2 || got[0] != "honeypot" || got[1] != "tracking_id" {
		t.Errorf("got %v", got)
	}
	t.Setenv("FW_TEST_FIELDS", "")
	if got := GetEnvSlice("FW_TEST_FIELDS", []string{"keep"}); len(got) != 1 || got[0] != "keep" {
		t.Errorf("unset should return default, got %v", got)
	}
}
