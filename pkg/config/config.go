// Package config holds the gateway's runtime settings. Defaults come from
// code, a YAML file can override them, and FORMWARD_* environment
// variables win over both.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BlockAction controls what the caller is told to do with hard-blocked
// submissions.
type BlockAction string

const (
	// ActionMark accepts the submission but marks it as spam for review.
	ActionMark BlockAction = "mark"
	// ActionReject drops the submission outright.
	ActionReject BlockAction = "reject"
)

// Config holds global settings for the formward gateway.
type Config struct {
	// === Core ===
	Enabled    bool
	ListenAddr string
	LogLevel   string // debug, info, warn, error

	// === Detector toggles ===
	PatternCheckEnabled   bool
	TimeCheckEnabled      bool
	LanguageCheckEnabled  bool
	DuplicateCheckEnabled bool
	ModerationEnabled     bool

	// === Decision tuning ===
	AIThreshold         float64 // spam when final score >= this, in [0,1]
	MinSubmissionTime   time.Duration
	DuplicateTimeframe  time.Duration
	BlockAction         BlockAction
	ExcludeHiddenFields bool
	ExcludedFields      []string // field IDs dropped before pattern analysis
	ExpectedLanguage    string   // BCP 47 tag, e.g. "en" or "de_DE"
	StrikeTTL           time.Duration

	// === Moderation service ===
	ModerationAPIKey       string
	ModerationBaseURL      string
	ModerationModel        string
	ModerationCallsPerHour int
	ModerationConcurrency  int

	// === Storage ===
	RedisAddr    string // empty = in-memory counters
	PostgresDSN  string // empty = in-memory log store
	LogRetention time.Duration
}

// fileSettings is the YAML file shape. Fields are pointers so absent keys
// keep their defaults; durations use plain integers (seconds, hours, days)
// rather than Go duration syntax.
type fileSettings struct {
	Enabled    *bool   `yaml:"enabled"`
	ListenAddr *string `yaml:"listen_addr"`
	LogLevel   *string `yaml:"log_level"`

	PatternCheckEnabled   *bool `yaml:"pattern_check_enabled"`
	TimeCheckEnabled      *bool `yaml:"time_check_enabled"`
	LanguageCheckEnabled  *bool `yaml:"language_check_enabled"`
	DuplicateCheckEnabled *bool `yaml:"duplicate_check_enabled"`
	ModerationEnabled     *bool `yaml:"moderation_enabled"`

	AIThreshold             *float64 `yaml:"ai_threshold"`
	MinSubmissionTimeSecs   *int     `yaml:"min_submission_time"`
	DuplicateTimeframeHours *int     `yaml:"duplicate_check_timeframe"`
	BlockAction             *string  `yaml:"block_action"`
	ExcludeHiddenFields     *bool    `yaml:"exclude_hidden_fields"`
	ExcludedFields          []string `yaml:"excluded_fields"`
	ExpectedLanguage        *string  `yaml:"expected_language"`
	StrikeTTLSecs           *int     `yaml:"strike_ttl"`

	ModerationAPIKey       *string `yaml:"moderation_api_key"`
	ModerationBaseURL      *string `yaml:"moderation_base_url"`
	ModerationModel        *string `yaml:"moderation_model"`
	ModerationCallsPerHour *int    `yaml:"moderation_calls_per_hour"`
	ModerationConcurrency  *int    `yaml:"moderation_concurrency"`

	RedisAddr        *string `yaml:"redis_addr"`
	PostgresDSN      *string `yaml:"postgres_dsn"`
	LogRetentionDays *int    `yaml:"log_retention_days"`
}

func (f *fileSettings) apply(c *Config) {
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setBool(&c.Enabled, f.Enabled)
	setStr(&c.ListenAddr, f.ListenAddr)
	setStr(&c.LogLevel, f.LogLevel)

	setBool(&c.PatternCheckEnabled, f.PatternCheckEnabled)
	setBool(&c.TimeCheckEnabled, f.TimeCheckEnabled)
	setBool(&c.LanguageCheckEnabled, f.LanguageCheckEnabled)
	setBool(&c.DuplicateCheckEnabled, f.DuplicateCheckEnabled)
	setBool(&c.ModerationEnabled, f.ModerationEnabled)

	if f.AIThreshold != nil {
		c.AIThreshold = *f.AIThreshold
	}
	if f.MinSubmissionTimeSecs != nil {
		c.MinSubmissionTime = time.Duration(*f.MinSubmissionTimeSecs) * time.Second
	}
	if f.DuplicateTimeframeHours != nil {
		c.DuplicateTimeframe = time.Duration(*f.DuplicateTimeframeHours) * time.Hour
	}
	if f.BlockAction != nil {
		c.BlockAction = BlockAction(*f.BlockAction)
	}
	setBool(&c.ExcludeHiddenFields, f.ExcludeHiddenFields)
	if f.ExcludedFields != nil {
		c.ExcludedFields = f.ExcludedFields
	}
	setStr(&c.ExpectedLanguage, f.ExpectedLanguage)
	if f.StrikeTTLSecs != nil {
		c.StrikeTTL = time.Duration(*f.StrikeTTLSecs) * time.Second
	}

	setStr(&c.ModerationAPIKey, f.ModerationAPIKey)
	setStr(&c.ModerationBaseURL, f.ModerationBaseURL)
	setStr(&c.ModerationModel, f.ModerationModel)
	if f.ModerationCallsPerHour != nil {
		c.ModerationCallsPerHour = *f.ModerationCallsPerHour
	}
	if f.ModerationConcurrency != nil {
		c.ModerationConcurrency = *f.ModerationConcurrency
	}

	setStr(&c.RedisAddr, f.RedisAddr)
	setStr(&c.PostgresDSN, f.PostgresDSN)
	if f.LogRetentionDays != nil {
		c.LogRetention = time.Duration(*f.LogRetentionDays) * 24 * time.Hour
	}
}

// NewDefaultConfig creates a Config with production defaults, with every
// setting overridable via environment variables.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Enabled:    true,
		ListenAddr: ":8080",
		LogLevel:   "info",

		PatternCheckEnabled:   true,
		TimeCheckEnabled:      true,
		LanguageCheckEnabled:  true,
		DuplicateCheckEnabled: true,
		ModerationEnabled:     true,

		AIThreshold:         0.7,
		MinSubmissionTime:   3 * time.Second,
		DuplicateTimeframe:  24 * time.Hour,
		BlockAction:         ActionMark,
		ExcludeHiddenFields: true,
		ExpectedLanguage:    "en",
		StrikeTTL:           15 * time.Minute,

		ModerationModel:        "omni-moderation-latest",
		ModerationCallsPerHour: 60,
		ModerationConcurrency:  20,

		LogRetention: 90 * 24 * time.Hour,
	}
	cfg.applyEnv()
	return cfg
}

// Load reads a YAML config file over the code defaults, then applies
// environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fs fileSettings
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	fs.apply(cfg)
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Enabled = GetEnvBool("FORMWARD_ENABLED", c.Enabled)
	c.ListenAddr = GetEnv("FORMWARD_LISTEN_ADDR", c.ListenAddr)
	c.LogLevel = GetEnv("FORMWARD_LOG_LEVEL", c.LogLevel)

	c.PatternCheckEnabled = GetEnvBool("FORMWARD_PATTERN_CHECK", c.PatternCheckEnabled)
	c.TimeCheckEnabled = GetEnvBool("FORMWARD_TIME_CHECK", c.TimeCheckEnabled)
	c.LanguageCheckEnabled = GetEnvBool("FORMWARD_LANGUAGE_CHECK", c.LanguageCheckEnabled)
	c.DuplicateCheckEnabled = GetEnvBool("FORMWARD_DUPLICATE_CHECK", c.DuplicateCheckEnabled)
	c.ModerationEnabled = GetEnvBool("FORMWARD_MODERATION", c.ModerationEnabled)

	c.AIThreshold = GetEnvFloat("FORMWARD_AI_THRESHOLD", c.AIThreshold)
	c.MinSubmissionTime = GetEnvDuration("FORMWARD_MIN_SUBMISSION_TIME", c.MinSubmissionTime)
	c.DuplicateTimeframe = GetEnvDuration("FORMWARD_DUPLICATE_TIMEFRAME", c.DuplicateTimeframe)
	c.BlockAction = BlockAction(GetEnv("FORMWARD_BLOCK_ACTION", string(c.BlockAction)))
	c.ExcludeHiddenFields = GetEnvBool("FORMWARD_EXCLUDE_HIDDEN_FIELDS", c.ExcludeHiddenFields)
	c.ExcludedFields = GetEnvSlice("FORMWARD_EXCLUDED_FIELDS", c.ExcludedFields)
	c.ExpectedLanguage = GetEnv("FORMWARD_EXPECTED_LANGUAGE", c.ExpectedLanguage)
	c.StrikeTTL = GetEnvDuration("FORMWARD_STRIKE_TTL", c.StrikeTTL)

	c.ModerationAPIKey = GetEnv("FORMWARD_MODERATION_API_KEY", GetEnv("OPENAI_API_KEY", c.ModerationAPIKey))
	c.ModerationBaseURL = GetEnv("FORMWARD_MODERATION_BASE_URL", c.ModerationBaseURL)
	c.ModerationModel = GetEnv("FORMWARD_MODERATION_MODEL", c.ModerationModel)
	c.ModerationCallsPerHour = GetEnvInt("FORMWARD_MODERATION_RATE_LIMIT", c.ModerationCallsPerHour)
	c.ModerationConcurrency = GetEnvInt("FORMWARD_MODERATION_CONCURRENCY", c.ModerationConcurrency)

	c.RedisAddr = GetEnv("FORMWARD_REDIS_ADDR", c.RedisAddr)
	c.PostgresDSN = GetEnv("FORMWARD_POSTGRES_DSN", c.PostgresDSN)
	c.LogRetention = GetEnvDuration("FORMWARD_LOG_RETENTION", c.LogRetention)
}

// NewStrictConfig lowers the spam threshold and tightens timing for
// deployments that prefer catching more spam over avoiding false
// positives.
func NewStrictConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.AIThreshold = 0.5
	cfg.MinSubmissionTime = 5 * time.Second
	cfg.BlockAction = ActionReject
	return cfg
}

// NewLenientConfig raises the threshold and disables timing checks for
// forms where legitimate users often trip heuristics (short contact
// forms, autofill-heavy audiences).
func NewLenientConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.AIThreshold = 0.85
	cfg.TimeCheckEnabled = false
	cfg.LanguageCheckEnabled = false
	return cfg
}

// Validate checks ranges and enum values. Missing moderation credentials
// are not an error here: the engine degrades to skipping moderation.
func (c *Config) Validate() error {
	var problems []string
	if c.AIThreshold < 0 || c.AIThreshold > 1 {
		problems = append(problems, fmt.Sprintf("ai_threshold %.2f outside [0,1]", c.AIThreshold))
	}
	if c.BlockAction != ActionMark && c.BlockAction != ActionReject {
		problems = append(problems, fmt.Sprintf("block_action %q must be mark or reject", c.BlockAction))
	}
	if c.MinSubmissionTime < 0 {
		problems = append(problems, "min_submission_time must not be negative")
	}
	if c.DuplicateTimeframe < 0 {
		problems = append(problems, "duplicate_check_timeframe must not be negative")
	}
	if c.StrikeTTL <= 0 {
		problems = append(problems, "strike_ttl must be positive")
	}
	if c.ModerationCallsPerHour < 0 {
		problems = append(problems, "moderation_calls_per_hour must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated environment variable as a slice,
// trimming whitespace and dropping empty entries.
func GetEnvSlice(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// GetEnvDuration returns a duration from an environment variable, accepting
// Go duration syntax ("45s", "2h") or a bare number of seconds.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
