package config

import (
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// Decision engine modes.
const (
	ModeDeterministic = "deterministic"
	ModeLLM           = "llm"
)

// LLM failure modes for the llm decision mode.
const (
	FailureModeFail     = "fail"
	FailureModeFallback = "fallback_deterministic"
)

// Config holds the entire application configuration. Values come from
// defaults, an optional YAML file, and WINGMAN_* environment variables, in
// ascending precedence.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Device     DeviceConfig     `mapstructure:"device" yaml:"device"`
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Profile    ProfileConfig    `mapstructure:"profile" yaml:"profile"`
	Decision   DecisionConfig   `mapstructure:"decision" yaml:"decision"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation"`
	Recovery   RecoveryConfig   `mapstructure:"recovery" yaml:"recovery"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Judge      JudgeConfig      `mapstructure:"judge" yaml:"judge"`
	Regression RegressionConfig `mapstructure:"regression" yaml:"regression"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Control    ControlConfig    `mapstructure:"control" yaml:"control"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// DeviceConfig points at the automation server and the app under control.
type DeviceConfig struct {
	ServerURL        string        `mapstructure:"server_url" yaml:"server_url"`
	CapabilitiesPath string        `mapstructure:"capabilities_path" yaml:"capabilities_path"`
	TargetPackage    string        `mapstructure:"target_package" yaml:"target_package"`
	TargetActivity   string        `mapstructure:"target_activity" yaml:"target_activity"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
}

// CaptureConfig controls what each observation cycle persists.
type CaptureConfig struct {
	ArtifactsDir      string `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	Screenshot        bool   `mapstructure:"screenshot" yaml:"screenshot"`
	XML               bool   `mapstructure:"xml" yaml:"xml"`
	CompressXML       bool   `mapstructure:"compress_xml" yaml:"compress_xml"`
	MaxStrings        int    `mapstructure:"max_strings" yaml:"max_strings"`
	PostActionCapture bool   `mapstructure:"post_action_capture" yaml:"post_action_capture"`
}

// ProfileConfig is the behavioral profile: who the agent presents as and
// what it is willing to do.
type ProfileConfig struct {
	Name    string        `mapstructure:"name" yaml:"name"`
	Persona PersonaConfig `mapstructure:"persona" yaml:"persona"`
	Swipe   SwipePolicy   `mapstructure:"swipe" yaml:"swipe"`
	Message MessagePolicy `mapstructure:"message" yaml:"message"`
}

// PersonaConfig shapes generated first messages.
type PersonaConfig struct {
	Archetype        string   `mapstructure:"archetype" yaml:"archetype"`
	Intent           string   `mapstructure:"intent" yaml:"intent"`
	ToneTraits       []string `mapstructure:"tone_traits" yaml:"tone_traits"`
	HardBoundaries   []string `mapstructure:"hard_boundaries" yaml:"hard_boundaries"`
	PreferredSignals []string `mapstructure:"preferred_signals" yaml:"preferred_signals"`
	AvoidSignals     []string `mapstructure:"avoid_signals" yaml:"avoid_signals"`
	OpenerStrategy   string   `mapstructure:"opener_strategy" yaml:"opener_strategy"`
	Examples         []string `mapstructure:"examples" yaml:"examples"`
	MaxMessageChars  int      `mapstructure:"max_message_chars" yaml:"max_message_chars"`
	RequireQuestion  bool     `mapstructure:"require_question" yaml:"require_question"`
}

// SwipePolicy gates like/pass decisions and their quotas.
type SwipePolicy struct {
	MinQualityScoreLike int      `mapstructure:"min_quality_score_like" yaml:"min_quality_score_like"`
	RequireFlagsAll     []string `mapstructure:"require_flags_all" yaml:"require_flags_all"`
	BlockPromptKeywords []string `mapstructure:"block_prompt_keywords" yaml:"block_prompt_keywords"`
	MaxLikes            int      `mapstructure:"max_likes" yaml:"max_likes"`
	MaxPasses           int      `mapstructure:"max_passes" yaml:"max_passes"`
}

// MessagePolicy gates first-message sending.
type MessagePolicy struct {
	Enabled                  bool   `mapstructure:"enabled" yaml:"enabled"`
	MinQualityScoreToMessage int    `mapstructure:"min_quality_score_to_message" yaml:"min_quality_score_to_message"`
	MaxMessages              int    `mapstructure:"max_messages" yaml:"max_messages"`
	Template                 string `mapstructure:"template" yaml:"template"`
}

// DecisionConfig selects and tunes the decision engine.
type DecisionConfig struct {
	Mode        string         `mapstructure:"mode" yaml:"mode"`
	FailureMode string         `mapstructure:"failure_mode" yaml:"failure_mode"`
	LLM         LLMModelConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Model              string        `mapstructure:"model" yaml:"model"`
	APIKey             string        `mapstructure:"api_key" yaml:"-"`
	APIKeyEnv          string        `mapstructure:"api_key_env" yaml:"api_key_env"`
	Endpoint           string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout         time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature        float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	IncludeScreenshot  bool          `mapstructure:"include_screenshot" yaml:"include_screenshot"`
	MaxObservedStrings int           `mapstructure:"max_observed_strings" yaml:"max_observed_strings"`
}

// ValidationConfig controls the post-action check.
type ValidationConfig struct {
	Enabled                bool               `mapstructure:"enabled" yaml:"enabled"`
	PostActionSleep        time.Duration      `mapstructure:"post_action_sleep" yaml:"post_action_sleep"`
	RequireScreenChangeFor []schemas.ActionID `mapstructure:"require_screen_change_for" yaml:"require_screen_change_for"`
	MaxConsecutiveFailures int                `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

// RecoveryConfig controls foreground recovery when the target app loses
// focus.
type RecoveryConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Cooldown    time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// SessionConfig bounds one live run.
type SessionConfig struct {
	MaxActions   int           `mapstructure:"max_actions" yaml:"max_actions"`
	MaxRuntime   time.Duration `mapstructure:"max_runtime" yaml:"max_runtime"`
	LoopInterval time.Duration `mapstructure:"loop_interval" yaml:"loop_interval"`
	DryRun       bool          `mapstructure:"dry_run" yaml:"dry_run"`
}

// JudgeConfig tunes the LLM judge used by the regression runner.
type JudgeConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Model        string        `mapstructure:"model" yaml:"model"`
	APIKey       string        `mapstructure:"api_key" yaml:"-"`
	APIKeyEnv    string        `mapstructure:"api_key_env" yaml:"api_key_env"`
	APITimeout   time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxCalls     int           `mapstructure:"max_calls" yaml:"max_calls"`
	CachePath    string        `mapstructure:"cache_path" yaml:"cache_path"`
	MinPassTotal int           `mapstructure:"min_pass_total" yaml:"min_pass_total"`
}

// RegressionConfig locates recorded cases and the committed baseline.
type RegressionConfig struct {
	CasesDir     string `mapstructure:"cases_dir" yaml:"cases_dir"`
	BaselinePath string `mapstructure:"baseline_path" yaml:"baseline_path"`
	Concurrency  int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// StoreConfig enables optional PostgreSQL persistence of runs and packets.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"-"`
}

// ControlConfig enables the local HTTP control plane.
type ControlConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	AuthSecret string        `mapstructure:"auth_secret" yaml:"-"`
	TokenTTL   time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing to unmarshal them is a programming
		// error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wingman")
	v.SetDefault("logger.log_file", "wingman.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "magenta")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Device --
	v.SetDefault("device.server_url", "http://127.0.0.1:4723")
	v.SetDefault("device.target_package", "co.hinge.app")
	v.SetDefault("device.target_activity", ".ui.AppActivity")
	v.SetDefault("device.http_timeout", "30s")

	// -- Capture --
	v.SetDefault("capture.artifacts_dir", "artifacts/live")
	v.SetDefault("capture.screenshot", false)
	v.SetDefault("capture.xml", false)
	v.SetDefault("capture.compress_xml", true)
	v.SetDefault("capture.max_strings", 2500)
	v.SetDefault("capture.post_action_capture", true)

	// -- Profile --
	v.SetDefault("profile.name", "default")
	v.SetDefault("profile.persona.archetype", "intentional_warm_connector")
	v.SetDefault("profile.persona.intent",
		"Find emotionally available, high-intent matches for meaningful dating.")
	v.SetDefault("profile.persona.tone_traits", []string{"warm", "curious", "grounded", "playful"})
	v.SetDefault("profile.persona.hard_boundaries", []string{
		"No sexual content in first message",
		"No manipulative or negging language",
		"No pressure to move off-app immediately",
	})
	v.SetDefault("profile.persona.preferred_signals", []string{
		"Specific prompt answers with personality",
		"Evidence of emotional maturity",
		"Signs of an active lifestyle",
	})
	v.SetDefault("profile.persona.avoid_signals", []string{
		"Profile hostility",
		"Heavy cynicism",
		"Low-effort one-word prompts",
	})
	v.SetDefault("profile.persona.opener_strategy",
		"Reference one concrete profile detail and end with one easy-to-answer question.")
	v.SetDefault("profile.persona.max_message_chars", 180)
	v.SetDefault("profile.persona.require_question", true)
	v.SetDefault("profile.swipe.min_quality_score_like", 70)
	v.SetDefault("profile.swipe.max_likes", 20)
	v.SetDefault("profile.swipe.max_passes", 120)
	v.SetDefault("profile.message.enabled", false)
	v.SetDefault("profile.message.min_quality_score_to_message", 85)
	v.SetDefault("profile.message.max_messages", 5)
	v.SetDefault("profile.message.template", "Hey {{name}}, how's your week going?")

	// -- Decision --
	v.SetDefault("decision.mode", ModeDeterministic)
	v.SetDefault("decision.failure_mode", FailureModeFail)
	v.SetDefault("decision.llm.model", "gemini-2.5-flash")
	v.SetDefault("decision.llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("decision.llm.api_timeout", "30s")
	v.SetDefault("decision.llm.temperature", 0.1)
	v.SetDefault("decision.llm.max_tokens", 1024)
	v.SetDefault("decision.llm.include_screenshot", true)
	v.SetDefault("decision.llm.max_observed_strings", 120)

	// -- Validation --
	v.SetDefault("validation.enabled", true)
	v.SetDefault("validation.post_action_sleep", "800ms")
	v.SetDefault("validation.require_screen_change_for", []string{
		"like", "pass", "open_thread", "send_message", "back", "dismiss_overlay",
	})
	v.SetDefault("validation.max_consecutive_failures", 4)

	// -- Recovery --
	v.SetDefault("recovery.enabled", true)
	v.SetDefault("recovery.max_attempts", 3)
	v.SetDefault("recovery.cooldown", "1s")

	// -- Session --
	v.SetDefault("session.max_actions", 30)
	v.SetDefault("session.max_runtime", "5m")
	v.SetDefault("session.loop_interval", "1s")
	v.SetDefault("session.dry_run", true)

	// -- Judge --
	v.SetDefault("judge.enabled", false)
	v.SetDefault("judge.model", "gemini-2.5-flash")
	v.SetDefault("judge.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("judge.api_timeout", "30s")
	v.SetDefault("judge.max_calls", 50)
	v.SetDefault("judge.cache_path", "artifacts/judge_cache.jsonl")
	v.SetDefault("judge.min_pass_total", 12)

	// -- Regression --
	v.SetDefault("regression.cases_dir", "testdata/regression")
	v.SetDefault("regression.baseline_path", "testdata/regression/baseline.json")
	v.SetDefault("regression.concurrency", 4)

	// -- Store --
	v.SetDefault("store.enabled", false)

	// -- Control --
	v.SetDefault("control.enabled", false)
	v.SetDefault("control.listen_addr", "127.0.0.1:8777")
	v.SetDefault("control.token_ttl", "24h")
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Secrets come from the environment, never from the config file.
	v.BindEnv("decision.llm.api_key", "GEMINI_API_KEY")
	v.BindEnv("judge.api_key", "GEMINI_API_KEY")
	v.BindEnv("store.url", "WINGMAN_STORE_URL")
	v.BindEnv("control.auth_secret", "WINGMAN_CONTROL_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in configured filesystem locations.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Logger.LogFile,
		&c.Capture.ArtifactsDir,
		&c.Device.CapabilitiesPath,
		&c.Judge.CachePath,
		&c.Regression.CasesDir,
		&c.Regression.BaselinePath,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Decision.Validate(); err != nil {
		return err
	}
	if err := c.Profile.Validate(); err != nil {
		return err
	}
	if err := c.Validation.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Recovery.Validate(); err != nil {
		return err
	}
	if err := c.Judge.Validate(); err != nil {
		return err
	}
	if err := c.Regression.Validate(); err != nil {
		return err
	}
	if err := c.Control.Validate(); err != nil {
		return err
	}
	if c.Store.Enabled && c.Store.URL == "" {
		return &schemas.ConfigError{Field: "store.url", Reason: "required when store is enabled (set WINGMAN_STORE_URL)"}
	}
	return nil
}

// Validate checks the decision engine settings.
func (d *DecisionConfig) Validate() error {
	switch d.Mode {
	case ModeDeterministic, ModeLLM:
	default:
		return &schemas.ConfigError{Field: "decision.mode", Reason: "must be 'deterministic' or 'llm'"}
	}
	switch d.FailureMode {
	case FailureModeFail, FailureModeFallback:
	default:
		return &schemas.ConfigError{Field: "decision.failure_mode", Reason: "must be 'fail' or 'fallback_deterministic'"}
	}
	if d.Mode == ModeLLM {
		if d.LLM.Model == "" {
			return &schemas.ConfigError{Field: "decision.llm.model", Reason: "required when decision.mode is 'llm'"}
		}
		if d.LLM.MaxObservedStrings <= 0 {
			return &schemas.ConfigError{Field: "decision.llm.max_observed_strings", Reason: "must be positive"}
		}
	}
	return nil
}

// Validate checks policy thresholds and quotas.
func (p *ProfileConfig) Validate() error {
	if p.Swipe.MinQualityScoreLike < 0 || p.Swipe.MinQualityScoreLike > 100 {
		return &schemas.ConfigError{Field: "profile.swipe.min_quality_score_like", Reason: "must be within [0, 100]"}
	}
	if p.Swipe.MaxLikes <= 0 {
		return &schemas.ConfigError{Field: "profile.swipe.max_likes", Reason: "must be positive"}
	}
	if p.Swipe.MaxPasses <= 0 {
		return &schemas.ConfigError{Field: "profile.swipe.max_passes", Reason: "must be positive"}
	}
	if p.Message.MinQualityScoreToMessage < 0 || p.Message.MinQualityScoreToMessage > 100 {
		return &schemas.ConfigError{Field: "profile.message.min_quality_score_to_message", Reason: "must be within [0, 100]"}
	}
	if p.Message.MaxMessages <= 0 {
		return &schemas.ConfigError{Field: "profile.message.max_messages", Reason: "must be positive"}
	}
	if p.Persona.MaxMessageChars <= 0 || p.Persona.MaxMessageChars > 500 {
		return &schemas.ConfigError{Field: "profile.persona.max_message_chars", Reason: "must be within (0, 500] for first-message safety"}
	}
	return nil
}

// Validate checks the post-action validation settings.
func (v *ValidationConfig) Validate() error {
	if !v.Enabled {
		return nil
	}
	if v.PostActionSleep < 0 {
		return &schemas.ConfigError{Field: "validation.post_action_sleep", Reason: "must not be negative"}
	}
	if v.MaxConsecutiveFailures <= 0 {
		return &schemas.ConfigError{Field: "validation.max_consecutive_failures", Reason: "must be positive"}
	}
	for _, id := range v.RequireScreenChangeFor {
		if _, ok := schemas.CatalogEntry(id); !ok {
			return &schemas.ConfigError{
				Field:  "validation.require_screen_change_for",
				Reason: fmt.Sprintf("unknown action %q", id),
			}
		}
	}
	return nil
}

// Validate checks run bounds.
func (s *SessionConfig) Validate() error {
	if s.MaxActions <= 0 {
		return &schemas.ConfigError{Field: "session.max_actions", Reason: "must be positive"}
	}
	if s.MaxRuntime <= 0 {
		return &schemas.ConfigError{Field: "session.max_runtime", Reason: "must be a positive duration"}
	}
	if s.LoopInterval < 0 {
		return &schemas.ConfigError{Field: "session.loop_interval", Reason: "must not be negative"}
	}
	return nil
}

// Validate checks foreground recovery settings.
func (r *RecoveryConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.MaxAttempts <= 0 {
		return &schemas.ConfigError{Field: "recovery.max_attempts", Reason: "must be positive"}
	}
	if r.Cooldown < 0 {
		return &schemas.ConfigError{Field: "recovery.cooldown", Reason: "must not be negative"}
	}
	return nil
}

// Validate checks judge settings.
func (j *JudgeConfig) Validate() error {
	if !j.Enabled {
		return nil
	}
	if j.Model == "" {
		return &schemas.ConfigError{Field: "judge.model", Reason: "required when judge is enabled"}
	}
	if j.MaxCalls < 0 {
		return &schemas.ConfigError{Field: "judge.max_calls", Reason: "must not be negative"}
	}
	return nil
}

// Validate checks regression runner settings.
func (r *RegressionConfig) Validate() error {
	if r.Concurrency <= 0 {
		return &schemas.ConfigError{Field: "regression.concurrency", Reason: "must be positive"}
	}
	return nil
}

// Validate checks control plane settings. An empty auth secret is allowed
// and leaves the API unauthenticated for loopback tooling.
func (c *ControlConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ListenAddr == "" {
		return &schemas.ConfigError{Field: "control.listen_addr", Reason: "required when control is enabled"}
	}
	if c.AuthSecret != "" && c.TokenTTL <= 0 {
		return &schemas.ConfigError{Field: "control.token_ttl", Reason: "must be a positive duration"}
	}
	return nil
}

// ResolveAPIKey returns the model API key, preferring the explicit value
// over the configured environment variable.
func (m *LLMModelConfig) ResolveAPIKey(getenv func(string) string) string {
	if m.APIKey != "" {
		return m.APIKey
	}
	if m.APIKeyEnv != "" {
		return strings.TrimSpace(getenv(m.APIKeyEnv))
	}
	return ""
}

// ResolveAPIKey returns the judge API key, preferring the explicit value
// over the configured environment variable.
func (j *JudgeConfig) ResolveAPIKey(getenv func(string) string) string {
	if j.APIKey != "" {
		return j.APIKey
	}
	if j.APIKeyEnv != "" {
		return strings.TrimSpace(getenv(j.APIKeyEnv))
	}
	return ""
}
