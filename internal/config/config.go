// Package config provides the configuration schema and loader for the
// CantinaOS runtime.
package config

// LogLevel controls log verbosity for one or all components.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for CantinaOS.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Voice       VoiceConfig       `yaml:"voice"`
	Music       MusicConfig       `yaml:"music"`
	Logging     LoggingConfig     `yaml:"logging"`
	Peripherals PeripheralsConfig `yaml:"peripherals"`
	Providers   ProvidersConfig   `yaml:"providers"`
}

// ServerConfig holds the dashboard server and top-level logging settings.
type ServerConfig struct {
	// Host is the dashboard bind address.
	Host string `yaml:"host"`

	// Port is the dashboard TCP port.
	Port int `yaml:"port"`

	// LogLevel is the default verbosity for components without an
	// explicit override in logging.levels.
	LogLevel LogLevel `yaml:"log_level"`
}

// VoiceConfig holds the voice pipeline settings.
type VoiceConfig struct {
	// Language is the STT language hint (BCP-47).
	Language string `yaml:"language"`

	// Model selects the LLM model name.
	Model string `yaml:"model"`

	// Temperature is the LLM sampling temperature in [0, 2].
	Temperature float64 `yaml:"temperature"`

	// MaxTokens bounds one LLM completion.
	MaxTokens int `yaml:"max_tokens"`

	// TokenBudget bounds the conversation memory estimate.
	TokenBudget int `yaml:"token_budget"`

	// SystemPrompt overrides the built-in persona prompt when set.
	SystemPrompt string `yaml:"system_prompt"`

	// ResetOnTurn clears conversation memory before every utterance.
	// Defaults to true when omitted.
	ResetOnTurn *bool `yaml:"reset_on_turn"`

	// RequestsPerMinute caps LLM turns in a sliding window. Zero
	// disables the limit.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TTSVoice selects the synthesis voice.
	TTSVoice string `yaml:"tts_voice"`
}

// ResetEachTurn resolves the reset_on_turn default.
func (v VoiceConfig) ResetEachTurn() bool {
	if v.ResetOnTurn == nil {
		return true
	}
	return *v.ResetOnTurn
}

// MusicConfig holds the music controller settings. Volumes are whole
// percentages in [0, 100], the form operators set in the file.
type MusicConfig struct {
	// Directories lists library locations in fallback order.
	Directories []string `yaml:"directories"`

	NormalVolume  int `yaml:"normal_volume"`
	DuckingVolume int `yaml:"ducking_volume"`
}

// NormalLevel returns the normal volume as a playback level in [0, 1].
func (m MusicConfig) NormalLevel() float64 { return float64(m.NormalVolume) / 100 }

// DuckingLevel returns the ducked volume as a playback level in [0, 1].
func (m MusicConfig) DuckingLevel() float64 { return float64(m.DuckingVolume) / 100 }

// LoggingConfig holds the log capture settings.
type LoggingConfig struct {
	// Dir is the session log file directory.
	Dir string `yaml:"dir"`

	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`

	// Levels overrides verbosity per component name.
	Levels map[string]LogLevel `yaml:"levels"`
}

// PeripheralsConfig holds the eye and sound effect settings.
type PeripheralsConfig struct {
	// EyeColor is the resting eye color.
	EyeColor string `yaml:"eye_color"`

	// EyeIntensity is the resting brightness percentage in [0, 100].
	EyeIntensity int `yaml:"eye_intensity"`

	// SfxDir is the mode transition clip directory.
	SfxDir string `yaml:"sfx_dir"`
}

// EyeLevel returns the resting brightness as a level in [0, 1].
func (p PeripheralsConfig) EyeLevel() float64 { return float64(p.EyeIntensity) / 100 }

// ProvidersConfig declares the external vendor for each pipeline stage.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. API keys are never placed in the file; they resolve from the
// environment (loaded from .env by the entry point).
type ProviderEntry struct {
	// Name selects the vendor implementation (e.g. "deepgram", "openai",
	// "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is resolved from the {KIND}_API_KEY environment variable
	// when empty.
	APIKey string `yaml:"-"`

	// BaseURL overrides the vendor's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the vendor.
	Model string `yaml:"model"`
}
