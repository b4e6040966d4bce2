package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults and environment secrets applied. It is a
// convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment secrets, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	applyEnvSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the stock settings.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Voice.Language == "" {
		cfg.Voice.Language = "en-US"
	}
	if cfg.Voice.Temperature == 0 {
		cfg.Voice.Temperature = 0.8
	}
	if cfg.Voice.MaxTokens == 0 {
		cfg.Voice.MaxTokens = 512
	}
	if cfg.Voice.TokenBudget == 0 {
		cfg.Voice.TokenBudget = 3000
	}
	if cfg.Voice.RequestsPerMinute == 0 {
		cfg.Voice.RequestsPerMinute = 20
	}
	if cfg.Voice.TTSVoice == "" {
		cfg.Voice.TTSVoice = "dj-rex"
	}

	if len(cfg.Music.Directories) == 0 {
		cfg.Music.Directories = []string{"music", "assets/music"}
	}
	if cfg.Music.NormalVolume == 0 {
		cfg.Music.NormalVolume = 80
	}
	if cfg.Music.DuckingVolume == 0 {
		cfg.Music.DuckingVolume = 30
	}

	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 14
	}

	if cfg.Peripherals.EyeColor == "" {
		cfg.Peripherals.EyeColor = "blue"
	}
	if cfg.Peripherals.EyeIntensity == 0 {
		cfg.Peripherals.EyeIntensity = 80
	}
	if cfg.Peripherals.SfxDir == "" {
		cfg.Peripherals.SfxDir = "assets/sfx"
	}
}

// applyEnvSecrets resolves provider API keys from the environment. The entry
// point loads .env first, so keys live beside the binary rather than in the
// config file.
func applyEnvSecrets(cfg *Config) {
	if cfg.Providers.STT.APIKey == "" {
		cfg.Providers.STT.APIKey = os.Getenv("STT_API_KEY")
	}
	if cfg.Providers.LLM.APIKey == "" {
		cfg.Providers.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}
	if cfg.Providers.TTS.APIKey == "" {
		cfg.Providers.TTS.APIKey = os.Getenv("TTS_API_KEY")
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [0, 65535]", cfg.Server.Port))
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Voice.Temperature < 0 || cfg.Voice.Temperature > 2 {
		errs = append(errs, fmt.Errorf("voice.temperature %.2f is out of range [0, 2]", cfg.Voice.Temperature))
	}
	if cfg.Voice.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("voice.max_tokens %d must be positive", cfg.Voice.MaxTokens))
	}
	if cfg.Voice.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("voice.requests_per_minute %d must not be negative", cfg.Voice.RequestsPerMinute))
	}

	if cfg.Music.NormalVolume < 0 || cfg.Music.NormalVolume > 100 {
		errs = append(errs, fmt.Errorf("music.normal_volume %d is out of range [0, 100]", cfg.Music.NormalVolume))
	}
	if cfg.Music.DuckingVolume < 0 || cfg.Music.DuckingVolume > 100 {
		errs = append(errs, fmt.Errorf("music.ducking_volume %d is out of range [0, 100]", cfg.Music.DuckingVolume))
	}
	if cfg.Music.DuckingVolume > cfg.Music.NormalVolume {
		errs = append(errs, fmt.Errorf("music.ducking_volume %d exceeds music.normal_volume %d", cfg.Music.DuckingVolume, cfg.Music.NormalVolume))
	}

	for component, level := range cfg.Logging.Levels {
		if !level.IsValid() {
			errs = append(errs, fmt.Errorf("logging.levels[%s] %q is invalid; valid values: debug, info, warn, error", component, level))
		}
	}

	if cfg.Peripherals.EyeIntensity < 0 || cfg.Peripherals.EyeIntensity > 100 {
		errs = append(errs, fmt.Errorf("peripherals.eye_intensity %d is out of range [0, 100]", cfg.Peripherals.EyeIntensity))
	}

	return errors.Join(errs...)
}
