package config

import (
	"strings"
	"testing"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8000 {
		t.Errorf("server defaults = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Music.NormalVolume != 80 || cfg.Music.DuckingVolume != 30 {
		t.Errorf("volumes = %d/%d, want 80/30", cfg.Music.NormalVolume, cfg.Music.DuckingVolume)
	}
	if len(cfg.Music.Directories) != 2 || cfg.Music.Directories[0] != "music" {
		t.Errorf("directories = %v", cfg.Music.Directories)
	}
	if !cfg.Voice.ResetEachTurn() {
		t.Error("reset_on_turn default = false, want true")
	}
	if cfg.Voice.RequestsPerMinute != 20 {
		t.Errorf("requests_per_minute = %d, want 20", cfg.Voice.RequestsPerMinute)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  hots: 0.0.0.0\n"))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
	if !strings.Contains(err.Error(), "hots") {
		t.Errorf("error does not name the field: %v", err)
	}
}

func TestLoadFromReader_JoinsAllValidationFailures(t *testing.T) {
	in := `
server:
  log_level: loud
music:
  normal_volume: 150
  ducking_volume: 200
`
	_, err := LoadFromReader(strings.NewReader(in))
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "normal_volume", "ducking_volume"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error missing %q: %v", want, msg)
		}
	}
}

func TestLoadFromReader_DuckingAboveNormalRejected(t *testing.T) {
	in := `
music:
  normal_volume: 40
  ducking_volume: 70
`
	_, err := LoadFromReader(strings.NewReader(in))
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("err = %v, want ducking/normal ordering failure", err)
	}
}

func TestLoadFromReader_EnvSecrets(t *testing.T) {
	t.Setenv("STT_API_KEY", "dg-secret")
	t.Setenv("LLM_API_KEY", "oa-secret")

	cfg, err := LoadFromReader(strings.NewReader("providers:\n  stt:\n    name: deepgram\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.STT.APIKey != "dg-secret" {
		t.Errorf("stt api key = %q", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.LLM.APIKey != "oa-secret" {
		t.Errorf("llm api key = %q", cfg.Providers.LLM.APIKey)
	}
}

func TestLoadFromReader_ResetOnTurnExplicitFalse(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("voice:\n  reset_on_turn: false\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Voice.ResetEachTurn() {
		t.Error("explicit false ignored")
	}
}

func TestMusicConfig_LevelConversions(t *testing.T) {
	m := MusicConfig{NormalVolume: 80, DuckingVolume: 25}
	if got := m.NormalLevel(); got != 0.8 {
		t.Errorf("NormalLevel = %v, want 0.8", got)
	}
	if got := m.DuckingLevel(); got != 0.25 {
		t.Errorf("DuckingLevel = %v, want 0.25", got)
	}
}

func TestLoggingLevels_Validated(t *testing.T) {
	in := `
logging:
  levels:
    stt: debug
    mic: noisy
`
	_, err := LoadFromReader(strings.NewReader(in))
	if err == nil || !strings.Contains(err.Error(), "noisy") {
		t.Errorf("err = %v, want invalid level failure", err)
	}
}
