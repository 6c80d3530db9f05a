package config_test

import (
	"strings"
	"testing"

	"github.com/legalsathi/sathi/internal/config"
)

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: debug
gemini:
  api_key: test-key
  live_model: gemini-2.5-flash-native-audio-preview-09-2025
  chat_model: gemini-3-pro-preview
  document_model: gemini-3-flash-preview
  voice: Zephyr
openai:
  api_key: sk-test
  model: gpt-4o-mini
database:
  dsn: postgres://localhost/sathi
default_language: hi
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Gemini.Voice != "Zephyr" || cfg.Gemini.ChatModel != "gemini-3-pro-preview" {
		t.Errorf("gemini = %+v", cfg.Gemini)
	}
	if cfg.DefaultLanguage != "hi" {
		t.Errorf("default_language = %q", cfg.DefaultLanguage)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
gemini:
  api_key: test-key
  modle: typo
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_RequiresGeminiKey(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`server: {listen_addr: ":8080"}`))
	if err == nil {
		t.Fatal("expected error for missing gemini.api_key, got nil")
	}
	if !strings.Contains(err.Error(), "gemini.api_key") {
		t.Errorf("error should mention gemini.api_key, got: %v", err)
	}
}

func TestValidate_OpenAIModelRequiredWithKey(t *testing.T) {
	t.Parallel()
	yaml := `
gemini:
  api_key: test-key
openai:
  api_key: sk-test
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for openai.api_key without model, got nil")
	}
	if !strings.Contains(err.Error(), "openai.model") {
		t.Errorf("error should mention openai.model, got: %v", err)
	}
}

func TestValidate_InvalidLanguage(t *testing.T) {
	t.Parallel()
	yaml := `
gemini:
  api_key: test-key
default_language: fr
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unsupported language, got nil")
	}
	if !strings.Contains(err.Error(), "default_language") {
		t.Errorf("error should mention default_language, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
gemini:
  api_key: test-key
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}
