// Package config provides the configuration schema and YAML loader for the
// Legal Sathi server.
package config

// LogLevel controls log verbosity for the server.
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

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Database DatabaseConfig `yaml:"database"`

	// DefaultLanguage is the response language used when a client does not
	// pick one. One of: en, hi, mr, pa, raj. Default: en.
	DefaultLanguage string `yaml:"default_language"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// GeminiConfig configures the primary Gemini backends.
type GeminiConfig struct {
	// APIKey authenticates both the Live WebSocket and the REST API.
	APIKey string `yaml:"api_key"`

	// LiveModel is the Gemini Live model used for voice sessions.
	// Empty selects the built-in default.
	LiveModel string `yaml:"live_model"`

	// ChatModel is used for legal advice completions.
	ChatModel string `yaml:"chat_model"`

	// DocumentModel is used for document analysis.
	DocumentModel string `yaml:"document_model"`

	// Voice is the prebuilt voice name for live sessions (e.g., "Zephyr").
	Voice string `yaml:"voice"`
}

// OpenAIConfig configures the optional chat fallback backend. When APIKey is
// empty the fallback is disabled.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DatabaseConfig configures PostgreSQL persistence. When DSN is empty the
// server runs with in-memory storage only.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}
