package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/legalsathi/sathi/internal/i18n"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown YAML fields are rejected so typos surface at startup.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Gemini.APIKey == "" {
		errs = append(errs, errors.New("gemini.api_key is required"))
	}

	if cfg.OpenAI.APIKey != "" && cfg.OpenAI.Model == "" {
		errs = append(errs, errors.New("openai.model is required when openai.api_key is set"))
	}

	if cfg.DefaultLanguage != "" {
		if _, err := i18n.Parse(cfg.DefaultLanguage); err != nil {
			errs = append(errs, fmt.Errorf("default_language %q is invalid; valid values: en, hi, mr, pa, raj", cfg.DefaultLanguage))
		}
	}

	if cfg.Database.DSN == "" {
		slog.Warn("database.dsn is empty; accounts, transcripts and documents will not survive a restart")
	}

	return errors.Join(errs...)
}
