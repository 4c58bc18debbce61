// Package config loads engine configuration from SIMCORE_-prefixed
// environment variables.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/oslerlabs/simcore/internal/llm"
)

// Config is the process configuration.
type Config struct {
	// DBPath overrides the default SQLite database location.
	DBPath string `env:"DB"`

	// UserID identifies the trainee for sessions started locally.
	UserID string `env:"USER_ID" envDefault:"local"`

	// EndTriggers are the question substrings that arm termination.
	EndTriggers []string `env:"END_TRIGGERS" envSeparator:"," envDefault:"diagnos"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LLMProvider selects the generation backend: anthropic, openai,
	// gemini, openrouter, or mock. Empty probes standard key env vars.
	LLMProvider string `env:"LLM_PROVIDER"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL"`

	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	OpenRouterModel  string `env:"OPENROUTER_MODEL"`
}

// Load parses the environment.
func Load() (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: "SIMCORE_"}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return c, nil
}

// LLMConfig assembles the provider configuration. With no provider set
// and no SIMCORE_ keys, the standard provider key env vars are probed.
func (c Config) LLMConfig() (llm.Config, error) {
	cfg := llm.DefaultConfig()

	if c.LLMProvider == "" && c.AnthropicAPIKey == "" && c.OpenAIAPIKey == "" &&
		c.GeminiAPIKey == "" && c.OpenRouterAPIKey == "" {
		discovered, ok := llm.DiscoverConfig()
		if !ok {
			return llm.Config{}, fmt.Errorf("no LLM provider configured: set SIMCORE_LLM_PROVIDER or a provider API key")
		}
		return discovered, nil
	}

	if c.LLMProvider != "" {
		cfg.Provider = c.LLMProvider
	}
	if c.AnthropicAPIKey != "" {
		cfg.Anthropic.APIKey = c.AnthropicAPIKey
		if c.LLMProvider == "" {
			cfg.Provider = "anthropic"
		}
	}
	if c.AnthropicModel != "" {
		cfg.Anthropic.Model = c.AnthropicModel
	}
	if c.OpenAIAPIKey != "" {
		cfg.OpenAI.APIKey = c.OpenAIAPIKey
		if c.LLMProvider == "" {
			cfg.Provider = "openai"
		}
	}
	if c.OpenAIModel != "" {
		cfg.OpenAI.Model = c.OpenAIModel
	}
	if c.GeminiAPIKey != "" {
		cfg.Gemini.APIKey = c.GeminiAPIKey
		if c.LLMProvider == "" {
			cfg.Provider = "gemini"
		}
	}
	if c.GeminiModel != "" {
		cfg.Gemini.Model = c.GeminiModel
	}
	if c.OpenRouterAPIKey != "" {
		cfg.OpenRouter.APIKey = c.OpenRouterAPIKey
		if c.LLMProvider == "" {
			cfg.Provider = "openrouter"
		}
	}
	if c.OpenRouterModel != "" {
		cfg.OpenRouter.Model = c.OpenRouterModel
	}

	if err := cfg.Validate(); err != nil {
		return llm.Config{}, err
	}
	return cfg, nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
