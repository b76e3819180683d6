package llm

import (
	"fmt"
	"os"
	"time"
)

// Config holds all LLM provider configuration. It is decoded from the
// "llm" section of the application config.
type Config struct {
	// Provider selects which LLM provider to use.
	// Values: "anthropic", "openai", "gemini", "openrouter", "mock"
	Provider string `mapstructure:"provider"`

	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Retry      RetryConfig      `mapstructure:"retry"`

	// Timeout bounds a single scoring or generation call, retries included.
	Timeout time.Duration `mapstructure:"timeout"`
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`    // Default: "claude-haiku"
	BaseURL string `mapstructure:"base_url"` // Optional gateway override.
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`    // Default: "gpt-4o-mini"
	BaseURL string `mapstructure:"base_url"` // Optional. Override for compatible APIs.
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"` // Default: "gemini-flash"
}

// OpenRouterConfig holds OpenRouter-specific configuration.
type OpenRouterConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`    // Default: "google/gemini-2.0-flash-exp"
	BaseURL string `mapstructure:"base_url"` // Default: "https://openrouter.ai/api/v1"
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Anthropic: AnthropicConfig{
			Model: "claude-haiku",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Gemini: GeminiConfig{
			Model: "gemini-flash",
		},
		OpenRouter: OpenRouterConfig{
			Model: "google/gemini-2.0-flash-exp",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 1 * time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 60 * time.Second,
	}
}

type keySlot struct {
	key *string
	env string
}

// vendorKeys pairs each provider with its key field and the vendor's
// standard environment variable.
func (c *Config) vendorKeys() map[string]keySlot {
	return map[string]keySlot{
		"anthropic":  {&c.Anthropic.APIKey, "ANTHROPIC_API_KEY"},
		"openai":     {&c.OpenAI.APIKey, "OPENAI_API_KEY"},
		"gemini":     {&c.Gemini.APIKey, "GEMINI_API_KEY"},
		"openrouter": {&c.OpenRouter.APIKey, "OPENROUTER_API_KEY"},
	}
}

// DiscoverKeys fills empty API keys from the vendors' environment
// variables. Explicit config wins.
func (c *Config) DiscoverKeys() {
	for _, v := range c.vendorKeys() {
		if *v.key == "" {
			*v.key = os.Getenv(v.env)
		}
	}
}

// Validate checks that the selected provider exists and has a key.
func (c Config) Validate() error {
	if c.Provider != "mock" {
		v, ok := c.vendorKeys()[c.Provider]
		if !ok {
			return fmt.Errorf("unknown LLM provider: %q", c.Provider)
		}
		if *v.key == "" {
			return fmt.Errorf("llm.%s.api_key (or %s) is required for the %s provider", c.Provider, v.env, c.Provider)
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("llm.retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}
