// Package llm provides the LLM provider abstraction and its OpenAI and Gemini backends.
package llm

import (
	"time"
)

// Provider identifies an LLM backend.
type Provider string

// Supported providers
const (
	// ProviderOpenAI is provider A, OpenAI chat completions
	ProviderOpenAI Provider = "openai"
	// ProviderGemini is provider B, Google Gemini
	ProviderGemini Provider = "gemini"
)

// Default model names
const (
	DefaultOpenAIModel = "gpt-5-nano"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// DefaultRequestTimeout bounds a non-streaming request.
const DefaultRequestTimeout = 60 * time.Second

// maxTokenLimits are the per-provider caps on requested output tokens.
var maxTokenLimits = map[Provider]int{
	ProviderOpenAI: 16000,
	ProviderGemini: 32000,
}

// MaxTokenLimit returns the output token cap of a provider, or 0 if unknown.
func MaxTokenLimit(p Provider) int {
	return maxTokenLimits[p]
}

// ClampMaxTokens limits requested to the provider cap. Non-positive values are
// returned unchanged so the provider default applies.
func ClampMaxTokens(p Provider, requested int) int {
	limit := MaxTokenLimit(p)
	if requested <= 0 || limit == 0 || requested <= limit {
		return requested
	}
	return limit
}

// Config holds the settings for one provider client.
type Config struct {
	Provider Provider
	Model    string
	APIKey   string
	// BaseURL overrides the API endpoint (OpenAI only).
	BaseURL        string
	RequestTimeout time.Duration
}

// DefaultConfig returns the default configuration for a provider.
func DefaultConfig(p Provider) *Config {
	cfg := &Config{Provider: p, RequestTimeout: DefaultRequestTimeout}
	switch p {
	case ProviderOpenAI:
		cfg.Model = DefaultOpenAIModel
	case ProviderGemini:
		cfg.Model = DefaultGeminiModel
	}
	return cfg
}

// WithAPIKey returns a copy of the config with the API key set.
func (c *Config) WithAPIKey(key string) *Config {
	out := *c
	out.APIKey = key
	return &out
}

// WithModel returns a copy of the config using model.
func (c *Config) WithModel(model string) *Config {
	out := *c
	out.Model = model
	return &out
}
