// Package config loads the service configuration from a file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BROCHURE_SERVER_PORT.
const EnvPrefix = "BROCHURE"

// Config is the full service configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Fetch       FetchConfig       `mapstructure:"fetch"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Selection   SelectionConfig   `mapstructure:"selection"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Generation  GenerationConfig  `mapstructure:"generation"`
	OpenAI      ProviderConfig    `mapstructure:"openai"`
	Gemini      ProviderConfig    `mapstructure:"gemini"`
	Server      ServerConfig      `mapstructure:"server"`
	JWT         JWTConfig         `mapstructure:"jwt"`

	DatabaseURL string `mapstructure:"database_url"`
}

// FetchConfig controls page fetching.
type FetchConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxBytes         int64         `mapstructure:"max_bytes"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	UserAgent        string        `mapstructure:"user_agent"`
	UseBrowser       bool          `mapstructure:"use_browser"`
	MinContentLength int           `mapstructure:"min_content_length"`
	RenderTimeout    time.Duration `mapstructure:"render_timeout"`
}

// CacheConfig selects and tunes the content cache.
type CacheConfig struct {
	Backend         string        `mapstructure:"backend"`
	TTL             time.Duration `mapstructure:"ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
	Valkey          ValkeyConfig  `mapstructure:"valkey"`
}

// ValkeyConfig holds the Valkey connection used when Backend is "valkey".
type ValkeyConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SelectionConfig controls link selection.
type SelectionConfig struct {
	Provider      string        `mapstructure:"provider"`
	MaxLinks      int           `mapstructure:"max_links"`
	MaxCandidates int           `mapstructure:"max_candidates"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// AggregationConfig controls content aggregation.
type AggregationConfig struct {
	Concurrency  int `mapstructure:"concurrency"`
	MaxPageChars int `mapstructure:"max_page_chars"`
}

// GenerationConfig controls brochure generation.
type GenerationConfig struct {
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ProviderConfig configures one LLM provider.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
	StreamRateLimit int           `mapstructure:"stream_rate_limit"`
	StreamWindow    time.Duration `mapstructure:"stream_rate_window"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

var defaults = map[string]any{
	"log_level":  "info",
	"log_format": "text",

	"fetch.timeout":            10 * time.Second,
	"fetch.max_bytes":          int64(2 << 20),
	"fetch.retry_delay":        time.Second,
	"fetch.user_agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	"fetch.use_browser":        false,
	"fetch.min_content_length": 500,
	"fetch.render_timeout":     30 * time.Second,

	"cache.backend":           "memory",
	"cache.ttl":               5 * time.Minute,
	"cache.janitor_interval":  time.Minute,
	"cache.valkey.address":    "",
	"cache.valkey.password":   "",
	"cache.valkey.db":         0,
	"cache.valkey.key_prefix": "brochure",

	"selection.provider":       "gemini",
	"selection.max_links":      6,
	"selection.max_candidates": 50,
	"selection.timeout":        30 * time.Second,

	"aggregation.concurrency":    4,
	"aggregation.max_page_chars": 2000,

	"generation.max_tokens": 2000,
	"generation.timeout":    120 * time.Second,

	"openai.api_key":  "",
	"openai.model":    "gpt-5-nano",
	"openai.base_url": "",
	"gemini.api_key":  "",
	"gemini.model":    "gemini-2.5-flash",
	"gemini.base_url": "",

	"server.port":               8080,
	"server.cors_origin":        "*",
	"server.rate_limit":         60,
	"server.rate_window":        time.Minute,
	"server.stream_rate_limit":  10,
	"server.stream_rate_window": time.Hour,
	"server.shutdown_timeout":   30 * time.Second,

	"jwt.secret":           "",
	"jwt.expiration_hours": 24,

	"database_url": "",
}

// conventional environment names accepted alongside the BROCHURE_ ones
var envAliases = map[string][]string{
	"openai.api_key":       {"OPENAI_API_KEY"},
	"openai.base_url":      {"OPENAI_BASE_URL"},
	"gemini.api_key":       {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"database_url":         {"DATABASE_URL"},
	"cache.valkey.address": {"VALKEY_ADDR"},
	"jwt.secret":           {"JWT_SECRET"},
	"jwt.expiration_hours": {"JWT_EXPIRATION_HOURS"},
}

// Load reads the optional config file at path (YAML, JSON or TOML), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "failed to bind environment for %s", key)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "failed to read config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. It does not require API keys; see RequireProvider.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Fetch.Timeout > 0, "fetch.timeout must be positive")
	check(c.Fetch.MaxBytes > 0, "fetch.max_bytes must be positive")
	check(c.Fetch.RetryDelay >= 0, "fetch.retry_delay must not be negative")
	check(c.Cache.Backend == "memory" || c.Cache.Backend == "valkey", "cache.backend must be memory or valkey, got %q", c.Cache.Backend)
	check(c.Cache.TTL > 0, "cache.ttl must be positive")
	check(c.Cache.Backend != "valkey" || c.Cache.Valkey.Address != "", "cache.valkey.address is required for the valkey backend")
	check(c.Selection.Provider == "openai" || c.Selection.Provider == "gemini", "selection.provider must be openai or gemini, got %q", c.Selection.Provider)
	check(c.Selection.MaxLinks >= 1, "selection.max_links must be at least 1")
	check(c.Selection.MaxCandidates >= 1, "selection.max_candidates must be at least 1")
	check(c.Selection.Timeout > 0, "selection.timeout must be positive")
	check(c.Aggregation.Concurrency >= 1 && c.Aggregation.Concurrency <= 8, "aggregation.concurrency must be between 1 and 8, got %d", c.Aggregation.Concurrency)
	check(c.Aggregation.MaxPageChars >= 0, "aggregation.max_page_chars must not be negative")
	check(c.Generation.MaxTokens >= 1, "generation.max_tokens must be at least 1")
	check(c.Generation.Timeout > 0, "generation.timeout must be positive")
	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be a valid port, got %d", c.Server.Port)
	check(c.Server.RateLimit >= 0 && c.Server.StreamRateLimit >= 0, "server rate limits must not be negative")

	if len(problems) > 0 {
		return eris.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	if err := c.JWT.validate(); err != nil {
		return err
	}
	return nil
}

// RequireProvider fails unless at least one LLM API key is configured.
func (c *Config) RequireProvider() error {
	if c.OpenAI.APIKey == "" && c.Gemini.APIKey == "" {
		return eris.New("no LLM provider configured: set OPENAI_API_KEY or GEMINI_API_KEY")
	}
	return nil
}
