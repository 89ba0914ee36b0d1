package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/company-brochure/internal/config"
	"github.com/jonathan/company-brochure/internal/db"
	"github.com/jonathan/company-brochure/internal/llm"
	"github.com/jonathan/company-brochure/internal/types"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	isolateEnv(t)
	cfg, err := loadConfig()
	require.NoError(t, err)
	return cfg
}

func TestEngineConfig_FromDefaults(t *testing.T) {
	cfg := loadTestConfig(t)

	ec := engineConfig(cfg)
	assert.Equal(t, 50, ec.MaxCandidates)
	assert.Equal(t, 6, ec.Selection.MaxLinks)
	assert.Equal(t, 30*time.Second, ec.Selection.Timeout)
	assert.Equal(t, llm.ProviderGemini, ec.SelectionProvider)
	assert.Equal(t, 4, ec.Aggregation.Concurrency)
	assert.Equal(t, 2000, ec.Aggregation.MaxPageChars)
	assert.Equal(t, 2000, ec.MaxTokens)
	assert.Equal(t, 190*time.Second, ec.SessionTimeout())
}

func TestProviderConfigs(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = "http://localhost:9999/v1"
	cfg.Gemini.Model = "gemini-custom"

	configs := providerConfigs(cfg)
	require.Len(t, configs, 2)
	assert.Equal(t, llm.ProviderOpenAI, configs[0].Provider)
	assert.Equal(t, "sk-test", configs[0].APIKey)
	assert.Equal(t, "gpt-5-nano", configs[0].Model)
	assert.Equal(t, "http://localhost:9999/v1", configs[0].BaseURL)
	assert.Equal(t, llm.ProviderGemini, configs[1].Provider)
	assert.Empty(t, configs[1].APIKey)
	assert.Equal(t, "gemini-custom", configs[1].Model)
}

func TestServerConfig(t *testing.T) {
	cfg := loadTestConfig(t)

	sc := serverConfig(cfg)
	assert.Equal(t, 8080, sc.Port)
	assert.Equal(t, "*", sc.CORSOrigin)
	require.NotNil(t, sc.RateLimit)
	assert.True(t, sc.RateLimit.Enabled)
	assert.Equal(t, 60, sc.RateLimit.DefaultLimit)
	assert.False(t, sc.JWT.Enabled())
}

func TestLoadConfig_VerboseRaisesLogLevel(t *testing.T) {
	isolateEnv(t)
	verbose = true
	t.Cleanup(func() { verbose = false })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestNewApp_MemoryDefaults(t *testing.T) {
	cfg := loadTestConfig(t)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &db.MemoryStore{}, a.store)
	assert.Empty(t, a.registry.Providers())
	assert.Empty(t, a.engine.Models())
	assert.Equal(t, 190*time.Second, a.engine.Config().SessionTimeout())
}

func TestNewApp_RejectsBadLogLevel(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.LogLevel = "chatty"

	_, err := newApp(context.Background(), cfg)
	assert.Error(t, err)
}

func TestGenerateRequest_FromFlags(t *testing.T) {
	genCompany, genURL, genModel, genTone = "Acme", "acme.test", "gemini", "friendly"
	genTemperature, genMaxChars, genInstructions = 0, 3000, "Mention rockets"
	t.Cleanup(func() {
		genCompany, genURL, genModel, genTone = "", "", string(types.ModelOpenAI), string(types.ToneProfessional)
		genTemperature, genMaxChars, genInstructions = types.DefaultTemperature, types.DefaultMaxContentChars, ""
	})

	req := generateRequest()
	assert.Equal(t, types.GenerationRequest{
		CompanyName:        "Acme",
		BaseURL:            "acme.test",
		Model:              types.ModelGemini,
		Tone:               types.ToneFriendly,
		CustomInstructions: "Mention rockets",
		Temperature:        0,
		MaxContentChars:    3000,
	}, req)
}
