package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	provider Provider
	closeErr error
	closed   bool
}

func (s *stubClient) GenerateJSON(context.Context, Prompt, Options) (string, error) { return "{}", nil }
func (s *stubClient) GenerateStream(context.Context, Prompt, Options) (ChunkStream, error) {
	return nil, errors.New("not implemented")
}
func (s *stubClient) Provider() Provider { return s.provider }
func (s *stubClient) Model() string      { return "stub" }
func (s *stubClient) Close() error {
	s.closed = true
	return s.closeErr
}

func TestRegistry_GetAndProviders(t *testing.T) {
	gemini := &stubClient{provider: ProviderGemini}
	openai := &stubClient{provider: ProviderOpenAI}
	r := NewRegistry(gemini, nil, openai)

	assert.Equal(t, []Provider{ProviderOpenAI, ProviderGemini}, r.Providers())

	got, err := r.Get(ProviderGemini)
	require.NoError(t, err)
	assert.Same(t, gemini, got)
	assert.True(t, r.Has(ProviderOpenAI))
}

func TestRegistry_MissingProvider(t *testing.T) {
	r := NewRegistry(&stubClient{provider: ProviderOpenAI})

	_, err := r.Get(ProviderGemini)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
	assert.False(t, r.Has(ProviderGemini))
}

func TestRegistry_CloseJoinsErrors(t *testing.T) {
	a := &stubClient{provider: ProviderOpenAI, closeErr: errors.New("a failed")}
	b := &stubClient{provider: ProviderGemini}
	r := NewRegistry(a, b)

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestOpenRegistry_SkipsConfigsWithoutKey(t *testing.T) {
	r, err := OpenRegistry(context.Background(), nil,
		DefaultConfig(ProviderOpenAI).WithAPIKey("sk-test"),
		DefaultConfig(ProviderGemini),
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, []Provider{ProviderOpenAI}, r.Providers())
}

func TestNewClient_UnsupportedProvider(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{Provider: "llama", APIKey: "k"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}
