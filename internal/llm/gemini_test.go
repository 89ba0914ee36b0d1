package llm

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

type fakeIterator struct {
	responses []*genai.GenerateContentResponse
	err       error
	i         int
}

func (f *fakeIterator) Next() (*genai.GenerateContentResponse, error) {
	if f.i < len(f.responses) {
		f.i++
		return f.responses[f.i-1], nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, iterator.Done
}

type fakeGeminiBackend struct {
	resp      *genai.GenerateContentResponse
	err       error
	iter      *fakeIterator
	lastModel *genai.GenerativeModel
	lastText  string
	closed    bool
}

func (f *fakeGeminiBackend) generate(_ context.Context, model *genai.GenerativeModel, text string) (*genai.GenerateContentResponse, error) {
	f.lastModel, f.lastText = model, text
	return f.resp, f.err
}

func (f *fakeGeminiBackend) stream(_ context.Context, model *genai.GenerativeModel, text string) responseIterator {
	f.lastModel, f.lastText = model, text
	return f.iter
}

func (f *fakeGeminiBackend) model(string) *genai.GenerativeModel {
	return &genai.GenerativeModel{}
}

func (f *fakeGeminiBackend) close() error {
	f.closed = true
	return nil
}

func TestGeminiClient_GenerateJSON(t *testing.T) {
	backend := &fakeGeminiBackend{resp: textResponse("```json\n", `{"links": []}`, "\n```")}
	client := newGeminiClient(backend, DefaultConfig(ProviderGemini), nil)

	out, err := client.GenerateJSON(context.Background(), Prompt{System: "sys", User: "pick"}, Options{Temperature: 0.3, MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, `{"links": []}`, out)

	assert.Equal(t, "pick", backend.lastText)
	assert.Equal(t, "application/json", backend.lastModel.ResponseMIMEType)
	require.NotNil(t, backend.lastModel.Temperature)
	assert.InDelta(t, 0.3, *backend.lastModel.Temperature, 0.001)
	require.NotNil(t, backend.lastModel.MaxOutputTokens)
	assert.Equal(t, int32(100), *backend.lastModel.MaxOutputTokens)
	require.NotNil(t, backend.lastModel.SystemInstruction)
}

func TestGeminiClient_GenerateJSONError(t *testing.T) {
	backend := &fakeGeminiBackend{err: errors.New("resource exhausted")}
	client := newGeminiClient(backend, DefaultConfig(ProviderGemini), nil)

	_, err := client.GenerateJSON(context.Background(), Prompt{User: "pick"}, Options{})
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, ProviderGemini, genErr.Provider)
}

func TestGeminiClient_GenerateJSONNoCandidates(t *testing.T) {
	backend := &fakeGeminiBackend{resp: &genai.GenerateContentResponse{}}
	client := newGeminiClient(backend, DefaultConfig(ProviderGemini), nil)

	_, err := client.GenerateJSON(context.Background(), Prompt{User: "pick"}, Options{})
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestGeminiClient_GenerateStream(t *testing.T) {
	backend := &fakeGeminiBackend{iter: &fakeIterator{responses: []*genai.GenerateContentResponse{
		textResponse("Acme "),
		{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}}},
		textResponse("builds ", "rockets"),
	}}}
	client := newGeminiClient(backend, DefaultConfig(ProviderGemini), nil)

	stream, err := client.GenerateStream(context.Background(), Prompt{User: "write"}, Options{MaxTokens: 64000})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	chunks, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme ", "builds rockets"}, chunks)
	assert.Equal(t, int32(32000), *backend.lastModel.MaxOutputTokens)
}

func TestGeminiClient_GenerateStreamMidStreamError(t *testing.T) {
	backend := &fakeGeminiBackend{iter: &fakeIterator{
		responses: []*genai.GenerateContentResponse{textResponse("partial")},
		err:       errors.New("stream reset"),
	}}
	client := newGeminiClient(backend, DefaultConfig(ProviderGemini), nil)

	stream, err := client.GenerateStream(context.Background(), Prompt{User: "write"}, Options{})
	require.NoError(t, err)

	chunks, err := collect(t, stream)
	assert.Equal(t, []string{"partial"}, chunks)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
}

func TestGeminiClient_GenerateStreamCancelledContext(t *testing.T) {
	client := newGeminiClient(&fakeGeminiBackend{iter: &fakeIterator{}}, DefaultConfig(ProviderGemini), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GenerateStream(ctx, Prompt{User: "write"}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeminiClient_Close(t *testing.T) {
	backend := &fakeGeminiBackend{}
	client := newGeminiClient(backend, &Config{Provider: ProviderGemini}, nil)
	assert.Equal(t, DefaultGeminiModel, client.Model())
	assert.Equal(t, ProviderGemini, client.Provider())
	require.NoError(t, client.Close())
	assert.True(t, backend.closed)
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), DefaultConfig(ProviderGemini), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestGeminiClient_Integration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	client, err := NewGeminiClient(context.Background(), DefaultConfig(ProviderGemini).WithAPIKey(apiKey), nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	stream, err := client.GenerateStream(context.Background(), Prompt{User: "Say hello in three words."}, Options{Temperature: 0.2, MaxTokens: 50})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	chunks, err := collect(t, stream)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}
