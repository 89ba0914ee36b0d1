package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jonathan/company-brochure/internal/logging"
)

// responseIterator is satisfied by *genai.GenerateContentResponseIterator.
type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

type geminiBackend interface {
	generate(ctx context.Context, model *genai.GenerativeModel, text string) (*genai.GenerateContentResponse, error)
	stream(ctx context.Context, model *genai.GenerativeModel, text string) responseIterator
	model(name string) *genai.GenerativeModel
	close() error
}

type sdkBackend struct {
	client *genai.Client
}

func (b *sdkBackend) generate(ctx context.Context, model *genai.GenerativeModel, text string) (*genai.GenerateContentResponse, error) {
	return model.GenerateContent(ctx, genai.Text(text))
}

func (b *sdkBackend) stream(ctx context.Context, model *genai.GenerativeModel, text string) responseIterator {
	return model.GenerateContentStream(ctx, genai.Text(text))
}

func (b *sdkBackend) model(name string) *genai.GenerativeModel {
	return b.client.GenerativeModel(name)
}

func (b *sdkBackend) close() error {
	return b.client.Close()
}

// GeminiClient implements Client for Google Gemini.
type GeminiClient struct {
	backend   geminiBackend
	modelName string
	timeout   time.Duration
	log       logrus.FieldLogger
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg *Config, log logrus.FieldLogger) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiClient(&sdkBackend{client: client}, cfg, log), nil
}

func newGeminiClient(backend geminiBackend, cfg *Config, log logrus.FieldLogger) *GeminiClient {
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	return &GeminiClient{
		backend:   backend,
		modelName: modelName,
		timeout:   cfg.RequestTimeout,
		log:       logging.OrDiscard(log).WithField("provider", ProviderGemini),
	}
}

func (c *GeminiClient) configure(prompt Prompt, opts Options) *genai.GenerativeModel {
	model := c.backend.model(c.modelName)
	if model == nil {
		model = &genai.GenerativeModel{}
	}
	model.SetTemperature(float32(opts.Temperature))
	if maxTokens := ClampMaxTokens(ProviderGemini, opts.MaxTokens); maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	if prompt.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
	}
	return model
}

// GenerateJSON generates JSON content.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt Prompt, opts Options) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	model := c.configure(prompt, opts)
	model.ResponseMIMEType = "application/json"

	resp, err := c.backend.generate(ctx, model, prompt.User)
	if err != nil {
		c.log.WithError(err).Warn("generate content failed")
		return "", wrapError(ProviderGemini, "failed to generate content", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", wrapError(ProviderGemini, "invalid response", err)
	}
	return CleanJSONBlock(text), nil
}

// GenerateStream starts a streaming generation.
func (c *GeminiClient) GenerateStream(ctx context.Context, prompt Prompt, opts Options) (ChunkStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	iter := c.backend.stream(ctx, c.configure(prompt, opts), prompt.User)
	if iter == nil {
		cancel()
		return nil, &GenerationError{Provider: ProviderGemini, Message: "failed to open stream"}
	}

	next := func() (string, error) {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		return chunkText(resp), nil
	}
	closeFn := func() error {
		cancel()
		return nil
	}
	return newChunkStream(ctx, ProviderGemini, next, closeFn), nil
}

// Provider returns ProviderGemini.
func (c *GeminiClient) Provider() Provider {
	return ProviderGemini
}

// Model returns the model name.
func (c *GeminiClient) Model() string {
	return c.modelName
}

// Close releases resources held by the client.
func (c *GeminiClient) Close() error {
	if c.backend != nil {
		return c.backend.close()
	}
	return nil
}

// chunkText returns the text parts of a streamed response. Chunks that
// carry only metadata yield "".
func chunkText(resp *genai.GenerateContentResponse) string {
	text, err := extractTextFromResponse(resp)
	if err != nil {
		return ""
	}
	return text
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
