package llm

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/logging"
)

type chatCompletionClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// OpenAIClient implements Client on OpenAI chat completions.
type OpenAIClient struct {
	chat    chatCompletionClient
	model   string
	timeout time.Duration
	log     logrus.FieldLogger
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*[]option.RequestOption)

// WithOpenAIHTTPClient sets the HTTP client used for API calls.
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithHTTPClient(c))
	}
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(cfg *Config, log logrus.FieldLogger, opts ...OpenAIOption) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("openai api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(baseURL))
	}
	for _, o := range opts {
		o(&requestOptions)
	}

	apiClient := openai.NewClient(requestOptions...)
	return &OpenAIClient{
		chat:    &apiClient.Chat.Completions,
		model:   model,
		timeout: cfg.RequestTimeout,
		log:     logging.OrDiscard(log).WithField("provider", ProviderOpenAI),
	}, nil
}

func (c *OpenAIClient) params(prompt Prompt, opts Options) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(opts.Temperature),
	}
	if maxTokens := ClampMaxTokens(ProviderOpenAI, opts.MaxTokens); maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	return params
}

// GenerateJSON sends a single chat completion and returns the cleaned JSON text.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, prompt Prompt, opts Options) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.chat.New(ctx, c.params(prompt, opts))
	if err != nil {
		c.log.WithError(err).Warn("chat completion failed")
		return "", wrapError(ProviderOpenAI, "chat completion failed", err)
	}
	if len(completion.Choices) == 0 {
		return "", &GenerationError{Provider: ProviderOpenAI, Message: "completion returned no choices"}
	}

	choice := completion.Choices[0]
	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		return "", &GenerationError{Provider: ProviderOpenAI, Message: "model refused: " + refusal}
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", &GenerationError{Provider: ProviderOpenAI, Message: "empty response"}
	}
	return CleanJSONBlock(content), nil
}

// GenerateStream starts a streaming chat completion.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt Prompt, opts Options) (ChunkStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	stream := c.chat.NewStreaming(ctx, c.params(prompt, opts))
	if stream == nil {
		cancel()
		return nil, &GenerationError{Provider: ProviderOpenAI, Message: "failed to open stream"}
	}
	if err := stream.Err(); err != nil {
		cancel()
		_ = stream.Close()
		return nil, wrapError(ProviderOpenAI, "failed to open stream", err)
	}

	next := func() (string, error) {
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			return chunk.Choices[0].Delta.Content, nil
		}
		if err := stream.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	closeFn := func() error {
		cancel()
		return stream.Close()
	}
	return newChunkStream(ctx, ProviderOpenAI, next, closeFn), nil
}

// Provider returns ProviderOpenAI.
func (c *OpenAIClient) Provider() Provider {
	return ProviderOpenAI
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Close is a no-op; the SDK holds no long-lived resources.
func (c *OpenAIClient) Close() error {
	return nil
}

// withTimeout applies an optional deadline to a non-streaming request.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
