package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Prompt is a system and user message pair.
type Prompt struct {
	System string
	User   string
}

// Options controls a single generation.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// ChunkStream yields generated text in provider order. It is finite and
// cannot be restarted: after io.EOF or an error every Recv returns the same
// error. Close cancels the underlying request.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}

// Client is an abstraction over LLM providers.
type Client interface {
	// GenerateJSON returns a single structured response, markdown fences removed.
	GenerateJSON(ctx context.Context, prompt Prompt, opts Options) (string, error)
	// GenerateStream starts a streaming generation.
	GenerateStream(ctx context.Context, prompt Prompt, opts Options) (ChunkStream, error)
	// Provider returns the backend identifier.
	Provider() Provider
	// Model returns the model name requests are sent to.
	Model() string
	// Close releases any resources held by the client.
	Close() error
}

// ErrStreamClosed is returned by Recv after Close.
var ErrStreamClosed = errors.New("stream closed")

// GenerationError is a provider failure normalized across backends.
type GenerationError struct {
	Provider Provider
	Message  string
	Cause    error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s generation error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s generation error: %s", e.Provider, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// wrapError normalizes err into a GenerationError. Context errors pass
// through untouched so callers can tell cancellation apart.
func wrapError(p Provider, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return err
	}
	return &GenerationError{Provider: p, Message: message, Cause: err}
}

// NewClient creates a client for the configured provider.
func NewClient(ctx context.Context, cfg *Config, log logrus.FieldLogger) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config is required")
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg, log)
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
