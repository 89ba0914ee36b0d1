// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jonathan/company-brochure/internal/llm"
)

// Client is a scripted llm.Client. Zero values produce an empty JSON object
// and an empty stream.
type Client struct {
	ProviderName llm.Provider
	ModelName    string

	// JSON is returned by GenerateJSON unless JSONErr is set.
	JSON    string
	JSONErr error

	// Chunks are streamed in order. When FailAfter >= 0, Recv returns
	// StreamErr after that many chunks; otherwise StreamErr (if any)
	// replaces io.EOF at the end.
	Chunks    []string
	StartErr  error
	StreamErr error
	FailAfter int

	// Stall, when set, makes Recv block once the chunks are used up until
	// Stall is closed or the stream context is done.
	Stall chan struct{}

	mu          sync.Mutex
	jsonCalls   int
	streamCalls int
	prompts     []llm.Prompt
	options     []llm.Options
	streams     []*Stream
	closed      bool
}

// New returns a scripted client for provider that streams chunks.
func New(provider llm.Provider, chunks ...string) *Client {
	return &Client{ProviderName: provider, ModelName: "scripted-" + string(provider), Chunks: chunks, FailAfter: -1}
}

// GenerateJSON records the call and returns the scripted JSON.
func (c *Client) GenerateJSON(ctx context.Context, prompt llm.Prompt, opts llm.Options) (string, error) {
	c.mu.Lock()
	c.jsonCalls++
	c.prompts = append(c.prompts, prompt)
	c.options = append(c.options, opts)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.JSONErr != nil {
		return "", c.JSONErr
	}
	if c.JSON == "" {
		return "{}", nil
	}
	return c.JSON, nil
}

// GenerateStream records the call and returns a scripted stream.
func (c *Client) GenerateStream(ctx context.Context, prompt llm.Prompt, opts llm.Options) (llm.ChunkStream, error) {
	c.mu.Lock()
	c.streamCalls++
	c.prompts = append(c.prompts, prompt)
	c.options = append(c.options, opts)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.StartErr != nil {
		return nil, c.StartErr
	}

	s := &Stream{ctx: ctx, chunks: c.Chunks, failAfter: c.FailAfter, failErr: c.StreamErr, stall: c.Stall}
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

// Provider returns the scripted provider.
func (c *Client) Provider() llm.Provider { return c.ProviderName }

// Model returns the scripted model name.
func (c *Client) Model() string { return c.ModelName }

// Close marks the client closed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// JSONCalls returns how many times GenerateJSON was called.
func (c *Client) JSONCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jsonCalls
}

// StreamCalls returns how many times GenerateStream was called.
func (c *Client) StreamCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamCalls
}

// Prompts returns every prompt received, in call order.
func (c *Client) Prompts() []llm.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Prompt(nil), c.prompts...)
}

// Options returns every option set received, in call order.
func (c *Client) Options() []llm.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Options(nil), c.options...)
}

// LastStream returns the most recently opened stream, or nil.
func (c *Client) LastStream() *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return nil
	}
	return c.streams[len(c.streams)-1]
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Stream is the scripted llm.ChunkStream.
type Stream struct {
	ctx       context.Context
	chunks    []string
	failAfter int
	failErr   error
	stall     chan struct{}

	mu     sync.Mutex
	pos    int
	err    error
	recvs  atomic.Int32
	closed atomic.Bool
}

// Recv returns the next scripted chunk.
func (s *Stream) Recv() (string, error) {
	s.recvs.Add(1)
	s.waitIfStalled()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}
	if s.closed.Load() {
		s.err = llm.ErrStreamClosed
		return "", s.err
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return "", err
	}
	if s.failAfter >= 0 && s.pos >= s.failAfter && s.failErr != nil {
		s.err = s.failErr
		return "", s.err
	}
	if s.pos < len(s.chunks) {
		s.pos++
		return s.chunks[s.pos-1], nil
	}
	if s.failErr != nil {
		s.err = s.failErr
		return "", s.err
	}
	s.err = io.EOF
	return "", io.EOF
}

func (s *Stream) waitIfStalled() {
	if s.stall == nil {
		return
	}
	s.mu.Lock()
	exhausted := s.err == nil && s.pos >= len(s.chunks)
	s.mu.Unlock()
	if !exhausted {
		return
	}
	select {
	case <-s.stall:
	case <-s.ctx.Done():
	}
}

// Close marks the stream closed.
func (s *Stream) Close() error {
	s.closed.Store(true)
	return nil
}

// RecvCalls returns how many times Recv was called.
func (s *Stream) RecvCalls() int {
	return int(s.recvs.Load())
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}

var _ llm.Client = (*Client)(nil)
