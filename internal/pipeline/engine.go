// Package pipeline orchestrates brochure generation sessions.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/crawling"
	"github.com/jonathan/company-brochure/internal/fetch"
	"github.com/jonathan/company-brochure/internal/llm"
	"github.com/jonathan/company-brochure/internal/logging"
	"github.com/jonathan/company-brochure/internal/types"
)

// Engine defaults
const (
	DefaultMaxTokens         = 2000
	DefaultGenerationTimeout = 120 * time.Second
)

// Config holds the engine settings shared by every session.
type Config struct {
	MaxCandidates     int
	Selection         crawling.SelectorConfig
	SelectionProvider llm.Provider
	Aggregation       crawling.AggregatorConfig
	FetchTimeout      time.Duration
	GenerationTimeout time.Duration
	MaxTokens         int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:     crawling.DefaultMaxCandidates,
		Selection:         crawling.DefaultSelectorConfig(),
		SelectionProvider: llm.ProviderGemini,
		Aggregation:       crawling.DefaultAggregatorConfig(),
		FetchTimeout:      fetch.DefaultTimeout,
		GenerationTimeout: DefaultGenerationTimeout,
		MaxTokens:         DefaultMaxTokens,
	}
}

// SessionTimeout bounds a whole session: two fetch stages around selection,
// then generation.
func (c Config) SessionTimeout() time.Duration {
	return 2*c.FetchTimeout + c.Selection.Timeout + 2*c.FetchTimeout + c.GenerationTimeout
}

// ArtifactSink receives completed brochures.
type ArtifactSink interface {
	SaveBrochure(ctx context.Context, artifact *types.BrochureArtifact) error
}

// Engine owns the collaborators shared by sessions.
type Engine struct {
	fetcher    *fetch.CachedFetcher
	aggregator *crawling.Aggregator
	registry   *llm.Registry
	sink       ArtifactSink
	cfg        Config
	log        logrus.FieldLogger
	now        func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithArtifactSink persists completed brochures to sink.
func WithArtifactSink(sink ArtifactSink) EngineOption {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithLogger sets the engine logger.
func WithLogger(log logrus.FieldLogger) EngineOption {
	return func(e *Engine) {
		e.log = logging.OrDiscard(log)
	}
}

// WithClock replaces time.Now for artifact timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine. Zero config values take their defaults.
func NewEngine(fetcher *fetch.CachedFetcher, registry *llm.Registry, cfg Config, opts ...EngineOption) *Engine {
	def := DefaultConfig()
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.Selection.MaxLinks <= 0 {
		cfg.Selection.MaxLinks = def.Selection.MaxLinks
	}
	if cfg.Selection.Timeout <= 0 {
		cfg.Selection.Timeout = def.Selection.Timeout
	}
	if cfg.SelectionProvider == "" {
		cfg.SelectionProvider = def.SelectionProvider
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = def.GenerationTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if registry == nil {
		registry = llm.NewRegistry()
	}

	e := &Engine{
		fetcher:  fetcher,
		registry: registry,
		cfg:      cfg,
		log:      logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.aggregator = crawling.NewAggregator(fetcher, cfg.Aggregation, e.log)
	return e
}

// Config returns the effective engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// NewSession normalizes and validates req and returns a session ready to run.
func (e *Engine) NewSession(req types.GenerationRequest) (*Session, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !e.registry.Has(llm.Provider(req.Model)) {
		return nil, fmt.Errorf("%w: %s", llm.ErrProviderNotConfigured, req.Model)
	}
	return &Session{
		id:      uuid.New(),
		req:     req,
		engine:  e,
		state:   StateInit,
		history: []State{StateInit},
	}, nil
}

// SuggestLinks fetches the homepage and returns the links selection would
// pick, without generating anything.
func (e *Engine) SuggestLinks(ctx context.Context, baseURL, company string) (*types.LinkSelection, error) {
	baseURL, err := types.NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	home, err := e.fetcher.Fetch(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	candidates, err := crawling.Candidates(home, baseURL, e.cfg.MaxCandidates)
	if err != nil {
		return nil, err
	}

	var fallback llm.Provider
	if providers := e.registry.Providers(); len(providers) > 0 {
		fallback = providers[0]
	}
	return e.selector(fallback).Resolve(ctx, candidates, crawling.CompanyContext{Name: company, BaseURL: baseURL})
}

// ClearCache drops every cached page.
func (e *Engine) ClearCache(ctx context.Context) {
	e.fetcher.Invalidate(ctx)
	e.log.Info("content cache cleared")
}

// Models returns the models with a configured provider, in display order.
func (e *Engine) Models() []types.Model {
	out := make([]types.Model, 0, 2)
	for _, m := range types.Models() {
		if e.registry.Has(llm.Provider(m)) {
			out = append(out, m)
		}
	}
	return out
}

// selector returns a link selector on the configured selection provider,
// or on fallback when that provider is not configured.
func (e *Engine) selector(fallback llm.Provider) *crawling.Selector {
	client, err := e.registry.Get(e.cfg.SelectionProvider)
	if err != nil && fallback != "" {
		client, err = e.registry.Get(fallback)
	}
	if err != nil {
		client = nil
	}
	return crawling.NewSelector(client, e.cfg.Selection, e.log)
}
