package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/cache"
	"github.com/jonathan/company-brochure/internal/config"
	"github.com/jonathan/company-brochure/internal/crawling"
	"github.com/jonathan/company-brochure/internal/db"
	"github.com/jonathan/company-brochure/internal/fetch"
	"github.com/jonathan/company-brochure/internal/llm"
	"github.com/jonathan/company-brochure/internal/logging"
	"github.com/jonathan/company-brochure/internal/pipeline"
	"github.com/jonathan/company-brochure/internal/server"
	"github.com/jonathan/company-brochure/internal/server/ratelimit"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	engine   *pipeline.Engine
	store    db.ArtifactStore
	registry *llm.Registry
	closers  []func()
}

// loadConfig reads the config file named by --config plus the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp builds the logger, cache, fetcher, providers, store and engine.
// The janitor and any Valkey or database connections live until Close.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logging.New(cfg.LogLevel, logging.Format(cfg.LogFormat))
	if err != nil {
		return nil, eris.Wrap(err, "failed to create logger")
	}
	a := &app{cfg: cfg, log: log}

	store, err := a.openCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetchOpts := []fetch.Option{fetch.WithLogger(log)}
	if cfg.Fetch.UseBrowser {
		fetchOpts = append(fetchOpts, fetch.WithRenderer(fetch.NewChromeRenderer(cfg.Fetch.RenderTimeout, log)))
	}
	fetcher := fetch.NewCachedFetcher(fetch.NewFetcher(fetchOptions(cfg), fetchOpts...), store, log)

	a.registry, err = llm.OpenRegistry(ctx, log, providerConfigs(cfg)...)
	if err != nil {
		a.Close()
		return nil, eris.Wrap(err, "failed to open LLM providers")
	}
	a.closers = append(a.closers, func() { _ = a.registry.Close() })

	a.store, err = a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = pipeline.NewEngine(fetcher, a.registry, engineConfig(cfg),
		pipeline.WithArtifactSink(a.store),
		pipeline.WithLogger(log),
	)
	return a, nil
}

// openCache picks the cache backend and starts the expiry janitor.
func (a *app) openCache(ctx context.Context) (cache.Store, error) {
	var store cache.Store
	switch a.cfg.Cache.Backend {
	case "valkey":
		v, err := cache.NewValkey(cache.ValkeyConfig{
			Address:   a.cfg.Cache.Valkey.Address,
			Password:  a.cfg.Cache.Valkey.Password,
			DB:        a.cfg.Cache.Valkey.DB,
			KeyPrefix: a.cfg.Cache.Valkey.KeyPrefix,
		}, a.cfg.Cache.TTL, a.log)
		if err != nil {
			return nil, eris.Wrap(err, "failed to open valkey cache")
		}
		a.closers = append(a.closers, v.Close)
		store = v
	default:
		store = cache.NewMemory(a.cfg.Cache.TTL)
	}

	janitorCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	a.closers = append(a.closers, stop)
	cache.StartJanitor(janitorCtx, store, a.cfg.Cache.JanitorInterval, a.log)

	a.log.WithField("backend", a.cfg.Cache.Backend).Debug("content cache ready")
	return store, nil
}

// openStore connects to PostgreSQL when a database URL is set and falls
// back to an in-memory store otherwise.
func (a *app) openStore(ctx context.Context) (db.ArtifactStore, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Debug("no database configured, keeping brochures in memory")
		return db.NewMemoryStore(), nil
	}

	database, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to database")
	}
	a.closers = append(a.closers, database.Close)
	if err := database.EnsureSchema(ctx); err != nil {
		return nil, eris.Wrap(err, "failed to create database schema")
	}
	return database, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func fetchOptions(cfg *config.Config) *fetch.Options {
	opts := fetch.DefaultOptions()
	opts.Timeout = cfg.Fetch.Timeout
	opts.MaxBytes = cfg.Fetch.MaxBytes
	opts.RetryDelay = cfg.Fetch.RetryDelay
	opts.UserAgent = cfg.Fetch.UserAgent
	opts.UseBrowser = cfg.Fetch.UseBrowser
	opts.MinContentLength = cfg.Fetch.MinContentLength
	return opts
}

func providerConfigs(cfg *config.Config) []*llm.Config {
	openai := llm.DefaultConfig(llm.ProviderOpenAI).WithAPIKey(cfg.OpenAI.APIKey)
	if cfg.OpenAI.Model != "" {
		openai = openai.WithModel(cfg.OpenAI.Model)
	}
	openai.BaseURL = cfg.OpenAI.BaseURL

	gemini := llm.DefaultConfig(llm.ProviderGemini).WithAPIKey(cfg.Gemini.APIKey)
	if cfg.Gemini.Model != "" {
		gemini = gemini.WithModel(cfg.Gemini.Model)
	}
	return []*llm.Config{openai, gemini}
}

func engineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		MaxCandidates: cfg.Selection.MaxCandidates,
		Selection: crawling.SelectorConfig{
			MaxLinks:  cfg.Selection.MaxLinks,
			Timeout:   cfg.Selection.Timeout,
			MaxTokens: crawling.DefaultSelectionTokens,
		},
		SelectionProvider: llm.Provider(cfg.Selection.Provider),
		Aggregation: crawling.AggregatorConfig{
			Concurrency:  cfg.Aggregation.Concurrency,
			MaxPageChars: cfg.Aggregation.MaxPageChars,
		},
		FetchTimeout:      cfg.Fetch.Timeout,
		GenerationTimeout: cfg.Generation.Timeout,
		MaxTokens:         cfg.Generation.MaxTokens,
	}
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Port:            cfg.Server.Port,
		CORSOrigin:      cfg.Server.CORSOrigin,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit: ratelimit.NewConfig(
			cfg.Server.RateLimit, cfg.Server.RateWindow,
			cfg.Server.StreamRateLimit, cfg.Server.StreamWindow,
		),
		JWT: cfg.JWT,
	}
}
