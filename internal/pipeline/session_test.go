package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/company-brochure/internal/cache"
	"github.com/jonathan/company-brochure/internal/crawling"
	"github.com/jonathan/company-brochure/internal/fetch"
	"github.com/jonathan/company-brochure/internal/fetch/fetchtest"
	"github.com/jonathan/company-brochure/internal/llm"
	"github.com/jonathan/company-brochure/internal/llm/llmtest"
	"github.com/jonathan/company-brochure/internal/types"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

const acmeSelection = `{"links": [
	{"type": "about page", "url": "https://acme.test/about"},
	{"type": "careers page", "url": "/careers"}
], "reason": "company and hiring"}`

func acmeSite() *fetchtest.Site {
	return fetchtest.NewSite().
		Page("https://acme.test", "Acme", "Acme builds rockets.",
			types.LinkCandidate{URL: "https://acme.test/about", AnchorText: "About"},
			types.LinkCandidate{URL: "https://acme.test/careers", AnchorText: "Careers"},
			types.LinkCandidate{URL: "https://acme.test/privacy", AnchorText: "Privacy"},
		).
		Page("https://acme.test/about", "About", "Founded in 1949.").
		Page("https://acme.test/careers", "Careers", "We are hiring engineers.")
}

func acmeRequest() types.GenerationRequest {
	return types.GenerationRequest{
		CompanyName:     "Acme",
		BaseURL:         "https://acme.test",
		Model:           types.ModelOpenAI,
		Tone:            types.ToneProfessional,
		Temperature:     0.7,
		MaxContentChars: 5000,
	}
}

type memorySink struct {
	mu    sync.Mutex
	saved []*types.BrochureArtifact
	err   error
}

func (s *memorySink) SaveBrochure(_ context.Context, a *types.BrochureArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, a)
	return s.err
}

func newEngine(site *fetchtest.Site, opts []EngineOption, clients ...llm.Client) *Engine {
	return newEngineWithConfig(site, Config{}, opts, clients...)
}

func newEngineWithConfig(site *fetchtest.Site, cfg Config, opts []EngineOption, clients ...llm.Client) *Engine {
	cached := fetch.NewCachedFetcher(site, cache.NewMemory(0), nil)
	opts = append([]EngineOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(cached, llm.NewRegistry(clients...), cfg, opts...)
}

type recorder struct {
	events []Event
}

func (r *recorder) emit(ev Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) chunks() []string {
	var out []string
	for _, ev := range r.events {
		if ev.Kind == EventChunk {
			out = append(out, ev.Chunk)
		}
	}
	return out
}

func (r *recorder) last() Event {
	return r.events[len(r.events)-1]
}

func TestSession_AcmeHappyPath(t *testing.T) {
	site := acmeSite()
	writer := llmtest.New(llm.ProviderOpenAI, "# Acme\n", "Rockets since 1949. ", "Join us.")
	selector := llmtest.New(llm.ProviderGemini)
	selector.JSON = acmeSelection
	sink := &memorySink{}
	engine := newEngine(site, []EngineOption{WithArtifactSink(sink)}, writer, selector)

	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	rec := &recorder{}
	outcome, err := session.Run(context.Background(), rec.emit)
	require.NoError(t, err)

	assert.Equal(t, StateComplete, outcome.Status)
	assert.Nil(t, outcome.Err)
	assert.Equal(t, []State{
		StateInit, StateScraping, StateLinkSelection, StateAggregating,
		StateGenerating, StateStreaming, StateComplete,
	}, session.History())

	assert.Equal(t, []string{"# Acme\n", "Rockets since 1949. ", "Join us."}, rec.chunks())
	assert.Equal(t, EventTerminal, rec.last().Kind)
	assert.Equal(t, StateComplete, rec.last().Outcome.Status)

	require.NotNil(t, outcome.Artifact)
	assert.Equal(t, "# Acme\nRockets since 1949. Join us.", outcome.Artifact.Text)
	assert.Equal(t, session.ID(), outcome.Artifact.SessionID)
	assert.Equal(t, fixedNow, outcome.Artifact.GeneratedAt)
	assert.False(t, outcome.Artifact.Partial)
	require.Len(t, sink.saved, 1)
	assert.Equal(t, outcome.Artifact, sink.saved[0])

	// selection ran on gemini, generation on openai
	assert.Equal(t, 1, selector.JSONCalls())
	assert.Equal(t, 0, writer.JSONCalls())
	assert.Equal(t, 1, writer.StreamCalls())

	prompts := writer.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].User, "The company is called: Acme")
	assert.Contains(t, prompts[0].User, "## Landing Page\nAcme\n\nAcme builds rockets.")
	assert.Contains(t, prompts[0].User, "### About page\nAbout\n\nFounded in 1949.")
	assert.Contains(t, prompts[0].User, "### Careers page\nCareers\n\nWe are hiring engineers.")
	assert.Equal(t, 0.7, writer.Options()[0].Temperature)
	assert.Equal(t, DefaultMaxTokens, writer.Options()[0].MaxTokens)

	// the homepage is fetched once; aggregation reads it from the cache
	assert.Equal(t, 1, site.Calls("https://acme.test"))
	assert.Equal(t, 0, site.Calls("https://acme.test/privacy"))
}

func TestSession_UnreachableHomepage(t *testing.T) {
	site := fetchtest.NewSite().Fail("https://acme.test", &fetch.Error{
		Kind: fetch.KindFetchError, URL: "https://acme.test", Message: "dial tcp: no such host", Cause: errors.New("no such host"),
	})
	writer := llmtest.New(llm.ProviderOpenAI, "never")
	engine := newEngine(site, nil, writer)

	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	rec := &recorder{}
	outcome, err := session.Run(context.Background(), rec.emit)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, outcome.Status)
	assert.Equal(t, []State{StateInit, StateScraping, StateFailed}, session.History())
	require.NotNil(t, outcome.Err)
	assert.Equal(t, string(fetch.KindFetchError), outcome.Err.Kind)
	assert.Equal(t, StateScraping, outcome.Err.Stage)
	assert.Nil(t, outcome.Artifact)
	assert.Empty(t, rec.chunks())
	assert.Equal(t, 0, writer.StreamCalls())
}

func TestSession_UnparseableSelectionFallsBackToHeuristic(t *testing.T) {
	site := acmeSite()
	writer := llmtest.New(llm.ProviderOpenAI, "Acme brochure")
	selector := llmtest.New(llm.ProviderGemini)
	selector.JSON = "Sure! The about page looks useful."
	engine := newEngine(site, nil, writer, selector)

	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	outcome, err := session.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, StateComplete, outcome.Status)
	assert.Equal(t, 1, site.Calls("https://acme.test/about"))
	assert.Equal(t, 1, site.Calls("https://acme.test/careers"))
	assert.Contains(t, writer.Prompts()[0].User, "### About page")
}

func TestSession_CancelAfterTwoChunks(t *testing.T) {
	writer := llmtest.New(llm.ProviderOpenAI, "one ", "two ", "three ", "four")
	engine := newEngine(acmeSite(), nil, writer)

	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	outcome, err := session.Run(ctx, func(ev Event) {
		rec.emit(ev)
		if len(rec.chunks()) == 2 && ev.Kind == EventChunk {
			cancel()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, outcome.Status)
	assert.Equal(t, KindCancelled, outcome.Err.Kind)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
	assert.Equal(t, []string{"one ", "two "}, rec.chunks())

	stream := writer.LastStream()
	require.NotNil(t, stream)
	assert.Equal(t, 2, stream.RecvCalls())
	assert.True(t, stream.Closed())

	require.NotNil(t, outcome.Artifact)
	assert.True(t, outcome.Artifact.Partial)
	assert.Equal(t, "one two ", outcome.Artifact.Text)
	assert.Equal(t, StateCancelled, session.History()[len(session.History())-1])
}

func TestSession_MidStreamFailureKeepsPartial(t *testing.T) {
	writer := llmtest.New(llm.ProviderOpenAI, "alpha ", "beta ", "gamma")
	writer.FailAfter = 2
	writer.StreamErr = &llm.GenerationError{Provider: llm.ProviderOpenAI, Message: "connection reset"}
	sink := &memorySink{}
	engine := newEngine(acmeSite(), []EngineOption{WithArtifactSink(sink)}, writer)

	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	rec := &recorder{}
	outcome, err := session.Run(context.Background(), rec.emit)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, outcome.Status)
	assert.Equal(t, KindGenerationError, outcome.Err.Kind)
	assert.Equal(t, StateStreaming, outcome.Err.Stage)
	require.NotNil(t, outcome.Artifact)
	assert.True(t, outcome.Artifact.Partial)
	assert.Equal(t, strings.Join(rec.chunks(), ""), outcome.Artifact.Text)
	assert.Equal(t, "alpha beta ", outcome.Artifact.Text)
	assert.Empty(t, sink.saved)
}

func TestSession_ProviderErrorBeforeFirstChunk(t *testing.T) {
	writer := llmtest.New(llm.ProviderOpenAI)
	writer.StartErr = &llm.GenerationError{Provider: llm.ProviderOpenAI, Message: "invalid api key"}
	engine := newEngine(acmeSite(), nil, writer)

	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	rec := &recorder{}
	outcome, err := session.Run(context.Background(), rec.emit)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, outcome.Status)
	assert.Equal(t, KindGenerationError, outcome.Err.Kind)
	assert.Equal(t, StateGenerating, outcome.Err.Stage)
	var genErr *llm.GenerationError
	assert.ErrorAs(t, outcome.Err, &genErr)
	assert.Empty(t, rec.chunks())
	assert.Nil(t, outcome.Artifact)
}

func TestSession_EmptyStreamFails(t *testing.T) {
	writer := llmtest.New(llm.ProviderOpenAI)
	engine := newEngine(acmeSite(), nil, writer)

	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	outcome, err := session.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.Status)
	assert.Equal(t, KindGenerationError, outcome.Err.Kind)
}

func TestSession_GenerationTimeoutFails(t *testing.T) {
	tests := []struct {
		name      string
		chunks    []string
		wantStage State
		wantText  string
	}{
		{name: "before first chunk", wantStage: StateGenerating},
		{name: "mid stream", chunks: []string{"# Acme\n"}, wantStage: StateStreaming, wantText: "# Acme\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := llmtest.New(llm.ProviderOpenAI, tt.chunks...)
			writer.Stall = make(chan struct{})
			defer close(writer.Stall)

			cfg := Config{GenerationTimeout: 50 * time.Millisecond}
			engine := newEngineWithConfig(acmeSite(), cfg, nil, writer)
			session, err := engine.NewSession(acmeRequest())
			require.NoError(t, err)

			start := time.Now()
			rec := &recorder{}
			outcome, err := session.Run(context.Background(), rec.emit)
			require.NoError(t, err)

			assert.Less(t, time.Since(start), 5*time.Second)
			assert.Equal(t, StateFailed, outcome.Status)
			assert.Equal(t, KindGenerationError, outcome.Err.Kind)
			assert.Equal(t, tt.wantStage, outcome.Err.Stage)
			assert.ErrorIs(t, outcome.Err, context.DeadlineExceeded)
			var genErr *llm.GenerationError
			require.ErrorAs(t, outcome.Err, &genErr)
			assert.Contains(t, genErr.Message, "timed out")
			assert.True(t, writer.LastStream().Closed())

			if tt.wantText == "" {
				assert.Nil(t, outcome.Artifact)
				return
			}
			require.NotNil(t, outcome.Artifact)
			assert.True(t, outcome.Artifact.Partial)
			assert.Equal(t, tt.wantText, outcome.Artifact.Text)
		})
	}
}

func TestSession_SessionTimeoutCancels(t *testing.T) {
	site := acmeSite()
	site.Gate = make(chan struct{})
	defer close(site.Gate)

	writer := llmtest.New(llm.ProviderOpenAI, "never")
	cfg := Config{
		FetchTimeout:      10 * time.Millisecond,
		Selection:         crawling.SelectorConfig{Timeout: 10 * time.Millisecond},
		GenerationTimeout: 10 * time.Millisecond,
	}
	engine := newEngineWithConfig(site, cfg, nil, writer)
	require.Equal(t, 60*time.Millisecond, engine.Config().SessionTimeout())

	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	start := time.Now()
	rec := &recorder{}
	outcome, err := session.Run(context.Background(), rec.emit)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateCancelled, outcome.Status)
	assert.Equal(t, KindCancelled, outcome.Err.Kind)
	assert.Equal(t, StateScraping, outcome.Err.Stage)
	assert.ErrorIs(t, outcome.Err, context.DeadlineExceeded)
	assert.Empty(t, rec.chunks())
	assert.Nil(t, outcome.Artifact)
	assert.Equal(t, 0, writer.StreamCalls())
	assert.Equal(t, StateCancelled, rec.last().Outcome.Status)
}

func TestSession_RunsOnce(t *testing.T) {
	engine := newEngine(acmeSite(), nil, llmtest.New(llm.ProviderOpenAI, "text"))
	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	_, err = session.Run(context.Background(), nil)
	require.NoError(t, err)

	_, err = session.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSessionUsed)
}

func TestSession_EventsBreakCancels(t *testing.T) {
	writer := llmtest.New(llm.ProviderOpenAI, "one ", "two ", "three")
	engine := newEngine(acmeSite(), nil, writer)
	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	var seen []Event
	for ev := range session.Events(context.Background()) {
		seen = append(seen, ev)
		if ev.Kind == EventChunk {
			break
		}
	}

	assert.Equal(t, EventChunk, seen[len(seen)-1].Kind)
	assert.Equal(t, StateCancelled, session.State())
	assert.Equal(t, 1, writer.LastStream().RecvCalls())
}

func TestSession_EventsYieldsTerminal(t *testing.T) {
	engine := newEngine(acmeSite(), nil, llmtest.New(llm.ProviderOpenAI, "a", "b"))
	session, err := engine.NewSession(acmeRequest())
	require.NoError(t, err)

	var kinds []EventKind
	for ev := range session.Events(context.Background()) {
		kinds = append(kinds, ev.Kind)
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, EventTerminal, kinds[len(kinds)-1])
	assert.Equal(t, StateComplete, session.State())
}

func TestBuildPrompt(t *testing.T) {
	req := acmeRequest()
	req.Tone = types.ToneHumorous
	req.CustomInstructions = "Mention the anvils."

	prompt, err := BuildPrompt(req, "## Landing Page\nhello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt.System, "You write short company brochures"))
	assert.Contains(t, prompt.System, "wit")
	assert.Contains(t, prompt.User, "Additional instructions: Mention the anvils.")
	assert.True(t, strings.HasSuffix(prompt.User, "## Landing Page\nhello"))

	req.CustomInstructions = ""
	prompt, err = BuildPrompt(req, "content")
	require.NoError(t, err)
	assert.NotContains(t, prompt.User, "Additional instructions")
}
