package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/crawling"
	"github.com/jonathan/company-brochure/internal/fetch"
	"github.com/jonathan/company-brochure/internal/llm"
	"github.com/jonathan/company-brochure/internal/prompts"
	"github.com/jonathan/company-brochure/internal/types"
)

// ErrSessionUsed is returned when a session is run a second time.
var ErrSessionUsed = errors.New("session has already been run")

// EventKind distinguishes session events.
type EventKind string

// Event kinds
const (
	EventProgress EventKind = "progress"
	EventChunk    EventKind = "chunk"
	EventTerminal EventKind = "terminal"
)

// Failure kinds that are not fetch kinds
const (
	KindGenerationError = "GenerationError"
	KindCancelled       = "Cancelled"
	KindInternal        = "InternalError"
)

// Event is a progress update, a brochure chunk or the terminal outcome.
type Event struct {
	Kind    EventKind `json:"kind"`
	Stage   State     `json:"stage"`
	Message string    `json:"message,omitempty"`
	Chunk   string    `json:"chunk,omitempty"`
	Outcome *Outcome  `json:"outcome,omitempty"`
}

// Failure describes why a session did not complete.
type Failure struct {
	Kind  string
	Stage State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s during %s: %v", f.Kind, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Outcome is the terminal result of a session. Artifact is set on COMPLETE
// and, with Partial, when chunks were emitted before a failure or cancel.
type Outcome struct {
	Status   State                   `json:"status"`
	Artifact *types.BrochureArtifact `json:"artifact,omitempty"`
	Err      *Failure                `json:"-"`
}

// Emitter receives session events synchronously, in order.
type Emitter func(Event)

// Session is a single brochure generation. It runs once.
type Session struct {
	id     uuid.UUID
	req    types.GenerationRequest
	engine *Engine
	used   atomic.Bool

	mu      sync.Mutex
	state   State
	history []State
}

// ID returns the session id, which is also the artifact id.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Request returns the session's copy of the normalized request.
func (s *Session) Request() types.GenerationRequest {
	return s.req
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every state entered, starting with INIT.
func (s *Session) History() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.history...)
}

// Events runs the session and yields its events. Breaking out of the loop
// cancels the session.
func (s *Session) Events(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		_, err := s.Run(ctx, func(ev Event) {
			if stopped {
				return
			}
			if !yield(ev) {
				stopped = true
				cancel()
			}
		})
		if err != nil && !stopped {
			yield(Event{
				Kind:    EventTerminal,
				Stage:   s.State(),
				Message: err.Error(),
				Outcome: &Outcome{Status: StateFailed, Err: &Failure{Kind: KindInternal, Stage: s.State(), Err: err}},
			})
		}
	}
}

// Run drives the session to a terminal state, pushing events to emit. The
// returned error is only ErrSessionUsed; pipeline failures are reported in
// the Outcome.
func (s *Session) Run(ctx context.Context, emit Emitter) (*Outcome, error) {
	if !s.used.CompareAndSwap(false, true) {
		return nil, ErrSessionUsed
	}
	if emit == nil {
		emit = func(Event) {}
	}

	r := &run{
		Session: s,
		emit:    emit,
		log: s.engine.log.WithFields(logrus.Fields{
			"session_id": s.id.String(),
			"provider":   s.req.Model,
		}),
	}

	ctx, cancel := context.WithTimeout(ctx, s.engine.cfg.SessionTimeout())
	defer cancel()

	outcome := r.execute(ctx)
	emit(Event{Kind: EventTerminal, Stage: outcome.Status, Message: terminalMessage(outcome), Outcome: outcome})
	return outcome, nil
}

// run carries the per-execution state of a Session.
type run struct {
	*Session
	emit Emitter
	log  logrus.FieldLogger
	text strings.Builder
}

func (r *run) advance(sig Signal) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := Transition(r.state, sig)
	if err != nil {
		r.log.WithError(err).Error("ignoring invalid session transition")
		return r.state
	}
	r.state = next
	r.history = append(r.history, next)
	return next
}

func (r *run) progress(message string) {
	r.log.WithField("stage", r.State()).Info(message)
	r.emit(Event{Kind: EventProgress, Stage: r.State(), Message: message})
}

func (r *run) execute(ctx context.Context) *Outcome {
	e := r.engine
	req := r.req

	r.advance(SignalStart)
	r.progress(fmt.Sprintf("Fetching homepage %s", req.BaseURL))
	home, err := e.fetcher.Fetch(ctx, req.BaseURL)
	if err != nil {
		return r.fail(ctx, string(fetchKind(err)), err)
	}

	r.advance(SignalHomepageFetched)
	r.progress(fmt.Sprintf("Found %d links, selecting relevant pages", len(home.Links)))
	candidates, err := crawling.Candidates(home, req.BaseURL, e.cfg.MaxCandidates)
	if err != nil {
		return r.fail(ctx, KindInternal, err)
	}
	company := crawling.CompanyContext{Name: req.CompanyName, BaseURL: req.BaseURL}
	selection, err := e.selector(llm.Provider(req.Model)).Resolve(ctx, candidates, company)
	if err != nil {
		return r.fail(ctx, KindInternal, err)
	}

	r.advance(SignalLinksResolved)
	r.progress(fmt.Sprintf("Selected %d pages (%s), gathering content", len(selection.Selected), selection.Source))
	agg, err := e.aggregator.Aggregate(ctx, req.BaseURL, selection, req.MaxContentChars)
	if err != nil {
		return r.fail(ctx, string(fetchKind(err)), err)
	}
	for _, w := range agg.Warnings {
		r.progress(fmt.Sprintf("Skipped %s: %v", w.URL, w.Err))
	}

	r.advance(SignalContentAggregated)
	r.progress(fmt.Sprintf("Generating brochure with %s", req.Model.DisplayName()))
	client, err := e.registry.Get(llm.Provider(req.Model))
	if err != nil {
		return r.fail(ctx, KindGenerationError, err)
	}
	prompt, err := BuildPrompt(req, agg.Content)
	if err != nil {
		return r.fail(ctx, KindInternal, err)
	}
	opts := llm.Options{Temperature: req.Temperature, MaxTokens: e.cfg.MaxTokens}

	genCtx, cancelGen := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancelGen()

	stream, err := client.GenerateStream(genCtx, prompt, opts)
	if err != nil {
		return r.fail(ctx, KindGenerationError, r.generationErr(ctx, genCtx, client.Provider(), err))
	}
	defer func() { _ = stream.Close() }()

	chunks := 0
	for {
		if ctx.Err() != nil {
			_ = stream.Close()
			return r.fail(ctx, KindCancelled, ctx.Err())
		}
		if genCtx.Err() != nil {
			_ = stream.Close()
			return r.fail(ctx, KindGenerationError, r.generationErr(ctx, genCtx, client.Provider(), genCtx.Err()))
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.fail(ctx, KindGenerationError, r.generationErr(ctx, genCtx, client.Provider(), err))
		}
		if chunks == 0 {
			r.advance(SignalFirstChunk)
		}
		chunks++
		r.text.WriteString(chunk)
		r.emit(Event{Kind: EventChunk, Stage: StateStreaming, Chunk: chunk})
	}
	if chunks == 0 {
		return r.fail(ctx, KindGenerationError, &llm.GenerationError{Provider: client.Provider(), Message: "provider returned no content"})
	}

	r.advance(SignalStreamEnded)
	artifact := r.artifact(false)
	r.log.WithField("chars", len(artifact.Text)).Info("brochure complete")
	r.persist(ctx, artifact)
	return &Outcome{Status: StateComplete, Artifact: artifact}
}

// generationErr reports an expired generation deadline as a provider
// failure. The session deadline is left to fail, which maps it to CANCELLED.
func (r *run) generationErr(ctx, genCtx context.Context, p llm.Provider, err error) error {
	if ctx.Err() != nil || !errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		return err
	}
	return &llm.GenerationError{
		Provider: p,
		Message:  fmt.Sprintf("generation timed out after %v", r.engine.cfg.GenerationTimeout),
		Cause:    context.DeadlineExceeded,
	}
}

// fail moves to FAILED, or CANCELLED when ctx is done, keeping any text
// already streamed as a partial artifact.
func (r *run) fail(ctx context.Context, kind string, err error) *Outcome {
	stage := r.State()
	if ctx.Err() != nil {
		kind = KindCancelled
		err = ctx.Err()
	}

	signal := SignalFail
	if kind == KindCancelled {
		signal = SignalCancel
	}
	status := r.advance(signal)

	outcome := &Outcome{Status: status, Err: &Failure{Kind: kind, Stage: stage, Err: err}}
	if r.text.Len() > 0 {
		outcome.Artifact = r.artifact(true)
	}
	r.log.WithError(err).WithFields(logrus.Fields{"stage": stage, "kind": kind}).Warn("session did not complete")
	return outcome
}

func (r *run) artifact(partial bool) *types.BrochureArtifact {
	return &types.BrochureArtifact{
		SessionID:   r.id,
		Text:        r.text.String(),
		GeneratedAt: r.engine.now().UTC(),
		Request:     r.req,
		Partial:     partial,
	}
}

func (r *run) persist(ctx context.Context, artifact *types.BrochureArtifact) {
	if r.engine.sink == nil {
		return
	}
	if err := r.engine.sink.SaveBrochure(context.WithoutCancel(ctx), artifact); err != nil {
		r.log.WithError(err).Warn("failed to save brochure")
	}
}

func fetchKind(err error) fetch.Kind {
	if kind := fetch.KindOf(err); kind != "" {
		return kind
	}
	return fetch.KindFetchError
}

func terminalMessage(o *Outcome) string {
	switch o.Status {
	case StateComplete:
		return "Brochure generated"
	case StateCancelled:
		return "Generation cancelled"
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return "Generation failed"
}

// BuildPrompt assembles the system prompt for the request's tone and the
// user prompt around the aggregated content.
func BuildPrompt(req types.GenerationRequest, content string) (llm.Prompt, error) {
	base := prompts.MustGet(prompts.BrochureFile, "system-base")
	tone, err := prompts.Get(prompts.BrochureFile, "tone-"+string(req.Tone))
	if err != nil {
		return llm.Prompt{}, err
	}

	instructions := ""
	if req.CustomInstructions != "" {
		instructions, err = prompts.Render(prompts.BrochureFile, "user-instructions", map[string]string{
			"CustomInstructions": req.CustomInstructions,
		})
		if err != nil {
			return llm.Prompt{}, err
		}
	}

	user, err := prompts.Render(prompts.BrochureFile, "user", map[string]string{
		"CompanyName":  req.CompanyName,
		"Instructions": instructions,
		"Content":      content,
	})
	if err != nil {
		return llm.Prompt{}, err
	}
	return llm.Prompt{System: base + "\n\n" + tone, User: user}, nil
}
