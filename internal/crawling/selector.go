package crawling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/fetch"
	"github.com/jonathan/company-brochure/internal/llm"
	"github.com/jonathan/company-brochure/internal/logging"
	"github.com/jonathan/company-brochure/internal/prompts"
	"github.com/jonathan/company-brochure/internal/schemas"
	"github.com/jonathan/company-brochure/internal/types"
)

// Selection defaults
const (
	DefaultMaxLinks         = 6
	DefaultSelectionTimeout = 30 * time.Second
	DefaultSelectionTokens  = 1000
	defaultCategory         = "relevant page"
)

// CompanyContext identifies the company whose links are being selected.
type CompanyContext struct {
	Name    string
	BaseURL string
}

// SelectorConfig controls link selection.
type SelectorConfig struct {
	MaxLinks  int
	Timeout   time.Duration
	MaxTokens int
}

// DefaultSelectorConfig returns the default selection settings.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		MaxLinks:  DefaultMaxLinks,
		Timeout:   DefaultSelectionTimeout,
		MaxTokens: DefaultSelectionTokens,
	}
}

// Selector asks an LLM which homepage links are worth reading.
type Selector struct {
	client llm.Client
	cfg    SelectorConfig
	log    logrus.FieldLogger
}

// NewSelector creates a selector. A nil client makes Resolve use the heuristic only.
func NewSelector(client llm.Client, cfg SelectorConfig, log logrus.FieldLogger) *Selector {
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = DefaultMaxLinks
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultSelectionTokens
	}
	return &Selector{client: client, cfg: cfg, log: logging.OrDiscard(log)}
}

// MaxLinks returns the selection cap.
func (s *Selector) MaxLinks() int {
	return s.cfg.MaxLinks
}

type selectionResponse struct {
	Links []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"links"`
	Reason string `json:"reason"`
}

// Select runs one JSON round trip to the model and returns the links it
// picked, restricted to candidates, deduplicated and capped at MaxLinks.
func (s *Selector) Select(ctx context.Context, candidates []types.LinkCandidate, company CompanyContext) (*types.LinkSelection, error) {
	if s.client == nil {
		return nil, errors.New("link selection requires an LLM client")
	}

	prompt, err := s.buildPrompt(candidates, company)
	if err != nil {
		return nil, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	raw, err := s.client.GenerateJSON(ctx, prompt, llm.Options{Temperature: 0, MaxTokens: s.cfg.MaxTokens})
	if err != nil {
		return nil, err
	}

	return parseSelection(raw, candidates, company.BaseURL, s.cfg.MaxLinks)
}

// Resolve is the non-failing selection policy: an empty candidate set gives
// an empty selection without calling the model, and any selection error falls
// back to Heuristic. Only context cancellation is returned.
func (s *Selector) Resolve(ctx context.Context, candidates []types.LinkCandidate, company CompanyContext) (*types.LinkSelection, error) {
	if len(candidates) == 0 {
		return &types.LinkSelection{
			Selected: []types.SelectedLink{},
			Reason:   "no candidate links found on the homepage",
			Source:   types.SelectionSourceHeuristic,
		}, nil
	}
	if s.client == nil {
		return Heuristic(candidates, s.cfg.MaxLinks), nil
	}

	selection, err := s.Select(ctx, candidates, company)
	if err == nil {
		return selection, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	s.log.WithError(err).WithFields(logrus.Fields{
		"provider":   s.client.Provider(),
		"candidates": len(candidates),
	}).Warn("link selection failed, using keyword heuristic")
	return Heuristic(candidates, s.cfg.MaxLinks), nil
}

func (s *Selector) buildPrompt(candidates []types.LinkCandidate, company CompanyContext) (llm.Prompt, error) {
	system, err := prompts.Render(prompts.LinksFile, "system", map[string]string{
		"MaxLinks": strconv.Itoa(s.cfg.MaxLinks),
	})
	if err != nil {
		return llm.Prompt{}, err
	}
	user, err := prompts.Render(prompts.LinksFile, "user", map[string]string{
		"CompanyName": company.Name,
		"BaseURL":     company.BaseURL,
		"Links":       formatCandidates(candidates),
	})
	if err != nil {
		return llm.Prompt{}, err
	}
	return llm.Prompt{System: system, User: user}, nil
}

func formatCandidates(candidates []types.LinkCandidate) string {
	var sb strings.Builder
	for _, c := range candidates {
		sb.WriteString(c.URL)
		if c.AnchorText != "" {
			sb.WriteString(" [")
			sb.WriteString(c.AnchorText)
			sb.WriteString("]")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// parseSelection cleans, validates and filters a model response.
func parseSelection(raw string, candidates []types.LinkCandidate, baseURL string, maxLinks int) (*types.LinkSelection, error) {
	cleaned := llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schemas.LinkSelection, cleaned); err != nil {
		return nil, &SelectionParseError{Message: "response does not match the link selection schema", Raw: raw, Cause: err}
	}

	var resp selectionResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, &SelectionParseError{Message: "failed to unmarshal link selection", Raw: raw, Cause: err}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &SelectionParseError{Message: fmt.Sprintf("invalid base URL %q", baseURL), Raw: raw, Cause: err}
	}

	allowed := make(map[string]types.LinkCandidate, len(candidates))
	for _, c := range candidates {
		allowed[fetch.NormalizeKey(c.URL)] = c
	}

	seen := make(map[string]bool)
	selected := make([]types.SelectedLink, 0, maxLinks)
	for _, link := range resp.Links {
		if len(selected) >= maxLinks {
			break
		}
		ref, err := url.Parse(strings.TrimSpace(link.URL))
		if err != nil {
			continue
		}
		key := fetch.NormalizeKey(base.ResolveReference(ref).String())
		candidate, ok := allowed[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true

		category := strings.TrimSpace(link.Type)
		if category == "" {
			category = defaultCategory
		}
		selected = append(selected, types.SelectedLink{LinkCandidate: candidate, Category: category})
	}

	return &types.LinkSelection{
		Selected: selected,
		Reason:   strings.TrimSpace(resp.Reason),
		Source:   types.SelectionSourceLLM,
	}, nil
}
