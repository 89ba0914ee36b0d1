package crawling

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/company-brochure/internal/fetch"
	"github.com/jonathan/company-brochure/internal/logging"
	"github.com/jonathan/company-brochure/internal/types"
)

// Aggregation defaults
const (
	DefaultConcurrency  = 4
	MaxConcurrency      = 8
	DefaultMaxPageChars = 2000

	landingHeader  = "## Landing Page"
	relevantHeader = "## Relevant Pages"
)

// AggregatorConfig controls page aggregation.
type AggregatorConfig struct {
	// Concurrency bounds parallel page fetches (1..8).
	Concurrency int
	// MaxPageChars caps each page's text in runes. 0 means unlimited.
	MaxPageChars int
}

// DefaultAggregatorConfig returns the default aggregation settings.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{Concurrency: DefaultConcurrency, MaxPageChars: DefaultMaxPageChars}
}

// PageReport records a selected page that could not be included.
type PageReport struct {
	URL string
	Err error
}

// Aggregate is the combined text fed to generation.
type Aggregate struct {
	Content   string
	Homepage  *types.PageContent
	Pages     []*types.PageContent
	Warnings  []PageReport
	Truncated bool
}

// Aggregator fetches the homepage and selected pages and joins their text.
type Aggregator struct {
	fetcher fetch.PageFetcher
	cfg     AggregatorConfig
	log     logrus.FieldLogger
}

// NewAggregator creates an aggregator. Concurrency is clamped to 1..8.
func NewAggregator(fetcher fetch.PageFetcher, cfg AggregatorConfig, log logrus.FieldLogger) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Concurrency > MaxConcurrency {
		cfg.Concurrency = MaxConcurrency
	}
	if cfg.MaxPageChars < 0 {
		cfg.MaxPageChars = 0
	}
	return &Aggregator{fetcher: fetcher, cfg: cfg, log: logging.OrDiscard(log)}
}

type pageResult struct {
	link types.SelectedLink
	page *types.PageContent
	err  error
}

// Aggregate fetches the homepage, then the selected links concurrently, and
// lays them out in selection order. The result never exceeds maxChars runes
// (maxChars <= 0 means unlimited). Only a homepage failure or cancellation
// is returned as an error.
func (a *Aggregator) Aggregate(ctx context.Context, baseURL string, selection *types.LinkSelection, maxChars int) (*Aggregate, error) {
	home, err := a.fetcher.Fetch(ctx, baseURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	var links []types.SelectedLink
	if selection != nil {
		homeKey := fetch.NormalizeKey(baseURL)
		for _, l := range selection.Selected {
			if fetch.NormalizeKey(l.URL) != homeKey {
				links = append(links, l)
			}
		}
	}

	results := make([]pageResult, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, link := range links {
		g.Go(func() error {
			page, err := a.fetcher.Fetch(gctx, link.URL)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = pageResult{link: link, page: page, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg := &Aggregate{Homepage: home}
	b := newBudgetWriter(maxChars)
	b.write(landingHeader + "\n" + a.pageBody(home))

	wroteRelevant := false
	for _, r := range results {
		if r.err != nil {
			a.log.WithError(r.err).WithField("url", r.link.URL).Warn("skipping page that failed to fetch")
			agg.Warnings = append(agg.Warnings, PageReport{URL: r.link.URL, Err: r.err})
			continue
		}
		if strings.TrimSpace(r.page.Text) == "" {
			agg.Warnings = append(agg.Warnings, PageReport{URL: r.link.URL, Err: errors.New("page has no visible text")})
			continue
		}
		agg.Pages = append(agg.Pages, r.page)
		if !wroteRelevant {
			b.write("\n\n" + relevantHeader)
			wroteRelevant = true
		}
		b.write("\n\n### " + capitalize(r.link.Category) + "\n" + a.pageBody(r.page))
	}

	agg.Content = b.String()
	agg.Truncated = b.truncated
	return agg, nil
}

// pageBody is the page title followed by its text, capped at MaxPageChars.
func (a *Aggregator) pageBody(page *types.PageContent) string {
	text := strings.TrimSpace(page.Text)
	if title := strings.TrimSpace(page.Title); title != "" {
		text = title + "\n\n" + text
	}
	return a.capPage(text)
}

func (a *Aggregator) capPage(text string) string {
	text = strings.TrimSpace(text)
	if a.cfg.MaxPageChars == 0 {
		return text
	}
	return truncateRunes(text, a.cfg.MaxPageChars)
}

// budgetWriter appends text until a rune budget is spent, cutting the
// overflowing piece at a rune boundary.
type budgetWriter struct {
	sb        strings.Builder
	max       int
	used      int
	truncated bool
}

func newBudgetWriter(max int) *budgetWriter {
	return &budgetWriter{max: max}
}

func (b *budgetWriter) full() bool {
	return b.max > 0 && (b.truncated || b.used >= b.max)
}

func (b *budgetWriter) write(s string) {
	if b.full() {
		if s != "" {
			b.truncated = true
		}
		return
	}
	n := utf8.RuneCountInString(s)
	if b.max > 0 && b.used+n > b.max {
		s = truncateRunes(s, b.max-b.used)
		n = utf8.RuneCountInString(s)
		b.truncated = true
	}
	b.sb.WriteString(s)
	b.used += n
}

func (b *budgetWriter) String() string {
	return b.sb.String()
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		s = defaultCategory
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
