package crawling

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/company-brochure/internal/fetch"
	"github.com/jonathan/company-brochure/internal/fetch/fetchtest"
	"github.com/jonathan/company-brochure/internal/types"
)

func selected(category, url string) types.SelectedLink {
	return types.SelectedLink{LinkCandidate: types.LinkCandidate{URL: url}, Category: category}
}

func acmeSite() *fetchtest.Site {
	return fetchtest.NewSite().
		Page("https://acme.test", "Acme", "Acme builds rockets.").
		Page("https://acme.test/about", "About", "Founded in 1949.").
		Page("https://acme.test/careers", "Careers", "We are hiring engineers.")
}

func TestAggregator_Layout(t *testing.T) {
	site := acmeSite()
	sel := &types.LinkSelection{Selected: []types.SelectedLink{
		selected("about page", "https://acme.test/about"),
		selected("careers page", "https://acme.test/careers"),
	}}

	agg, err := NewAggregator(site, DefaultAggregatorConfig(), nil).Aggregate(context.Background(), "https://acme.test", sel, 5000)
	require.NoError(t, err)

	want := "## Landing Page\nAcme\n\nAcme builds rockets." +
		"\n\n## Relevant Pages" +
		"\n\n### About page\nAbout\n\nFounded in 1949." +
		"\n\n### Careers page\nCareers\n\nWe are hiring engineers."
	assert.Equal(t, want, agg.Content)
	assert.False(t, agg.Truncated)
	assert.Empty(t, agg.Warnings)
	assert.Len(t, agg.Pages, 2)
	assert.Equal(t, "Acme", agg.Homepage.Title)
}

func TestAggregator_UntitledPage(t *testing.T) {
	site := fetchtest.NewSite().
		Page("https://acme.test", "", "Acme builds rockets.").
		Page("https://acme.test/about", "  ", "Founded in 1949.")
	sel := &types.LinkSelection{Selected: []types.SelectedLink{selected("about page", "https://acme.test/about")}}

	agg, err := NewAggregator(site, DefaultAggregatorConfig(), nil).Aggregate(context.Background(), "https://acme.test", sel, 5000)
	require.NoError(t, err)
	assert.Equal(t, "## Landing Page\nAcme builds rockets.\n\n## Relevant Pages\n\n### About page\nFounded in 1949.", agg.Content)
}

func TestAggregator_EmptySelection(t *testing.T) {
	agg, err := NewAggregator(acmeSite(), DefaultAggregatorConfig(), nil).
		Aggregate(context.Background(), "https://acme.test", &types.LinkSelection{}, 5000)
	require.NoError(t, err)
	assert.Equal(t, "## Landing Page\nAcme\n\nAcme builds rockets.", agg.Content)
}

func TestAggregator_PageFailureIsWarning(t *testing.T) {
	site := acmeSite().Fail("https://acme.test/about", errors.New("connection reset"))
	sel := &types.LinkSelection{Selected: []types.SelectedLink{
		selected("about page", "https://acme.test/about"),
		selected("careers page", "https://acme.test/careers"),
		selected("team page", "https://acme.test/team"),
	}}

	agg, err := NewAggregator(site, DefaultAggregatorConfig(), nil).Aggregate(context.Background(), "https://acme.test", sel, 5000)
	require.NoError(t, err)

	require.Len(t, agg.Warnings, 2)
	assert.Equal(t, "https://acme.test/about", agg.Warnings[0].URL)
	assert.Equal(t, "https://acme.test/team", agg.Warnings[1].URL)
	assert.Equal(t, fetch.KindFetchError, fetch.KindOf(agg.Warnings[1].Err))
	assert.NotContains(t, agg.Content, "About page")
	assert.Contains(t, agg.Content, "### Careers page\nCareers\n\nWe are hiring engineers.")
}

func TestAggregator_HomepageFailureIsFatal(t *testing.T) {
	site := fetchtest.NewSite()

	_, err := NewAggregator(site, DefaultAggregatorConfig(), nil).Aggregate(context.Background(), "https://acme.test", nil, 5000)
	require.Error(t, err)
	assert.Equal(t, fetch.KindFetchError, fetch.KindOf(err))
}

func TestAggregator_RuneBudget(t *testing.T) {
	site := fetchtest.NewSite().
		Page("https://acme.test", "Acme", strings.Repeat("é", 40)).
		Page("https://acme.test/about", "About", strings.Repeat("ü", 40)).
		Page("https://acme.test/careers", "Careers", "never reached")
	sel := &types.LinkSelection{Selected: []types.SelectedLink{
		selected("about page", "https://acme.test/about"),
		selected("careers page", "https://acme.test/careers"),
	}}

	for _, max := range []int{10, 56, 80, 100} {
		agg, err := NewAggregator(site, DefaultAggregatorConfig(), nil).Aggregate(context.Background(), "https://acme.test", sel, max)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(agg.Content), "max=%d", max)
		assert.LessOrEqual(t, utf8.RuneCountInString(agg.Content), max, "max=%d", max)
		assert.True(t, agg.Truncated, "max=%d", max)
		assert.NotContains(t, agg.Content, "never reached", "max=%d", max)
	}
}

func TestAggregator_PerPageCap(t *testing.T) {
	site := fetchtest.NewSite().
		Page("https://acme.test", "Acme", strings.Repeat("a", 50)).
		Page("https://acme.test/about", "About", strings.Repeat("b", 50))
	sel := &types.LinkSelection{Selected: []types.SelectedLink{selected("about page", "https://acme.test/about")}}

	agg, err := NewAggregator(site, AggregatorConfig{MaxPageChars: 10}, nil).Aggregate(context.Background(), "https://acme.test", sel, 0)
	require.NoError(t, err)
	// the cap covers the title and the text together
	assert.Contains(t, agg.Content, "## Landing Page\nAcme\n\n"+strings.Repeat("a", 4)+"\n")
	assert.True(t, strings.HasSuffix(agg.Content, "### About page\nAbout\n\n"+strings.Repeat("b", 3)))
	assert.False(t, agg.Truncated)
}

func TestAggregator_BoundedConcurrencyKeepsOrder(t *testing.T) {
	site := fetchtest.NewSite().Page("https://acme.test", "Acme", "home")
	sel := &types.LinkSelection{}
	var want []string
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		u := "https://acme.test/" + p
		site.Page(u, p, "page "+p)
		sel.Selected = append(sel.Selected, selected(p, u))
		want = append(want, "### "+strings.ToUpper(p)+"\n"+p+"\n\npage "+p)
	}

	agg, err := NewAggregator(site, AggregatorConfig{Concurrency: 2}, nil).Aggregate(context.Background(), "https://acme.test", sel, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, site.PeakConcurrency(), 2)
	assert.Contains(t, agg.Content, strings.Join(want, "\n\n"))
}

func TestAggregator_Cancellation(t *testing.T) {
	site := acmeSite()
	site.Gate = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAggregator(site, DefaultAggregatorConfig(), nil).Aggregate(ctx, "https://acme.test", nil, 5000)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAggregator_ClampsConcurrency(t *testing.T) {
	assert.Equal(t, DefaultConcurrency, NewAggregator(nil, AggregatorConfig{}, nil).cfg.Concurrency)
	assert.Equal(t, MaxConcurrency, NewAggregator(nil, AggregatorConfig{Concurrency: 64}, nil).cfg.Concurrency)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "", truncateRunes("héllo", 0))
}
