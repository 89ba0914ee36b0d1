package crawling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/company-brochure/internal/types"
)

func link(url, anchor string) types.LinkCandidate {
	return types.LinkCandidate{URL: url, AnchorText: anchor}
}

func urlsOf(links []types.LinkCandidate) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.URL)
	}
	return out
}

func TestCandidates_Filters(t *testing.T) {
	home := &types.PageContent{
		URL: "https://acme.test",
		Links: []types.LinkCandidate{
			link("https://acme.test/", "Home"),
			link("https://acme.test/about", "About"),
			link("https://www.acme.test/careers", "Careers"),
			link("https://other.test/about", "Partner"),
			link("https://acme.test/privacy-policy", "Privacy"),
			link("https://acme.test/terms", "Terms"),
			link("https://acme.test/cookies", "Cookies"),
			link("https://acme.test/legal/notice", "Legal"),
			link("https://acme.test/brochure.pdf", "PDF"),
			link("https://acme.test/logo.PNG", "Logo"),
			link("https://acme.test/about/", "About again"),
			link("https://acme.test/products", "Products"),
		},
	}

	got, err := Candidates(home, "https://acme.test", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://acme.test/about",
		"https://www.acme.test/careers",
		"https://acme.test/products",
	}, urlsOf(got))
}

func TestCandidates_Cap(t *testing.T) {
	home := &types.PageContent{URL: "https://acme.test"}
	for _, p := range []string{"a", "b", "c", "d"} {
		home.Links = append(home.Links, link("https://acme.test/"+p, p))
	}

	got, err := Candidates(home, "https://acme.test", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.test/a", "https://acme.test/b"}, urlsOf(got))
}

func TestCandidates_InvalidBaseURL(t *testing.T) {
	_, err := Candidates(&types.PageContent{}, "not a url", 10)
	require.Error(t, err)
	var linkErr *LinkExtractionError
	assert.ErrorAs(t, err, &linkErr)
}

func TestCandidates_NilHome(t *testing.T) {
	got, err := Candidates(nil, "https://acme.test", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
