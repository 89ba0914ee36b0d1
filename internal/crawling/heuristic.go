package crawling

import (
	"net/url"
	"strings"

	"github.com/jonathan/company-brochure/internal/types"
)

// keywordCategories maps link keywords to categories, checked in order.
var keywordCategories = []struct {
	keyword  string
	category string
}{
	{"about", "about page"},
	{"team", "team page"},
	{"careers", "careers page"},
	{"jobs", "careers page"},
	{"product", "products page"},
	{"company", "company page"},
	{"mission", "mission page"},
}

// Heuristic picks the first max candidates whose anchor text or path
// contains a brochure keyword. It never fails.
func Heuristic(candidates []types.LinkCandidate, max int) *types.LinkSelection {
	if max <= 0 {
		max = DefaultMaxLinks
	}

	selected := make([]types.SelectedLink, 0, max)
	for _, c := range candidates {
		if len(selected) >= max {
			break
		}
		if category, ok := categorize(c); ok {
			selected = append(selected, types.SelectedLink{LinkCandidate: c, Category: category})
		}
	}

	return &types.LinkSelection{
		Selected: selected,
		Reason:   "selected by keyword match on anchor text and path",
		Source:   types.SelectionSourceHeuristic,
	}
}

func categorize(c types.LinkCandidate) (string, bool) {
	anchor := strings.ToLower(c.AnchorText)
	path := strings.ToLower(c.URL)
	if u, err := url.Parse(c.URL); err == nil {
		path = strings.ToLower(u.Path)
	}
	for _, kc := range keywordCategories {
		if strings.Contains(anchor, kc.keyword) || strings.Contains(path, kc.keyword) {
			return kc.category, true
		}
	}
	return "", false
}
