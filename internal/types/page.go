//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// LinkCandidate is an anchor discovered on a fetched page.
type LinkCandidate struct {
	URL        string `json:"url"`
	AnchorText string `json:"anchor_text,omitempty"`
}

// PageContent is the extracted result of fetching a single page.
// Links is unique by normalized URL and kept in document order.
type PageContent struct {
	URL       string          `json:"url"`
	Title     string          `json:"title,omitempty"`
	Text      string          `json:"text"`
	Links     []LinkCandidate `json:"links,omitempty"`
	FromCache bool            `json:"from_cache,omitempty"`
}

// SelectionSource records who picked the links of a LinkSelection.
type SelectionSource string

const (
	// SelectionSourceLLM means the model ranked the links
	SelectionSourceLLM SelectionSource = "llm"
	// SelectionSourceHeuristic means the keyword fallback picked the links
	SelectionSourceHeuristic SelectionSource = "heuristic"
)

// SelectedLink is a candidate chosen for aggregation, labelled with a category
// such as "about page" or "careers page".
type SelectedLink struct {
	LinkCandidate
	Category string `json:"category"`
}

// LinkSelection is the ordered result of link selection.
type LinkSelection struct {
	Selected []SelectedLink  `json:"links"`
	Reason   string          `json:"reason,omitempty"`
	Source   SelectionSource `json:"source"`
}

// URLs returns the selected URLs in selection order.
func (s *LinkSelection) URLs() []string {
	if s == nil {
		return nil
	}
	urls := make([]string, 0, len(s.Selected))
	for _, l := range s.Selected {
		urls = append(urls, l.URL)
	}
	return urls
}

// CacheEntry is a cached page with the time it was stored.
type CacheEntry struct {
	Key       string        `json:"key"`
	Content   PageContent   `json:"content"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// ValidAt reports whether the entry is still fresh at now.
func (e *CacheEntry) ValidAt(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}
