// Package fetchtest provides an in-memory fetch.PageFetcher for tests.
package fetchtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonathan/company-brochure/internal/fetch"
	"github.com/jonathan/company-brochure/internal/types"
)

// Site serves canned pages keyed by normalized URL. Unknown URLs fail with
// a 404 FetchError.
type Site struct {
	mu       sync.Mutex
	pages    map[string]types.PageContent
	errs     map[string]error
	calls    map[string]int
	inFlight int
	peak     int

	// Gate, when set, blocks every fetch until it is closed or ctx is done.
	Gate chan struct{}
}

// NewSite returns an empty site.
func NewSite() *Site {
	return &Site{
		pages: make(map[string]types.PageContent),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Page registers a page with the given text and links.
func (s *Site) Page(url, title, text string, links ...types.LinkCandidate) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[fetch.NormalizeKey(url)] = types.PageContent{URL: url, Title: title, Text: text, Links: links}
	return s
}

// Fail makes fetches of url return err.
func (s *Site) Fail(url string, err error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[fetch.NormalizeKey(url)] = err
	return s
}

// Fetch implements fetch.PageFetcher.
func (s *Site) Fetch(ctx context.Context, url string) (*types.PageContent, error) {
	key := fetch.NormalizeKey(url)

	s.mu.Lock()
	s.calls[key]++
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	page, ok := s.pages[key]
	if !ok {
		return nil, &fetch.Error{Kind: fetch.KindFetchError, URL: url, Message: fmt.Sprintf("HTTP %d", 404), StatusCode: 404}
	}
	page.Links = append([]types.LinkCandidate(nil), page.Links...)
	return &page, nil
}

// Calls returns how many times url was fetched.
func (s *Site) Calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[fetch.NormalizeKey(url)]
}

// TotalCalls returns the number of fetches across all URLs.
func (s *Site) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// PeakConcurrency returns the highest number of simultaneous fetches seen.
func (s *Site) PeakConcurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

var _ fetch.PageFetcher = (*Site)(nil)
