package fetch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/cache"
	"github.com/jonathan/company-brochure/internal/logging"
	"github.com/jonathan/company-brochure/internal/types"
)

// CachedFetcher wraps a PageFetcher with a content cache keyed by normalized URL.
type CachedFetcher struct {
	fetcher PageFetcher
	store   cache.Store
	log     logrus.FieldLogger
}

// NewCachedFetcher creates a new cached fetcher. A nil store disables caching.
func NewCachedFetcher(fetcher PageFetcher, store cache.Store, log logrus.FieldLogger) *CachedFetcher {
	return &CachedFetcher{
		fetcher: fetcher,
		store:   store,
		log:     logging.OrDiscard(log),
	}
}

// Fetch returns cached content when fresh, otherwise fetches and caches it.
// Failed fetches are never cached.
func (f *CachedFetcher) Fetch(ctx context.Context, urlStr string) (*types.PageContent, error) {
	key := NormalizeKey(urlStr)

	if f.store != nil {
		if cached, ok := f.store.Get(ctx, key); ok {
			f.log.WithField("url", key).Debug("cache hit")
			cached.FromCache = true
			return &cached, nil
		}
	}

	page, err := f.fetcher.Fetch(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	if f.store != nil {
		f.store.Put(ctx, key, *page)
	}
	page.FromCache = false
	return page, nil
}

// Invalidate clears the whole cache.
func (f *CachedFetcher) Invalidate(ctx context.Context) {
	if f.store != nil {
		f.store.Clear(ctx)
	}
}

// Store returns the underlying cache.
func (f *CachedFetcher) Store() cache.Store {
	return f.store
}

var (
	_ PageFetcher = (*Fetcher)(nil)
	_ PageFetcher = (*CachedFetcher)(nil)
)
