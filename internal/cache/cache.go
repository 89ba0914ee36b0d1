// Package cache provides TTL caches for fetched page content.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/types"
)

// DefaultTTL is how long fetched content stays fresh.
const DefaultTTL = 5 * time.Minute

// Store caches page content by normalized URL.
// Lookups never fail: a miss, an expired entry or a backend error all
// report false. Writes are last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) (types.PageContent, bool)
	Put(ctx context.Context, key string, content types.PageContent)
	ClearExpired(ctx context.Context) int
	Clear(ctx context.Context)
}

// Memory is an in-process Store guarded by a RWMutex.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]types.CacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an in-memory cache. A non-positive ttl uses DefaultTTL.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]types.CacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the content for key if present and fresh. Expired entries
// are evicted.
func (m *Memory) Get(_ context.Context, key string) (types.PageContent, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return types.PageContent{}, false
	}

	now := m.now()
	if !entry.ValidAt(now) {
		m.mu.Lock()
		// Another writer may have refreshed the entry in between.
		if current, still := m.entries[key]; still && !current.ValidAt(now) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return types.PageContent{}, false
	}
	content := entry.Content
	content.Links = slices.Clone(content.Links)
	return content, true
}

// Put stores a copy of content under key, stamping it with the current time.
func (m *Memory) Put(_ context.Context, key string, content types.PageContent) {
	content.FromCache = false
	content.Links = slices.Clone(content.Links)
	m.mu.Lock()
	m.entries[key] = types.CacheEntry{
		Key:       key,
		Content:   content,
		FetchedAt: m.now(),
		TTL:       m.ttl,
	}
	m.mu.Unlock()
}

// ClearExpired removes stale entries and returns how many were removed.
func (m *Memory) ClearExpired(_ context.Context) int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !e.ValidAt(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Clear removes every entry.
func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]types.CacheEntry)
	m.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// StartJanitor calls ClearExpired every interval until ctx is done.
func StartJanitor(ctx context.Context, store Store, interval time.Duration, log logrus.FieldLogger) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := store.ClearExpired(ctx); n > 0 && log != nil {
					log.WithField("removed", n).Debug("evicted expired cache entries")
				}
			}
		}
	}()
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Valkey)(nil)
)
