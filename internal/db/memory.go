package db

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/company-brochure/internal/types"
)

// MemoryStore is an in-process ArtifactStore used when no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	brochures map[uuid.UUID]types.BrochureArtifact
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{brochures: make(map[uuid.UUID]types.BrochureArtifact)}
}

// SaveBrochure stores a copy of artifact, replacing any with the same id.
func (m *MemoryStore) SaveBrochure(_ context.Context, artifact *types.BrochureArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brochures[artifact.SessionID] = *artifact
	return nil
}

// GetBrochure returns a copy of the stored artifact, or nil.
func (m *MemoryStore) GetBrochure(_ context.Context, id uuid.UUID) (*types.BrochureArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	artifact, ok := m.brochures[id]
	if !ok {
		return nil, nil
	}
	return &artifact, nil
}

// ListBrochures mirrors DB.ListBrochures.
func (m *MemoryStore) ListBrochures(_ context.Context, company string, limit int) ([]BrochureSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]BrochureSummary, 0, len(m.brochures))
	for _, a := range m.brochures {
		if company != "" && a.Request.CompanyName != company {
			continue
		}
		out = append(out, BrochureSummary{
			ID:          a.SessionID,
			CompanyName: a.Request.CompanyName,
			Model:       string(a.Request.Model),
			Tone:        string(a.Request.Tone),
			GeneratedAt: a.GeneratedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ ArtifactStore = (*MemoryStore)(nil)
