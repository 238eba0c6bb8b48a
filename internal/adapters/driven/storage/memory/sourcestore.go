package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
)

// Ensure SourceStore implements the interface.
var _ driven.SourceStore = (*SourceStore)(nil)

// SourceStore is an in-memory implementation of driven.SourceStore.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]domain.Source
}

// NewSourceStore creates a new in-memory source store.
func NewSourceStore(initial ...domain.Source) *SourceStore {
	s := &SourceStore{
		sources: make(map[string]domain.Source, len(initial)),
	}
	for _, src := range initial {
		s.sources[src.Name] = src.Clone()
	}
	return s
}

// Save stores or updates a source.
func (s *SourceStore) Save(_ context.Context, source domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[source.Name] = source.Clone()
	return nil
}

// Get retrieves a source by name.
func (s *SourceStore) Get(_ context.Context, name string) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	source, ok := s.sources[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	source = source.Clone()
	return &source, nil
}

// Delete removes a source.
func (s *SourceStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, name)
	return nil
}

// List returns all sources ordered by name.
func (s *SourceStore) List(_ context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Source, 0, len(s.sources))
	for _, source := range s.sources {
		result = append(result, source.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
