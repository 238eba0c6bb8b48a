package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
)

// Ensure HistoryStore implements the interface.
var _ driven.HistoryStore = (*HistoryStore)(nil)

// HistoryStore is an in-memory implementation of driven.HistoryStore.
// It keeps at most limit entries, dropping the oldest.
type HistoryStore struct {
	mu      sync.RWMutex
	limit   int
	entries []domain.HistoryEntry
}

// NewHistoryStore creates a history store bounded to limit entries.
// A limit of zero or less uses domain.DefaultHistoryLimit.
func NewHistoryStore(limit int) *HistoryStore {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	return &HistoryStore{limit: limit}
}

// Append records a finished task.
func (s *HistoryStore) Append(_ context.Context, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if over := len(s.entries) - s.limit; over > 0 {
		s.entries = append([]domain.HistoryEntry(nil), s.entries[over:]...)
	}
	return nil
}

// List returns entries for sourceName (all sources when empty), most recent first.
func (s *HistoryStore) List(_ context.Context, sourceName string, limit int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterHistory(s.entries, sourceName, limit), nil
}

// filterHistory walks entries newest first. entries must be in append order.
func filterHistory(entries []domain.HistoryEntry, sourceName string, limit int) []domain.HistoryEntry {
	result := make([]domain.HistoryEntry, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		if sourceName != "" && entries[i].SourceName != sourceName {
			continue
		}
		result = append(result, entries[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}
