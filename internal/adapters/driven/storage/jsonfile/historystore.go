package jsonfile

import (
	"context"
	"sync"

	"github.com/spf13/afero"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
)

// Ensure HistoryStore implements the interface.
var _ driven.HistoryStore = (*HistoryStore)(nil)

// HistoryStore keeps history as a JSON array in append order, bounded to limit entries.
type HistoryStore struct {
	fs    afero.Fs
	path  string
	limit int

	mu      sync.RWMutex
	entries []domain.HistoryEntry
}

// NewHistoryStore opens the history file at path. A limit of zero or less
// uses domain.DefaultHistoryLimit.
func NewHistoryStore(fs afero.Fs, path string, limit int) (*HistoryStore, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	s := &HistoryStore{fs: fs, path: path, limit: limit}
	if err := readJSON(fs, path, &s.entries); err != nil {
		return nil, err
	}
	s.entries = trim(s.entries, limit)
	return s, nil
}

// Append records an entry and rewrites the file.
func (s *HistoryStore) Append(_ context.Context, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := trim(append(s.entries, entry), s.limit)
	if _, err := writeJSON(s.fs, s.path, next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// List returns entries for sourceName (all sources when empty), most recent first.
func (s *HistoryStore) List(_ context.Context, sourceName string, limit int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.HistoryEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if sourceName != "" && s.entries[i].SourceName != sourceName {
			continue
		}
		result = append(result, s.entries[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func trim(entries []domain.HistoryEntry, limit int) []domain.HistoryEntry {
	if over := len(entries) - limit; over > 0 {
		return append([]domain.HistoryEntry(nil), entries[over:]...)
	}
	return entries
}
