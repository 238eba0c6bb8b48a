package jsonfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
)

// Ensure SourceStore implements the interface.
var _ driven.SourceStore = (*SourceStore)(nil)

// SourceStore keeps sources in a JSON object keyed by source name.
type SourceStore struct {
	fs   afero.Fs
	path string

	mu      sync.RWMutex
	sources map[string]domain.Source
	// last holds the bytes this store last read or wrote, to tell its own
	// writes apart from external edits.
	last []byte
}

// NewSourceStore opens the source file at path. A missing file starts empty.
func NewSourceStore(fs afero.Fs, path string) (*SourceStore, error) {
	s := &SourceStore{
		fs:      fs,
		path:    path,
		sources: make(map[string]domain.Source),
	}
	if _, err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *SourceStore) Path() string {
	return s.path
}

// Save stores or updates a source and rewrites the file.
func (s *SourceStore) Save(_ context.Context, source domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.sources[source.Name]
	s.sources[source.Name] = source.Clone()
	if err := s.flushLocked(); err != nil {
		if existed {
			s.sources[source.Name] = prev
		} else {
			delete(s.sources, source.Name)
		}
		return err
	}
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

// Delete removes a source and rewrites the file.
func (s *SourceStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.sources[name]
	if !existed {
		return nil
	}
	delete(s.sources, name)
	if err := s.flushLocked(); err != nil {
		s.sources[name] = prev
		return err
	}
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

// reload re-reads the file. It reports false when the content matches what
// the store last saw.
func (s *SourceStore) reload() (bool, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last != nil && bytes.Equal(data, s.last) {
		return false, nil
	}

	loaded := make(map[string]domain.Source)
	if err := decodeJSON(s.path, data, &loaded); err != nil {
		return false, err
	}
	for name, src := range loaded {
		// The map key is authoritative for hand-edited files.
		src.Name = name
		loaded[name] = src
	}
	s.sources = loaded
	s.last = data
	return true, nil
}

func (s *SourceStore) flushLocked() error {
	data, err := writeJSON(s.fs, s.path, s.sources)
	if err != nil {
		return err
	}
	s.last = data
	return nil
}
