package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/logger"
)

// AddSource validates and stores a new source.
func (e *SyncEngine) AddSource(ctx context.Context, source domain.Source) error {
	src := source.Clone()
	if err := src.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.sources[src.Name]; exists {
		return fmt.Errorf("source %q: %w", src.Name, domain.ErrAlreadyExists)
	}

	now := time.Now()
	src.CreatedAt = now
	src.UpdatedAt = now
	if err := e.sourceStore.Save(ctx, src); err != nil {
		return fmt.Errorf("save source: %w", err)
	}
	e.sources[src.Name] = src

	logger.Info("Added source %s (%s)", src.Name, src.Type)
	return nil
}

// RemoveSource stops the source's unfinished tasks, then deletes it.
func (e *SyncEngine) RemoveSource(ctx context.Context, name string) error {
	e.mu.RLock()
	_, exists := e.sources[name]
	e.mu.RUnlock()
	if !exists {
		return fmt.Errorf("source %q: %w", name, domain.ErrNotFound)
	}

	if n := e.StopAllForSource(name); n > 0 {
		logger.Info("Stopped %d task(s) for removed source %s", n, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.sources[name]; !exists {
		return fmt.Errorf("source %q: %w", name, domain.ErrNotFound)
	}
	if err := e.sourceStore.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	delete(e.sources, name)

	logger.Info("Removed source %s", name)
	return nil
}

// UpdateSource replaces a source's configuration, keeping its name and creation time.
// Running tasks keep the configuration they started with.
func (e *SyncEngine) UpdateSource(ctx context.Context, name string, source domain.Source) error {
	src := source.Clone()
	src.Name = name
	if err := src.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, exists := e.sources[name]
	if !exists {
		return fmt.Errorf("source %q: %w", name, domain.ErrNotFound)
	}
	src.CreatedAt = existing.CreatedAt
	src.UpdatedAt = time.Now()
	if err := e.sourceStore.Save(ctx, src); err != nil {
		return fmt.Errorf("save source: %w", err)
	}
	e.sources[name] = src
	return nil
}

// EnableSource toggles whether the source may be synced.
func (e *SyncEngine) EnableSource(ctx context.Context, name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, exists := e.sources[name]
	if !exists {
		return fmt.Errorf("source %q: %w", name, domain.ErrNotFound)
	}
	if src.Enabled == enabled {
		return nil
	}

	updated := src.Clone()
	updated.Enabled = enabled
	updated.UpdatedAt = time.Now()
	if err := e.sourceStore.Save(ctx, updated); err != nil {
		return fmt.Errorf("save source: %w", err)
	}
	e.sources[name] = updated
	return nil
}

// GetSources returns copies of all sources ordered by name.
func (e *SyncEngine) GetSources(_ context.Context) []domain.Source {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Source, 0, len(e.sources))
	for _, src := range e.sources {
		out = append(out, src.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetSource returns a copy of one source.
func (e *SyncEngine) GetSource(_ context.Context, name string) (*domain.Source, error) {
	src, ok := e.sourceCopy(name)
	if !ok {
		return nil, fmt.Errorf("source %q: %w", name, domain.ErrNotFound)
	}
	return &src, nil
}

// GetSourceStatus aggregates a source's configuration, unfinished task and history totals.
func (e *SyncEngine) GetSourceStatus(ctx context.Context, name string) (*domain.SourceStatus, error) {
	src, ok := e.sourceCopy(name)
	if !ok {
		return nil, fmt.Errorf("source %q: %w", name, domain.ErrNotFound)
	}

	status := &domain.SourceStatus{
		Name:     src.Name,
		Enabled:  src.Enabled,
		Type:     src.Type,
		Target:   src.TargetDir(),
		Endpoint: src.Endpoint,
	}
	if run := e.unfinishedRun(name); run != nil {
		snap := run.task.Snapshot()
		status.ActiveTask = &snap
	}

	history, err := e.historyStore.List(ctx, name, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(history) > 0 {
		last := history[0]
		status.LastSync = &last
	}
	for _, h := range history {
		status.TotalSyncedFiles += h.SyncedFiles
		status.TotalSyncedSize += h.SyncedSize
	}
	return status, nil
}

func (e *SyncEngine) sourceCopy(name string) (domain.Source, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	src, ok := e.sources[name]
	if !ok {
		return domain.Source{}, false
	}
	return src.Clone(), true
}
