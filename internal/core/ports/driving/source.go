package driving

import (
	"context"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

// SourceRegistry manages source configurations.
type SourceRegistry interface {
	// AddSource validates and stores a new source.
	// Returns a *domain.ValidationError for missing required fields and
	// domain.ErrAlreadyExists when the name is taken.
	AddSource(ctx context.Context, source domain.Source) error

	// RemoveSource stops any active task for the source, then deletes it.
	RemoveSource(ctx context.Context, name string) error

	// UpdateSource replaces a source's configuration. The name is kept.
	UpdateSource(ctx context.Context, name string, source domain.Source) error

	// EnableSource toggles whether the source may be synced.
	EnableSource(ctx context.Context, name string, enabled bool) error

	// GetSources returns copies of all sources, ordered by name.
	GetSources(ctx context.Context) []domain.Source

	// GetSource returns a copy of one source.
	GetSource(ctx context.Context, name string) (*domain.Source, error)
}
