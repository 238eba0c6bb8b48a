package driven

import (
	"context"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

// SourceStore persists source configurations.
type SourceStore interface {
	// Save stores or updates a source.
	Save(ctx context.Context, source domain.Source) error

	// Get retrieves a source by name.
	Get(ctx context.Context, name string) (*domain.Source, error)

	// Delete removes a source.
	Delete(ctx context.Context, name string) error

	// List returns all configured sources.
	List(ctx context.Context) ([]domain.Source, error)
}
