package driven

import (
	"context"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

// HistoryStore persists the outcomes of finished tasks.
type HistoryStore interface {
	// Append records a history entry. Implementations keep a bounded number
	// of the most recent entries.
	Append(ctx context.Context, entry domain.HistoryEntry) error

	// List returns entries for sourceName (all sources when empty),
	// most recent first. A limit of zero or less returns every match.
	List(ctx context.Context, sourceName string, limit int) ([]domain.HistoryEntry, error)
}
