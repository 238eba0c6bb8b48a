package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
)

var _ driven.SourceStore = (*SourceStore)(nil)

// SourceStore keeps sources in the sources table. The full source is stored
// as JSON in the data column; name, type, endpoint and enabled are copied
// into columns for ad-hoc queries.
type SourceStore struct {
	db *sql.DB
}

// Save stores or updates a source.
func (s *SourceStore) Save(ctx context.Context, source domain.Source) error {
	now := time.Now().UTC()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	if source.UpdatedAt.IsZero() {
		source.UpdatedAt = now
	}

	data, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("marshalling source: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (name, type, endpoint, enabled, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			endpoint = excluded.endpoint,
			enabled = excluded.enabled,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, source.Name, string(source.Type), source.Endpoint, source.Enabled, string(data),
		source.CreatedAt, source.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving source: %w", err)
	}
	return nil
}

// Get retrieves a source by name.
func (s *SourceStore) Get(ctx context.Context, name string) (*domain.Source, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM sources WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning source: %w", err)
	}
	return decodeSource(name, data)
}

// Delete removes a source. Deleting a missing source is not an error.
func (s *SourceStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sources WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	return nil
}

// List returns all sources ordered by name.
func (s *SourceStore) List(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, data FROM sources ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source //nolint:prealloc // size unknown from query
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		src, err := decodeSource(name, data)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

// decodeSource treats the primary key as the authoritative name.
func decodeSource(name, data string) (*domain.Source, error) {
	var src domain.Source
	if err := json.Unmarshal([]byte(data), &src); err != nil {
		return nil, fmt.Errorf("unmarshalling source %s: %w", name, err)
	}
	src.Name = name
	return &src, nil
}
