package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
)

var _ driven.HistoryStore = (*HistoryStore)(nil)

// HistoryStore keeps finished task outcomes in the history table, trimmed to
// the most recent limit rows on every Append.
type HistoryStore struct {
	db    *sql.DB
	limit int
}

// Append inserts entry and drops rows beyond the limit.
func (s *HistoryStore) Append(ctx context.Context, entry domain.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history (task_id, source_name, status, success, started, completed,
			synced_files, synced_size, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.TaskID, entry.SourceName, entry.Status.String(), entry.Success,
		nullTime(entry.Started), nullTime(entry.Completed),
		entry.SyncedFiles, entry.SyncedSize, entry.Error)
	if err != nil {
		return fmt.Errorf("inserting history: %w", err)
	}

	if s.limit > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM history WHERE id NOT IN (
				SELECT id FROM history ORDER BY id DESC LIMIT ?
			)
		`, s.limit)
		if err != nil {
			return fmt.Errorf("trimming history: %w", err)
		}
	}
	return tx.Commit()
}

// List returns entries for sourceName (all sources when empty), most recent first.
func (s *HistoryStore) List(ctx context.Context, sourceName string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, source_name, status, success, started, completed,
			synced_files, synced_size, error
		FROM history
		WHERE ? = '' OR source_name = ?
		ORDER BY id DESC
		LIMIT ?
	`, sourceName, sourceName, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var h domain.HistoryEntry
		var status string
		var started, completed sql.NullTime
		if err := rows.Scan(&h.TaskID, &h.SourceName, &status, &h.Success, &started, &completed,
			&h.SyncedFiles, &h.SyncedSize, &h.Error); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if h.Status, err = domain.ParseTaskStatus(status); err != nil {
			return nil, fmt.Errorf("history %s: %w", h.TaskID, err)
		}
		h.Started = started.Time
		h.Completed = completed.Time
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
