package driving

import (
	"context"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

// SyncController starts and steers sync tasks.
// Control operations only change in-memory state and never block on transfers.
type SyncController interface {
	// StartSync creates and queues a task for the source and returns its id.
	// If the source already has an unfinished task, that task's id is returned.
	StartSync(ctx context.Context, sourceName string) (string, error)

	// StopSync requests cancellation. Returns false for unknown or finished tasks.
	StopSync(taskID string) bool

	// PauseSync pauses a running task.
	PauseSync(taskID string) bool

	// ResumeSync re-queues a paused task.
	ResumeSync(taskID string) bool

	// GetTaskStatus returns a snapshot of one task.
	GetTaskStatus(taskID string) (*domain.TaskSnapshot, bool)

	// GetTaskLogs returns the task's log lines, oldest first.
	GetTaskLogs(taskID string) ([]domain.LogEntry, bool)

	// GetAllTaskStatus returns snapshots of all tracked tasks, newest first.
	GetAllTaskStatus() []domain.TaskSnapshot

	// GetSourceStatus aggregates a source's configuration, active task and history.
	GetSourceStatus(ctx context.Context, sourceName string) (*domain.SourceStatus, error)

	// GetSyncHistory returns history entries for a source (all when empty),
	// most recent first, at most limit entries.
	GetSyncHistory(ctx context.Context, sourceName string, limit int) ([]domain.HistoryEntry, error)

	// CleanupCompletedTasks forgets finished tasks beyond the keep most
	// recently completed ones and returns how many were removed.
	CleanupCompletedTasks(keep int) int
}

// SyncEngine is the full engine surface used by the CLI and HTTP front ends.
type SyncEngine interface {
	SourceRegistry
	SyncController
}
