package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/logger"
	"github.com/custodia-labs/mirrorsync/internal/workerpool"
)

// StartSync queues a task for the source and returns its id.
// A source with an unfinished task gets that task's id back.
func (e *SyncEngine) StartSync(_ context.Context, sourceName string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", domain.ErrEngineClosed
	}
	src, ok := e.sources[sourceName]
	if !ok {
		return "", fmt.Errorf("source %q: %w", sourceName, domain.ErrNotFound)
	}
	if !src.Enabled {
		return "", fmt.Errorf("source %q: %w", sourceName, domain.ErrSourceDisabled)
	}
	for _, run := range e.tasks {
		if run.task.SourceName == sourceName && !run.task.Status().IsTerminal() {
			return run.task.ID, nil
		}
	}

	id := e.newTaskIDLocked()
	e.taskSeq++
	ctx, cancel := context.WithCancel(context.Background())
	run := &taskRun{
		task:   domain.NewSyncTask(id, sourceName),
		seq:    e.taskSeq,
		ctx:    ctx,
		cancel: cancel,
		active: true,
	}
	if err := e.pool.Submit(e.job(run)); err != nil {
		cancel()
		if errors.Is(err, workerpool.ErrClosed) {
			return "", domain.ErrEngineClosed
		}
		return "", fmt.Errorf("source %q: %w", sourceName, domain.ErrQueueFull)
	}
	e.tasks[id] = run
	run.task.AddLog("info", "queued sync of %s", sourceName)

	logger.WithFields(logger.Fields{"task": id, "source": sourceName}).Info("sync queued")
	return id, nil
}

// StopSync requests cancellation of an unfinished task.
// A paused task with no worker is cancelled immediately.
func (e *SyncEngine) StopSync(taskID string) bool {
	run, ok := e.run(taskID)
	if !ok {
		return false
	}

	run.runMu.Lock()
	defer run.runMu.Unlock()

	prev, ok := run.task.TransitionFrom(domain.StatusStopping,
		domain.StatusPending, domain.StatusRunning, domain.StatusPaused)
	if !ok {
		return prev == domain.StatusStopping
	}
	run.task.AddLog("info", "stop requested")
	run.cancel()
	if prev == domain.StatusPaused && !run.active {
		e.finishCancelled(run)
	}
	return true
}

// PauseSync pauses a running task at its next checkpoint.
func (e *SyncEngine) PauseSync(taskID string) bool {
	run, ok := e.run(taskID)
	if !ok {
		return false
	}

	run.runMu.Lock()
	defer run.runMu.Unlock()

	if !run.task.CompareAndSwapStatus(domain.StatusRunning, domain.StatusPaused) {
		return false
	}
	run.task.RecordPausePosition()
	run.task.AddLog("info", "pause requested")
	return true
}

// ResumeSync returns a paused task to running and requeues it when no worker owns it.
func (e *SyncEngine) ResumeSync(taskID string) bool {
	run, ok := e.run(taskID)
	if !ok {
		return false
	}

	run.runMu.Lock()
	defer run.runMu.Unlock()

	if !run.task.CompareAndSwapStatus(domain.StatusPaused, domain.StatusRunning) {
		return false
	}
	if !run.active {
		if err := e.pool.Submit(e.job(run)); err != nil {
			run.task.CompareAndSwapStatus(domain.StatusRunning, domain.StatusPaused)
			logger.Warn("Resume of task %s rejected: %v", taskID, err)
			return false
		}
		run.active = true
	}
	run.task.ClearPausePosition()
	run.task.AddLog("info", "resumed")
	return true
}

// StopAllForSource requests cancellation of every unfinished task of a source.
func (e *SyncEngine) StopAllForSource(sourceName string) int {
	e.mu.RLock()
	ids := make([]string, 0)
	for id, run := range e.tasks {
		if run.task.SourceName == sourceName {
			ids = append(ids, id)
		}
	}
	e.mu.RUnlock()

	stopped := 0
	for _, id := range ids {
		if e.StopSync(id) {
			stopped++
		}
	}
	return stopped
}

// GetTaskStatus returns a snapshot of one task.
func (e *SyncEngine) GetTaskStatus(taskID string) (*domain.TaskSnapshot, bool) {
	run, ok := e.run(taskID)
	if !ok {
		return nil, false
	}
	snap := run.task.Snapshot()
	return &snap, true
}

// GetTaskLogs returns the task log, oldest first.
func (e *SyncEngine) GetTaskLogs(taskID string) ([]domain.LogEntry, bool) {
	run, ok := e.run(taskID)
	if !ok {
		return nil, false
	}
	return run.task.Logs(), true
}

// GetAllTaskStatus returns snapshots of all tracked tasks, newest first.
func (e *SyncEngine) GetAllTaskStatus() []domain.TaskSnapshot {
	e.mu.RLock()
	runs := make([]*taskRun, 0, len(e.tasks))
	for _, run := range e.tasks {
		runs = append(runs, run)
	}
	e.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].seq > runs[j].seq })
	out := make([]domain.TaskSnapshot, len(runs))
	for i, run := range runs {
		out[i] = run.task.Snapshot()
	}
	return out
}

// GetSyncHistory returns history entries, most recent first.
func (e *SyncEngine) GetSyncHistory(ctx context.Context, sourceName string, limit int) ([]domain.HistoryEntry, error) {
	entries, err := e.historyStore.List(ctx, sourceName, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

// CleanupCompletedTasks forgets finished tasks beyond the keep most recently completed.
func (e *SyncEngine) CleanupCompletedTasks(keep int) int {
	if keep < 0 {
		keep = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	finished := make([]*taskRun, 0)
	for _, run := range e.tasks {
		if run.task.Status().IsTerminal() {
			finished = append(finished, run)
		}
	}
	if len(finished) <= keep {
		return 0
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].task.CompletedAt().After(finished[j].task.CompletedAt())
	})
	for _, run := range finished[keep:] {
		delete(e.tasks, run.task.ID)
	}
	return len(finished) - keep
}

func (e *SyncEngine) run(taskID string) (*taskRun, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	run, ok := e.tasks[taskID]
	return run, ok
}

func (e *SyncEngine) unfinishedRun(sourceName string) *taskRun {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var latest *taskRun
	for _, run := range e.tasks {
		if run.task.SourceName != sourceName || run.task.Status().IsTerminal() {
			continue
		}
		if latest == nil || run.seq > latest.seq {
			latest = run
		}
	}
	return latest
}

// newTaskIDLocked returns a short id not used by any tracked task.
func (e *SyncEngine) newTaskIDLocked() string {
	for {
		id := uuid.NewString()[:8]
		if _, taken := e.tasks[id]; !taken {
			return id
		}
	}
}
