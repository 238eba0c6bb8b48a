package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/logger"
	"github.com/custodia-labs/mirrorsync/internal/workerpool"
)

// job runs the task under the worker's context, cut short when the task is stopped.
func (e *SyncEngine) job(run *taskRun) workerpool.Job {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		defer context.AfterFunc(run.ctx, cancel)()
		e.execute(ctx, run)
		return nil
	}
}

// execute runs the task until it yields, then releases ownership.
// A resume that lands while the worker is unwinding is picked up here.
func (e *SyncEngine) execute(ctx context.Context, run *taskRun) {
	for {
		e.runOnce(ctx, run)

		run.runMu.Lock()
		switch run.task.Status() {
		case domain.StatusRunning:
			run.runMu.Unlock()
			continue
		case domain.StatusStopping:
			e.finishCancelled(run)
		}
		run.active = false
		run.runMu.Unlock()
		return
	}
}

func (e *SyncEngine) runOnce(ctx context.Context, run *taskRun) {
	task := run.task
	log := logger.WithFields(logger.Fields{"task": task.ID, "source": task.SourceName})

	defer func() {
		if r := recover(); r != nil {
			e.fail(run, fmt.Errorf("sync panicked: %v", r))
		}
	}()

	if err := task.Checkpoint(); err != nil {
		e.interrupted(run, err)
		return
	}
	task.CompareAndSwapStatus(domain.StatusPending, domain.StatusRunning)
	task.MarkStarted()

	source, ok := e.sourceCopy(task.SourceName)
	if !ok {
		e.fail(run, fmt.Errorf("source %q: %w", task.SourceName, domain.ErrNotFound))
		return
	}

	log.Info("sync started")
	err := e.mirror(ctx, task, source)
	switch {
	case err == nil:
		e.complete(run)
	case domain.IsTaskInterrupt(err):
		e.interrupted(run, err)
	case ctx.Err() != nil:
		if _, ok := task.TransitionFrom(domain.StatusStopping, domain.StatusRunning, domain.StatusPaused); ok {
			e.finishCancelled(run)
		}
	default:
		log.Errorf("sync failed: %v", err)
		e.fail(run, err)
	}
}

// mirror enumerates the source and fetches every stale entry.
// Per-entry failures are logged and counted unless the transport marks them fatal.
func (e *SyncEngine) mirror(ctx context.Context, task *domain.SyncTask, source domain.Source) error {
	transport, err := e.transports.Get(source.Type)
	if err != nil {
		return err
	}

	task.AddLog("info", "connecting to %s", source.Endpoint)
	session, err := transport.Open(ctx, source)
	if err != nil {
		return fmt.Errorf("connect %s: %w", source.Type, err)
	}
	defer session.Close()

	entries, err := session.List(ctx)
	if err != nil {
		return fmt.Errorf("list %s: %w", source.Endpoint, err)
	}

	files := selectEntries(entries, source.Filters)
	var totalSize int64
	for _, entry := range files {
		totalSize += entry.Size
	}
	task.Begin(len(files), totalSize)
	task.AddLog("info", "found %d files, %d bytes", len(files), totalSize)

	targetDir := filepath.Join(e.cfg.BaseDir, filepath.FromSlash(source.TargetDir()))
	for _, entry := range files {
		if err := task.Checkpoint(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		task.BeginEntry(entry.Path)
		localPath, err := localPathFor(targetDir, entry.Path)
		if err != nil {
			task.AddLog("warn", "skipping %s: %v", entry.Path, err)
			task.EntryFailed()
			continue
		}
		if !session.NeedsSync(localPath, entry) {
			task.EntrySkipped(entry.Size)
			continue
		}

		if err := session.Fetch(ctx, entry, localPath, task); err != nil {
			if domain.IsTaskInterrupt(err) || driven.IsAbort(err) || ctx.Err() != nil {
				return err
			}
			task.AddLog("error", "fetch %s: %v", entry.Path, err)
			logger.Warn("Fetch %s from %s failed: %v", entry.Path, source.Name, err)
			task.EntryFailed()
			continue
		}
		task.EntrySynced()
	}
	return nil
}

func selectEntries(entries []domain.RemoteEntry, filters domain.Filters) []domain.RemoteEntry {
	out := make([]domain.RemoteEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir || !filters.Allows(entry.Path) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// localPathFor maps a remote relative path under dir, rejecting paths that escape it.
func localPathFor(dir, remotePath string) (string, error) {
	p := filepath.Join(dir, filepath.FromSlash(remotePath))
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path escapes target directory")
	}
	return p, nil
}

func (e *SyncEngine) complete(run *taskRun) {
	task := run.task
	if task.CompareAndSwapStatus(domain.StatusRunning, domain.StatusCompleted) {
		task.Finish(nil)
		snap := task.Snapshot()
		task.AddLog("info", "completed: %d synced, %d failed", snap.SyncedFiles, snap.FailedFiles)
		logger.WithFields(logger.Fields{"task": task.ID, "source": task.SourceName}).Info("sync completed")
		e.record(task)
		return
	}
	// Stop or pause arrived after the last entry.
	if task.Status() == domain.StatusStopping {
		e.finishCancelled(run)
	}
}

func (e *SyncEngine) interrupted(run *taskRun, err error) {
	if errors.Is(err, domain.ErrTaskCancelled) {
		e.finishCancelled(run)
		return
	}
	run.task.AddLog("info", "paused")
	logger.Debug("Task %s paused", run.task.ID)
}

// finishCancelled moves a stopping task to cancelled and records it once.
func (e *SyncEngine) finishCancelled(run *taskRun) {
	task := run.task
	if !task.CompareAndSwapStatus(domain.StatusStopping, domain.StatusCancelled) {
		return
	}
	task.Finish(nil)
	task.AddLog("info", "cancelled")
	logger.WithFields(logger.Fields{"task": task.ID, "source": task.SourceName}).Info("sync cancelled")
	e.record(task)
}

func (e *SyncEngine) fail(run *taskRun, err error) {
	task := run.task
	if _, ok := task.TransitionFrom(domain.StatusFailed,
		domain.StatusPending, domain.StatusRunning, domain.StatusPaused, domain.StatusStopping); !ok {
		return
	}
	task.Finish(err)
	task.AddLog("error", "%v", err)
	e.record(task)
}

func (e *SyncEngine) record(task *domain.SyncTask) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	if err := e.historyStore.Append(context.Background(), task.HistoryEntry()); err != nil {
		logger.Error("record history for task %s: %v", task.ID, err)
	}
}
