package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driving"
	"github.com/custodia-labs/mirrorsync/internal/logger"
	"github.com/custodia-labs/mirrorsync/internal/workerpool"
)

// Ensure SyncEngine implements the interface.
var _ driving.SyncEngine = (*SyncEngine)(nil)

// SyncEngine owns the source registry and the active task table, and runs
// sync tasks on a fixed-size worker pool.
type SyncEngine struct {
	cfg          domain.EngineConfig
	sourceStore  driven.SourceStore
	historyStore driven.HistoryStore
	transports   driven.TransportRegistry
	pool         *workerpool.Pool

	mu      sync.RWMutex
	sources map[string]domain.Source
	tasks   map[string]*taskRun
	taskSeq uint64
	closed  bool

	// historyMu keeps history appends in termination order.
	historyMu sync.Mutex
}

// taskRun pairs a task with the ownership flag of the worker executing it.
// runMu serialises pause, resume and stop against a worker releasing the task.
// cancel ends ctx on stop so blocked transport calls return.
type taskRun struct {
	task   *domain.SyncTask
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc

	runMu  sync.Mutex
	active bool
}

// NewSyncEngine creates an engine, loads the persisted sources and starts the worker pool.
func NewSyncEngine(
	ctx context.Context,
	cfg domain.EngineConfig,
	sourceStore driven.SourceStore,
	historyStore driven.HistoryStore,
	transports driven.TransportRegistry,
) (*SyncEngine, error) {
	cfg = cfg.WithDefaults()

	e := &SyncEngine{
		cfg:          cfg,
		sourceStore:  sourceStore,
		historyStore: historyStore,
		transports:   transports,
		sources:      make(map[string]domain.Source),
		tasks:        make(map[string]*taskRun),
	}
	if err := e.ReloadSources(ctx); err != nil {
		return nil, err
	}

	e.pool = workerpool.New(context.Background(), cfg.Workers, cfg.QueueSize)
	e.pool.OnError = func(err error) {
		logger.Error("sync worker: %v", err)
	}

	logger.Info("Sync engine started with %d workers, storage at %s", cfg.Workers, cfg.BaseDir)
	return e, nil
}

// Config returns the effective engine configuration.
func (e *SyncEngine) Config() domain.EngineConfig {
	return e.cfg
}

// PoolStats reports worker pool usage.
func (e *SyncEngine) PoolStats() workerpool.Stats {
	return e.pool.Stats()
}

// ReloadSources replaces the in-memory registry with the store's content.
// Invalid stored sources are skipped with a warning.
func (e *SyncEngine) ReloadSources(ctx context.Context) error {
	stored, err := e.sourceStore.List(ctx)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}

	loaded := make(map[string]domain.Source, len(stored))
	for _, src := range stored {
		src = src.Clone()
		if err := src.Validate(); err != nil {
			logger.Warn("Skipping stored source %q: %v", src.Name, err)
			continue
		}
		loaded[src.Name] = src
	}

	e.mu.Lock()
	e.sources = loaded
	e.mu.Unlock()

	logger.Debug("Loaded %d sources", len(loaded))
	return nil
}

// Close stops every unfinished task and waits for the workers to drain.
func (e *SyncEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	ids := make([]string, 0, len(e.tasks))
	for id := range e.tasks {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.StopSync(id)
	}
	e.pool.Stop()

	logger.Info("Sync engine stopped")
	return nil
}
