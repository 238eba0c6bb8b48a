package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/mirrorsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/mirrorsync/internal/adapters/driven/storage/jsonfile"
	"github.com/custodia-labs/mirrorsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/core/services"
	"github.com/custodia-labs/mirrorsync/internal/logger"
	"github.com/custodia-labs/mirrorsync/internal/transports"
)

// bootstrap loads configuration and builds the engine over the configured state stores.
func bootstrap(cmd *cobra.Command) (func(), error) {
	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	settingsSvc := services.NewSettingsService(configStore, filepath.Dir(configStore.Path()))
	settings := settingsSvc.Get()
	if settings.Verbose {
		logger.SetVerbose(true)
	}

	logger.Section("Configuration")
	logger.Debug("Config file: %s", configStore.Path())
	logger.Debug("State backend: %s", settings.Backend)

	fs := afero.NewOsFs()
	stores, err := openStores(fs, settings)
	if err != nil {
		return nil, err
	}

	registry := transports.NewDefaultRegistry(fs, "mirrorsync/"+version)
	engine, err := services.NewSyncEngine(cmd.Context(), settings.Engine, stores.sources, stores.history, registry)
	if err != nil {
		stores.close()
		return nil, err
	}

	syncEngine = engine
	settingsService = settingsSvc
	if settings.WatchSources && stores.json != nil {
		sourceWatcher = reloadingWatcher{store: stores.json, engine: engine}
	}

	return func() {
		if err := engine.Close(); err != nil {
			logger.Warn("Closing engine: %v", err)
		}
		stores.close()
	}, nil
}

// stateStores are the persistence adapters selected by state.backend.
type stateStores struct {
	sources driven.SourceStore
	history driven.HistoryStore
	json    *jsonfile.SourceStore
	close   func()
}

func openStores(fs afero.Fs, settings domain.AppSettings) (*stateStores, error) {
	switch settings.Backend {
	case domain.BackendSQLite:
		logger.Debug("Database file: %s", settings.DatabaseFile)
		db, err := sqlite.NewStore(settings.DatabaseFile)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return &stateStores{
			sources: db.SourceStore(),
			history: db.HistoryStore(settings.Engine.HistoryLimit),
			close: func() {
				if err := db.Close(); err != nil {
					logger.Warn("Closing database: %v", err)
				}
			},
		}, nil

	case domain.BackendJSON, "":
		logger.Debug("Sources file: %s", settings.SourcesFile)
		logger.Debug("History file: %s", settings.HistoryFile)
		sourceStore, err := jsonfile.NewSourceStore(fs, settings.SourcesFile)
		if err != nil {
			return nil, fmt.Errorf("open sources: %w", err)
		}
		historyStore, err := jsonfile.NewHistoryStore(fs, settings.HistoryFile, settings.Engine.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		return &stateStores{
			sources: sourceStore,
			history: historyStore,
			json:    sourceStore,
			close:   func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown state backend %q", settings.Backend)
	}
}

// reloadingWatcher refreshes the engine registry before notifying the caller.
type reloadingWatcher struct {
	store  *jsonfile.SourceStore
	engine *services.SyncEngine
}

func (w reloadingWatcher) Watch(ctx context.Context, onChange func()) error {
	return w.store.Watch(ctx, func() {
		if err := w.engine.ReloadSources(ctx); err != nil {
			logger.Warn("Reloading sources: %v", err)
			return
		}
		if onChange != nil {
			onChange()
		}
	})
}
