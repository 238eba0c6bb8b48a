package domain

import "path/filepath"

// EngineConfig holds the sync engine settings.
type EngineConfig struct {
	// BaseDir is the storage root every source target resolves under.
	BaseDir string

	// Workers is the number of tasks that run concurrently across all sources.
	Workers int

	// QueueSize bounds the number of submitted tasks waiting for a worker.
	QueueSize int

	// HistoryLimit is the number of history entries retained.
	HistoryLimit int

	// KeepCompleted is the default retention used by CleanupCompletedTasks callers.
	KeepCompleted int
}

// Engine defaults.
const (
	DefaultWorkers       = 5
	DefaultQueueSize     = 256
	DefaultHistoryLimit  = 1000
	DefaultKeepCompleted = 10
	DefaultBaseDir       = "./downloads"
)

// DefaultEngineConfig returns sensible defaults for the engine.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BaseDir:       DefaultBaseDir,
		Workers:       DefaultWorkers,
		QueueSize:     DefaultQueueSize,
		HistoryLimit:  DefaultHistoryLimit,
		KeepCompleted: DefaultKeepCompleted,
	}
}

// WithDefaults fills zero fields from DefaultEngineConfig.
func (c EngineConfig) WithDefaults() EngineConfig {
	def := DefaultEngineConfig()
	if c.BaseDir == "" {
		c.BaseDir = def.BaseDir
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.KeepCompleted <= 0 {
		c.KeepCompleted = def.KeepCompleted
	}
	return c
}

// DefaultAPIAddr is the listen address of the HTTP front end.
const DefaultAPIAddr = ":8080"

// State backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// AppSettings is the effective process configuration.
type AppSettings struct {
	Engine EngineConfig

	// Backend selects the state store: BackendJSON or BackendSQLite.
	Backend string

	// SourcesFile and HistoryFile are the JSON state files.
	SourcesFile string
	HistoryFile string

	// DatabaseFile holds sources and history for the sqlite backend.
	DatabaseFile string

	// WatchSources reloads the source registry when SourcesFile changes on disk.
	WatchSources bool

	APIAddr string
	Verbose bool
}

// DefaultAppSettings returns defaults with state files placed in configDir.
func DefaultAppSettings(configDir string) AppSettings {
	return AppSettings{
		Engine:       DefaultEngineConfig(),
		Backend:      BackendJSON,
		SourcesFile:  filepath.Join(configDir, "sources.json"),
		HistoryFile:  filepath.Join(configDir, "history.json"),
		DatabaseFile: filepath.Join(configDir, "mirrorsync.db"),
		WatchSources: true,
		APIAddr:      DefaultAPIAddr,
	}
}
