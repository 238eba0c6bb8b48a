package domain

// SettingKind is the value type of a configuration key.
type SettingKind string

// Setting kinds.
const (
	SettingString SettingKind = "string"
	SettingInt    SettingKind = "int"
	SettingBool   SettingKind = "bool"
)

// Configuration keys.
const (
	KeyBaseDir       = "storage.base_dir"
	KeyWorkers       = "engine.workers"
	KeyQueueSize     = "engine.queue_size"
	KeyHistoryLimit  = "engine.history_limit"
	KeyKeepCompleted = "engine.keep_completed"
	KeyBackend       = "state.backend"
	KeySourcesFile   = "state.sources_file"
	KeyHistoryFile   = "state.history_file"
	KeyDatabaseFile  = "state.database_file"
	KeyWatchSources  = "state.watch_sources"
	KeyAPIAddr       = "api.addr"
	KeyVerbose       = "log.verbose"
)

// SettingKey describes one configuration key.
type SettingKey struct {
	Key         string
	Kind        SettingKind
	Description string
	// Choices, when set, lists the accepted string values.
	Choices []string
}

var settingKeys = []SettingKey{
	{Key: KeyBaseDir, Kind: SettingString, Description: "Storage root for all source targets"},
	{Key: KeyWorkers, Kind: SettingInt, Description: "Tasks running concurrently"},
	{Key: KeyQueueSize, Kind: SettingInt, Description: "Queued tasks waiting for a worker"},
	{Key: KeyHistoryLimit, Kind: SettingInt, Description: "History entries kept"},
	{Key: KeyKeepCompleted, Kind: SettingInt, Description: "Finished tasks kept in memory by cleanup"},
	{Key: KeyBackend, Kind: SettingString, Description: "Where sources and history are stored",
		Choices: []string{BackendJSON, BackendSQLite}},
	{Key: KeySourcesFile, Kind: SettingString, Description: "JSON file holding sources"},
	{Key: KeyHistoryFile, Kind: SettingString, Description: "JSON file holding sync history"},
	{Key: KeyDatabaseFile, Kind: SettingString, Description: "SQLite database used by the sqlite backend"},
	{Key: KeyWatchSources, Kind: SettingBool, Description: "Reload sources when the JSON file changes"},
	{Key: KeyAPIAddr, Kind: SettingString, Description: "Listen address of mirrorsync serve"},
	{Key: KeyVerbose, Kind: SettingBool, Description: "Debug logging"},
}

// SettingKeys returns the catalog of configuration keys.
func SettingKeys() []SettingKey {
	out := make([]SettingKey, len(settingKeys))
	copy(out, settingKeys)
	return out
}

// LookupSetting returns the description of a configuration key.
func LookupSetting(key string) (SettingKey, bool) {
	for _, k := range settingKeys {
		if k.Key == key {
			return k, true
		}
	}
	return SettingKey{}, false
}
