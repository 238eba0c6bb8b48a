package services

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	configDir   string
}

// NewSettingsService creates a settings service. configDir anchors the
// default state file locations.
func NewSettingsService(configStore driven.ConfigStore, configDir string) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		configDir:   configDir,
	}
}

// Get returns the effective settings.
func (s *SettingsService) Get() domain.AppSettings {
	defaults := domain.DefaultAppSettings(s.configDir)

	return domain.AppSettings{
		Engine: domain.EngineConfig{
			BaseDir:       s.getString(domain.KeyBaseDir, defaults.Engine.BaseDir),
			Workers:       s.getInt(domain.KeyWorkers, defaults.Engine.Workers),
			QueueSize:     s.getInt(domain.KeyQueueSize, defaults.Engine.QueueSize),
			HistoryLimit:  s.getInt(domain.KeyHistoryLimit, defaults.Engine.HistoryLimit),
			KeepCompleted: s.getInt(domain.KeyKeepCompleted, defaults.Engine.KeepCompleted),
		},
		Backend:      s.getString(domain.KeyBackend, defaults.Backend),
		SourcesFile:  s.getString(domain.KeySourcesFile, defaults.SourcesFile),
		HistoryFile:  s.getString(domain.KeyHistoryFile, defaults.HistoryFile),
		DatabaseFile: s.getString(domain.KeyDatabaseFile, defaults.DatabaseFile),
		WatchSources: s.getBool(domain.KeyWatchSources, defaults.WatchSources),
		APIAddr:      s.getString(domain.KeyAPIAddr, defaults.APIAddr),
		Verbose:      s.getBool(domain.KeyVerbose, defaults.Verbose),
	}
}

// Value returns the raw stored value of a key.
func (s *SettingsService) Value(key string) (any, bool) {
	return s.configStore.Get(key)
}

// Set parses and persists a configuration value.
func (s *SettingsService) Set(key, value string) error {
	def, ok := domain.LookupSetting(key)
	if !ok {
		return &domain.ValidationError{Field: key, Reason: "unknown configuration key"}
	}

	var parsed any
	switch def.Kind {
	case domain.SettingInt:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return &domain.ValidationError{Field: key, Reason: "must be a positive integer"}
		}
		parsed = n
	case domain.SettingBool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return &domain.ValidationError{Field: key, Reason: "must be true or false"}
		}
		parsed = b
	default:
		if strings.TrimSpace(value) == "" {
			return &domain.ValidationError{Field: key, Reason: "must not be empty"}
		}
		if len(def.Choices) > 0 && !slices.Contains(def.Choices, value) {
			return &domain.ValidationError{Field: key, Reason: "must be one of " + strings.Join(def.Choices, ", ")}
		}
		parsed = value
	}

	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Unset removes a stored value so the default applies again.
func (s *SettingsService) Unset(key string) error {
	if _, ok := domain.LookupSetting(key); !ok {
		return &domain.ValidationError{Field: key, Reason: "unknown configuration key"}
	}
	return s.configStore.Unset(key)
}

// Path returns the configuration file path.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}
