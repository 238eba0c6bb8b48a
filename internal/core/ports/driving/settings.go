package driving

import "github.com/custodia-labs/mirrorsync/internal/core/domain"

// SettingsService reads and writes application configuration.
type SettingsService interface {
	// Get returns the effective settings, defaults filled in.
	Get() domain.AppSettings

	// Value returns the raw stored value of a key and whether it is set.
	Value(key string) (any, bool)

	// Set parses value according to the key's kind and persists it.
	// Unknown keys and unparsable values return a *domain.ValidationError.
	Set(key, value string) error

	// Unset restores a key to its default.
	Unset(key string) error

	// Path returns the configuration file path.
	Path() string
}
