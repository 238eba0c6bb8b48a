package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mirrorsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), "/cfg")

	settings := service.Get()

	assert.Equal(t, domain.DefaultAppSettings("/cfg"), settings)
	assert.Equal(t, filepath.Join("/cfg", "sources.json"), settings.SourcesFile)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{
		domain.KeyBaseDir:      "/srv/mirror",
		domain.KeyWorkers:      int64(2),
		domain.KeyWatchSources: false,
		domain.KeyAPIAddr:      "127.0.0.1:9000",
		domain.KeyVerbose:      true,
	})
	service := NewSettingsService(store, "/cfg")

	settings := service.Get()

	assert.Equal(t, "/srv/mirror", settings.Engine.BaseDir)
	assert.Equal(t, 2, settings.Engine.Workers)
	assert.Equal(t, domain.DefaultQueueSize, settings.Engine.QueueSize)
	assert.False(t, settings.WatchSources)
	assert.Equal(t, "127.0.0.1:9000", settings.APIAddr)
	assert.True(t, settings.Verbose)
}

func TestSettingsService_Get_InvalidValuesReturnDefaults(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{
		domain.KeyWorkers:   "many",
		domain.KeyQueueSize: int64(-3),
	})
	service := NewSettingsService(store, "/cfg")

	settings := service.Get()

	assert.Equal(t, domain.DefaultWorkers, settings.Engine.Workers)
	assert.Equal(t, domain.DefaultQueueSize, settings.Engine.QueueSize)
}

func TestSettingsService_Set_ParsesByKind(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store, "/cfg")

	require.NoError(t, service.Set(domain.KeyWorkers, " 8 "))
	require.NoError(t, service.Set(domain.KeyWatchSources, "false"))
	require.NoError(t, service.Set(domain.KeyBaseDir, "/data"))
	require.NoError(t, service.Set(domain.KeyBackend, domain.BackendSQLite))

	v, ok := service.Value(domain.KeyWorkers)
	require.True(t, ok)
	assert.Equal(t, 8, v)
	assert.False(t, service.Get().WatchSources)
	assert.Equal(t, "/data", service.Get().Engine.BaseDir)
	assert.Equal(t, domain.BackendSQLite, service.Get().Backend)
}

func TestSettingsService_Set_Rejects(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), "/cfg")

	tests := []struct {
		key   string
		value string
	}{
		{"search.mode", "hybrid"},
		{domain.KeyWorkers, "zero"},
		{domain.KeyWorkers, "0"},
		{domain.KeyVerbose, "maybe"},
		{domain.KeyAPIAddr, "  "},
		{domain.KeyBackend, "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := service.Set(tt.key, tt.value)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.key, verr.Field)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSettingsService_Unset(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{domain.KeyWorkers: 9})
	service := NewSettingsService(store, "/cfg")

	require.NoError(t, service.Unset(domain.KeyWorkers))

	assert.Equal(t, domain.DefaultWorkers, service.Get().Engine.Workers)
	assert.Error(t, service.Unset("unknown.key"))
	assert.Equal(t, ":memory:", service.Path())
}
