package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

func TestOpenStores_JSON(t *testing.T) {
	dir := t.TempDir()
	settings := domain.DefaultAppSettings(dir)

	stores, err := openStores(afero.NewOsFs(), settings)
	require.NoError(t, err)
	defer stores.close()

	require.NotNil(t, stores.json)
	require.NoError(t, stores.sources.Save(context.Background(), localSource("docs", dir)))
	assert.FileExists(t, settings.SourcesFile)
}

func TestOpenStores_SQLite(t *testing.T) {
	settings := domain.DefaultAppSettings(t.TempDir())
	settings.Backend = domain.BackendSQLite

	stores, err := openStores(afero.NewOsFs(), settings)
	require.NoError(t, err)
	defer stores.close()

	assert.Nil(t, stores.json)
	require.NoError(t, stores.history.Append(context.Background(), domain.HistoryEntry{
		TaskID: "t1", SourceName: "docs", Status: domain.StatusCompleted, Success: true,
	}))
	assert.FileExists(t, settings.DatabaseFile)
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	settings := domain.DefaultAppSettings(t.TempDir())
	settings.Backend = "etcd"

	_, err := openStores(afero.NewMemMapFs(), settings)

	assert.ErrorContains(t, err, "unknown state backend")
}

func TestBootstrap_WiresServices(t *testing.T) {
	clearServices(t)
	oldDir := configDir
	configDir = t.TempDir()
	defer func() { configDir = oldDir }()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	cleanup, err := bootstrap(cmd)
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, syncEngine)
	require.NotNil(t, settingsService)
	assert.NotNil(t, sourceWatcher)
	assert.Equal(t, filepath.Join(configDir, "config.toml"), settingsService.Path())
	assert.Empty(t, syncEngine.GetSources(context.Background()))
}
