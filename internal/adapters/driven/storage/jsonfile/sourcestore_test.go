package jsonfile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

const sourcesPath = "/state/sources.json"

func TestNewSourceStore_MissingFile(t *testing.T) {
	store, err := NewSourceStore(afero.NewMemMapFs(), sourcesPath)

	require.NoError(t, err)
	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, sourcesPath, store.Path())
}

func TestSourceStore_SaveWritesNameKeyedObject(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewSourceStore(fs, sourcesPath)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Source{
		Name:     "isos",
		Type:     domain.TransportFTP,
		Endpoint: "ftp.example.org",
		Enabled:  true,
		Options:  map[string]string{"remote_path": "/pub"},
	}))

	raw, err := afero.ReadFile(fs, sourcesPath)
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Contains(t, doc, "isos")
	assert.Equal(t, "ftp", doc["isos"]["type"])
	assert.Equal(t, "ftp.example.org", doc["isos"]["endpoint"])

	exists, err := afero.Exists(fs, sourcesPath+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSourceStore_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()
	store, err := NewSourceStore(fs, sourcesPath)
	require.NoError(t, err)

	src := domain.Source{
		Name:     "docs",
		Type:     domain.TransportHTTPS,
		Endpoint: "https://example.com/",
		Target:   "mirror/docs",
		AutoSync: true,
		Schedule: "0 3 * * *",
		Filters:  domain.Filters{Include: []string{"*.pdf"}},
		Auth:     map[string]string{"username": "u"},
	}
	require.NoError(t, store.Save(ctx, src))
	require.NoError(t, store.Save(ctx, domain.Source{Name: "other", Endpoint: "/tmp"}))
	require.NoError(t, store.Delete(ctx, "other"))

	reopened, err := NewSourceStore(fs, sourcesPath)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, src.Target, got.Target)
	assert.Equal(t, src.Schedule, got.Schedule)
	assert.True(t, got.AutoSync)
	assert.Equal(t, []string{"*.pdf"}, got.Filters.Include)
	assert.Equal(t, "u", got.Auth["username"])

	_, err = reopened.Get(ctx, "other")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSourceStore_MapKeyIsAuthoritative(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `{"renamed": {"name": "old", "type": "local", "endpoint": "/srv"}}`
	require.NoError(t, afero.WriteFile(fs, sourcesPath, []byte(content), 0o600))

	store, err := NewSourceStore(fs, sourcesPath)
	require.NoError(t, err)

	got, err := store.Get(context.Background(), "renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
}

func TestSourceStore_EmptyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, sourcesPath, []byte("  \n"), 0o600))

	store, err := NewSourceStore(fs, sourcesPath)

	require.NoError(t, err)
	all, _ := store.List(context.Background())
	assert.Empty(t, all)
}

func TestSourceStore_CorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, sourcesPath, []byte("{not json"), 0o600))

	_, err := NewSourceStore(fs, sourcesPath)

	assert.ErrorContains(t, err, "parse")
}

func TestSourceStore_WriteFailureRollsBack(t *testing.T) {
	base := afero.NewMemMapFs()
	seed, err := NewSourceStore(base, sourcesPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, seed.Save(ctx, domain.Source{Name: "keep"}))

	store, err := NewSourceStore(afero.NewReadOnlyFs(base), sourcesPath)
	require.NoError(t, err)

	assert.Error(t, store.Save(ctx, domain.Source{Name: "new"}))
	assert.Error(t, store.Delete(ctx, "keep"))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "keep", all[0].Name)
}

func TestSourceStore_Reload(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewSourceStore(fs, sourcesPath)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), domain.Source{Name: "a"}))

	changed, err := store.reload()
	require.NoError(t, err)
	assert.False(t, changed, "own write is not a change")

	require.NoError(t, afero.WriteFile(fs, sourcesPath, []byte(`{"b": {"type": "local", "endpoint": "/b"}}`), 0o600))
	changed, err = store.reload()
	require.NoError(t, err)
	assert.True(t, changed)

	all, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].Name)
}
