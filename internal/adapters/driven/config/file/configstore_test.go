package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
	assert.Empty(t, store.Keys())
}

func TestNewConfigStore_CreatesNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create/dirs")

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_CorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not toml {{{[["), 0600))

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("storage.base_dir", "/srv/mirror"))
	require.NoError(t, store.Set("engine.workers", 8))
	require.NoError(t, store.Set("state.watch_sources", false))

	assert.Equal(t, "/srv/mirror", store.GetString("storage.base_dir"))
	assert.Equal(t, 8, store.GetInt("engine.workers"))
	assert.False(t, store.GetBool("state.watch_sources"))

	// Wrong types and missing keys yield zero values.
	assert.Equal(t, "", store.GetString("engine.workers"))
	assert.Equal(t, 0, store.GetInt("storage.base_dir"))
	assert.False(t, store.GetBool("missing"))
	_, ok := store.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_PersistsNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("engine.workers", 3))
	require.NoError(t, store.Set("engine.queue_size", 64))
	require.NoError(t, store.Set("api.addr", ":9090"))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[engine]")
	assert.Contains(t, string(raw), "workers = 3")
	assert.Contains(t, string(raw), "[api]")

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.GetInt("engine.workers"))
	assert.Equal(t, 64, reloaded.GetInt("engine.queue_size"))
	assert.Equal(t, ":9090", reloaded.GetString("api.addr"))
	assert.Equal(t, []string{"api.addr", "engine.queue_size", "engine.workers"}, reloaded.Keys())
}

func TestConfigStore_LoadsHandWrittenFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[storage]
base_dir = "/data"

[engine]
workers = 2
history_limit = 50

[log]
verbose = true
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "/data", store.GetString("storage.base_dir"))
	assert.Equal(t, 2, store.GetInt("engine.workers"))
	assert.Equal(t, 50, store.GetInt("engine.history_limit"))
	assert.True(t, store.GetBool("log.verbose"))
}

func TestConfigStore_Unset(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Set("engine.workers", 4))

	require.NoError(t, store.Unset("engine.workers"))
	require.NoError(t, store.Unset("never.set"))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	_, ok := reloaded.Get("engine.workers")
	assert.False(t, ok)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("api.addr", ":8080"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_SetUnmarshallableValueRollsBack(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	err = store.Set("channel", make(chan int))

	assert.Error(t, err)
	_, ok := store.Get("channel")
	assert.False(t, ok)
}

func TestConfigStore_SaveWriteError(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("a", "1"))

	// A directory in place of the file makes the rename fail.
	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(store.Path(), "keep"), nil, 0600))

	assert.Error(t, store.Set("b", "2"))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("engine.workers", n)
			_ = store.GetInt("engine.workers")
		}(i)
	}
	wg.Wait()

	_, ok := store.Get("engine.workers")
	assert.True(t, ok)
}

func TestFlattenAndNestMap(t *testing.T) {
	nested := map[string]any{
		"engine": map[string]any{"workers": int64(5)},
		"top":    "x",
	}

	flat := flattenMap(nested, "")
	assert.Equal(t, map[string]any{"engine.workers": int64(5), "top": "x"}, flat)
	assert.Equal(t, nested, nestMap(flat))
}

func TestNestMap_ValueAndTableConflict(t *testing.T) {
	flat := map[string]any{"a": "leaf", "a.b": "child"}

	nested := nestMap(flat)

	assert.Equal(t, "leaf", nested["a"])
	assert.Equal(t, "child", nested["a.b"])
}
