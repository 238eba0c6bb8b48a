package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

func TestNewSourceStore(t *testing.T) {
	store := NewSourceStore()
	require.NotNil(t, store)
	assert.NotNil(t, store.sources)
}

func TestNewSourceStore_Initial(t *testing.T) {
	store := NewSourceStore(
		domain.Source{Name: "b", Type: domain.TransportFTP},
		domain.Source{Name: "a", Type: domain.TransportLocal},
	)

	sources, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "a", sources[0].Name)
	assert.Equal(t, "b", sources[1].Name)
}

func TestSourceStore_Save_Success(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()

	source := domain.Source{
		Name:     "docs",
		Type:     domain.TransportHTTPS,
		Endpoint: "https://example.com/files/",
		Options:  map[string]string{"parse_html": "true"},
		Auth:     map[string]string{"username": "alice"},
	}

	err := store.Save(ctx, source)
	require.NoError(t, err)

	saved, err := store.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, domain.TransportHTTPS, saved.Type)
	assert.Equal(t, "https://example.com/files/", saved.Endpoint)
	assert.Equal(t, "true", saved.Options["parse_html"])
	assert.Equal(t, "alice", saved.Auth["username"])
}

func TestSourceStore_Save_Update(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Source{Name: "docs", Endpoint: "/old"}))
	require.NoError(t, store.Save(ctx, domain.Source{Name: "docs", Endpoint: "/new"}))

	saved, err := store.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "/new", saved.Endpoint)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSourceStore_Get_NotFound(t *testing.T) {
	store := NewSourceStore()

	_, err := store.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSourceStore_ReturnsCopies(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, domain.Source{
		Name:    "docs",
		Options: map[string]string{"timeout": "10"},
	}))

	got, err := store.Get(ctx, "docs")
	require.NoError(t, err)
	got.Options["timeout"] = "99"

	again, err := store.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "10", again.Options["timeout"])
}

func TestSourceStore_Delete(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, domain.Source{Name: "docs"}))

	require.NoError(t, store.Delete(ctx, "docs"))
	require.NoError(t, store.Delete(ctx, "never-existed"))

	_, err := store.Get(ctx, "docs")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSourceStore_ConcurrentAccess(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := string(rune('a' + n%26))
			_ = store.Save(ctx, domain.Source{Name: name})
			_, _ = store.Get(ctx, name)
			_, _ = store.List(ctx)
		}(i)
	}
	wg.Wait()

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 26)
}
