package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

func historyEntry(id, source string) domain.HistoryEntry {
	return domain.HistoryEntry{
		TaskID:     id,
		SourceName: source,
		Status:     domain.StatusCompleted,
		Success:    true,
		Started:    time.Now(),
		Completed:  time.Now(),
	}
}

func TestNewHistoryStore_DefaultLimit(t *testing.T) {
	store := NewHistoryStore(0)
	assert.Equal(t, domain.DefaultHistoryLimit, store.limit)
}

func TestHistoryStore_ListNewestFirst(t *testing.T) {
	store := NewHistoryStore(10)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, historyEntry("t1", "a")))
	require.NoError(t, store.Append(ctx, historyEntry("t2", "b")))
	require.NoError(t, store.Append(ctx, historyEntry("t3", "a")))

	all, err := store.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t3", all[0].TaskID)
	assert.Equal(t, "t1", all[2].TaskID)

	onlyA, err := store.List(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, "t3", onlyA[0].TaskID)
	assert.Equal(t, "t1", onlyA[1].TaskID)

	limited, err := store.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "t2", limited[1].TaskID)
}

func TestHistoryStore_BoundedToLimit(t *testing.T) {
	store := NewHistoryStore(3)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		require.NoError(t, store.Append(ctx, historyEntry(id, "a")))
	}

	all, err := store.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t5", all[0].TaskID)
	assert.Equal(t, "t3", all[2].TaskID)
}

func TestHistoryStore_UnknownSource(t *testing.T) {
	store := NewHistoryStore(3)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, historyEntry("t1", "a")))

	got, err := store.List(ctx, "nope", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
