package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreNewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)
	for i := 1; i <= 5; i++ {
		_, err := store.Add(ctx, Entry{JobID: fmt.Sprintf("job-%d", i), Prompt: "p"})
		require.NoError(t, err)
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "job-5", entries[0].JobID)
	assert.Equal(t, "job-3", entries[2].JobID)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
		assert.NotNil(t, e.ImageURLs)
	}
}

func TestMemoryStoreDefaultLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	for i := 0; i < DefaultLimit+10; i++ {
		_, err := store.Add(ctx, Entry{JobID: "j"})
		require.NoError(t, err)
	}
	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultLimit)
}

func TestMemoryStoreRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	first, err := store.Add(ctx, Entry{JobID: "a", ImageURLs: []string{"http://x/view?filename=a.png"}})
	require.NoError(t, err)
	_, err = store.Add(ctx, Entry{JobID: "b"})
	require.NoError(t, err)

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.JobID)

	got.ImageURLs[0] = "mutated"
	again, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://x/view?filename=a.png", again.ImageURLs[0])

	require.NoError(t, store.Remove(ctx, first.ID))
	assert.ErrorIs(t, store.Remove(ctx, first.ID), ErrNotFound)
	_, err = store.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Clear(ctx))
	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	_, err := store.Add(ctx, Entry{JobID: "a", Prompt: "fox", Resolution: "1088x1920", Model: "redzimage15AIO", DurationMS: 4200})
	require.NoError(t, err)

	var buf bytes.Buffer
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, Export(ctx, store, &buf, now))

	var doc struct {
		ExportedAt time.Time `json:"exported_at"`
		Count      int       `json:"count"`
		Entries    []Entry   `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.True(t, now.Equal(doc.ExportedAt))
	assert.Equal(t, 1, doc.Count)
	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "fox", doc.Entries[0].Prompt)
	assert.Equal(t, 4200*time.Millisecond, doc.Entries[0].Duration())
}

func TestExportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(context.Background(), NewMemoryStore(1), &buf, time.Now()))
	assert.Contains(t, buf.String(), `"entries": []`)
}
