package preload

import (
	"io"
	"log/slog"
	"testing"

	"github.com/immxrtalbeast/clipguess/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCacheEvictsOldestInserted(t *testing.T) {
	cache := NewCache(3, discardLogger())

	entries := map[string]*Entry{}
	for _, code := range []string{"AAAAAA", "BBBBBB", "CCCCCC"} {
		entries[code] = NewEntry(2)
		require.NoError(t, cache.Set(code, entries[code]))
	}

	// Reads do not affect eviction order.
	_, ok := cache.Get("AAAAAA")
	require.True(t, ok)

	require.NoError(t, cache.Set("DDDDDD", NewEntry(1)))
	assert.Equal(t, 3, cache.Len())

	_, ok = cache.Get("AAAAAA")
	assert.False(t, ok)
	for _, code := range []string{"BBBBBB", "CCCCCC"} {
		got, ok := cache.Get(code)
		require.True(t, ok)
		assert.Same(t, entries[code], got)
	}
	assert.Equal(t, []string{"BBBBBB", "CCCCCC", "DDDDDD"}, cache.Rooms())
}

func TestCacheResetMovesToTail(t *testing.T) {
	cache := NewCache(2, discardLogger())
	require.NoError(t, cache.Set("A", NewEntry(1)))
	require.NoError(t, cache.Set("B", NewEntry(1)))

	replacement := NewEntry(3)
	require.NoError(t, cache.Set("A", replacement))
	assert.Equal(t, []string{"B", "A"}, cache.Rooms())

	require.NoError(t, cache.Set("C", NewEntry(1)))
	_, ok := cache.Get("B")
	assert.False(t, ok)
	got, ok := cache.Get("A")
	require.True(t, ok)
	assert.Same(t, replacement, got)
}

func TestCacheSkipsPinnedRooms(t *testing.T) {
	cache := NewCache(2, discardLogger())
	require.NoError(t, cache.SetPinned("PREP", NewEntry(1)))
	require.NoError(t, cache.Set("PLAY", NewEntry(1)))

	require.NoError(t, cache.Set("NEW", NewEntry(1)))
	assert.Equal(t, []string{"PREP", "NEW"}, cache.Rooms())

	require.NoError(t, cache.SetPinned("NEW", NewEntry(1)))
	err := cache.Set("LATE", NewEntry(1))
	assert.ErrorIs(t, err, ErrCacheFull)
	assert.Equal(t, 2, cache.Len())

	cache.Unpin("PREP")
	require.NoError(t, cache.Set("LATE", NewEntry(1)))
	assert.Equal(t, []string{"NEW", "LATE"}, cache.Rooms())
}

func TestCacheDelete(t *testing.T) {
	cache := NewCache(2, discardLogger())
	require.NoError(t, cache.SetPinned("A", NewEntry(1)))
	cache.Delete("A")
	cache.Delete("missing")

	_, ok := cache.Get("A")
	assert.False(t, ok)
	assert.Empty(t, cache.Rooms())
}

func TestEntrySlots(t *testing.T) {
	entry := NewEntry(3)
	entry.Store(0, "https://example.com/video/1", &extract.Content{Data: []byte("v"), ContentType: "video/mp4"})
	entry.Fail(2, "https://example.com/video/3")
	entry.Store(7, "https://example.com/video/8", &extract.Content{})

	assert.Equal(t, SlotReady, entry.Slot(0).State)
	assert.Equal(t, "v", string(entry.Slot(0).Content.Data))
	assert.Equal(t, SlotAbsent, entry.Slot(1).State)
	assert.Equal(t, SlotFailed, entry.Slot(2).State)
	assert.Equal(t, SlotAbsent, entry.Slot(-1).State)

	content, ok := entry.Lookup(0, "https://example.com/video/1")
	require.True(t, ok)
	assert.Equal(t, "video/mp4", content.ContentType)
	_, ok = entry.Lookup(0, "https://example.com/video/2")
	assert.False(t, ok)
	_, ok = entry.Lookup(2, "https://example.com/video/3")
	assert.False(t, ok)

	ready, failed := entry.Counts()
	assert.Equal(t, 1, ready)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, entry.Len())
}
