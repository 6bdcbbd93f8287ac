package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()

	w, err := NewWatcher(Config{Root: root, DebounceDelay: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	return w
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return Event{}
	}
}

func TestWatcher_CreateModifyDelete(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	path := filepath.Join(root, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"a"}`), 0644))

	ev := nextEvent(t, w)
	assert.Equal(t, OpCreate, ev.Operation)
	assert.Equal(t, "model.json", filepath.Base(ev.Path))
	assert.NotEmpty(t, ev.Hash)

	require.NoError(t, os.WriteFile(path, []byte(`{"id":"b"}`), 0644))
	ev = nextEvent(t, w)
	assert.Equal(t, OpModify, ev.Operation)

	require.NoError(t, os.Remove(path))
	ev = nextEvent(t, w)
	assert.Equal(t, OpDelete, ev.Operation)
	assert.Empty(t, ev.Hash)
}

func TestWatcher_IgnoresOtherFilesAndUnchangedContent(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "model.json")
	require.NoError(t, os.WriteFile(existing, []byte(`{"id":"a"}`), 0644))

	w, err := NewWatcher(Config{Root: root, DebounceDelay: 50 * time.Millisecond})
	require.NoError(t, err)
	seeded, err := w.Seed()
	require.NoError(t, err)
	assert.Len(t, seeded, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	// Same bytes as the seeded snapshot
	require.NoError(t, os.WriteFile(existing, []byte(`{"id":"a"}`), 0644))

	other := filepath.Join(root, "other.json")
	require.NoError(t, os.WriteFile(other, []byte(`{"id":"c"}`), 0644))

	ev := nextEvent(t, w)
	assert.Equal(t, other, ev.Path)
	assert.Equal(t, OpCreate, ev.Operation)
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	sub := filepath.Join(root, "tower", "v2")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tower"), 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Mkdir(sub, 0755))
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	ev := nextEvent(t, w)
	assert.Equal(t, path, ev.Path)
}

func TestWatcher_StopClosesEvents(t *testing.T) {
	w := startWatcher(t, t.TempDir())
	require.NoError(t, w.Stop())

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestFlushPending_WaitsForQuiet(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	w, err := NewWatcher(Config{Root: root, DebounceDelay: time.Second})
	require.NoError(t, err)
	defer w.Stop()

	now := time.Now()
	w.pending[path] = now

	w.flushPending(context.Background(), now.Add(500*time.Millisecond))
	assert.Empty(t, w.events)
	assert.Contains(t, w.pending, path)

	w.flushPending(context.Background(), now.Add(time.Second))
	require.Len(t, w.events, 1)
	assert.NotContains(t, w.pending, path)
	assert.Equal(t, OpCreate, (<-w.events).Operation)
}
