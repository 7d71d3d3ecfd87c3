package telegram

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{
		Level:  "debug",
		Format: "console",
		Output: "console",
	})
	require.NoError(t, err)
	return log
}

func TestBoltSessionStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	storage := NewBoltSessionStorage(path)
	ctx := context.Background()

	// nothing stored yet
	data, err := storage.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	want := []byte("auth-key-material")
	require.NoError(t, storage.StoreSession(ctx, want))

	got, err := storage.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// overwrite
	want2 := []byte("rotated")
	require.NoError(t, storage.StoreSession(ctx, want2))
	got, err = storage.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, want2, got)
}

func TestSessionStoreSnapshot(t *testing.T) {
	dir := t.TempDir()
	canonical := filepath.Join(dir, "session.db")

	store, err := NewSessionStore(canonical, testLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, NewBoltSessionStorage(canonical).StoreSession(ctx, []byte("session-bytes")))

	dst := filepath.Join(dir, "scratch", "copy.db")
	fallback, err := store.Snapshot(dst)
	require.NoError(t, err)
	assert.False(t, fallback)

	// the snapshot is a working database holding the same session
	got, err := NewBoltSessionStorage(dst).LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("session-bytes"), got)
}

func TestSessionStoreSnapshotMissingSource(t *testing.T) {
	dir := t.TempDir()
	canonical := filepath.Join(dir, "session.db")

	store, err := NewSessionStore(canonical, testLogger(t))
	require.NoError(t, err)

	// removing the canonical file forces the fallback path
	require.NoError(t, os.Remove(canonical))

	fallback, err := store.Snapshot(filepath.Join(dir, "copy.db"))
	assert.True(t, fallback)
	assert.Error(t, err)
}
