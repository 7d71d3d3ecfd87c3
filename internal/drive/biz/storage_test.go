package biz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teledrive-vn/teledrive/internal/conf"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/telegram"
)

func newStorageFixture(t *testing.T) (*StorageUseCase, *fakeRemote, *memCatalogRepo, string) {
	t.Helper()
	remote := newFakeRemote()
	catalog := newMemCatalogRepo()
	tmp := t.TempDir()
	cfg := &conf.StorageConfig{
		UploadsRoot: filepath.Join(tmp, "uploads"),
		OutputRoot:  filepath.Join(tmp, "output"),
		TempRoot:    filepath.Join(tmp, "temp"),
	}
	require.NoError(t, os.MkdirAll(cfg.UploadsRoot, 0o755))
	require.NoError(t, os.MkdirAll(cfg.TempRoot, 0o755))
	uc := NewStorageUseCase(remote, catalog, nil, nil, cfg, testLogger(t))
	return uc, remote, catalog, cfg.UploadsRoot
}

func writeUpload(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUploadSuccess(t *testing.T) {
	uc, remote, catalog, uploads := newStorageFixture(t)
	path := writeUpload(t, uploads, "notes.txt", "hello world!")

	remote.uploadResult = &telegram.UploadResult{
		MessageID:  41,
		ObjectID:   9001,
		AccessHash: 77,
		Reference:  []byte{0xAA},
		MIME:       "text/plain",
	}

	file, err := uc.Upload(context.Background(), 1, path, "notes.txt", "text/plain", nil)
	require.NoError(t, err)

	assert.Equal(t, StorageRemote, file.StorageType)
	assert.Equal(t, int64(12), file.Size)
	assert.Equal(t, 41, file.RemoteMessageID)
	assert.Equal(t, "9001", file.RemoteObjectID)
	assert.Equal(t, "77", file.RemoteAccessHash)
	assert.Equal(t, SavedMessagesChannel, file.RemoteChannel)
	assert.NotZero(t, file.UniqueID)

	// local spool file removed after the remote push
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	stored, err := catalog.GetByID(context.Background(), 1, file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.RemoteMessageID, stored.RemoteMessageID)
}

func TestUploadFallsBackToLocal(t *testing.T) {
	uc, remote, catalog, uploads := newStorageFixture(t)
	path := writeUpload(t, uploads, "big.bin", "payload")

	remote.uploadErr = apperrors.New(apperrors.ErrRemoteUnavailable)

	file, err := uc.Upload(context.Background(), 1, path, "big.bin", "application/octet-stream", nil)
	require.Error(t, err)
	require.NotNil(t, file)

	assert.Equal(t, StorageLocal, file.StorageType)
	assert.Equal(t, path, file.LocalPath)
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteUnavailable))

	// the local file survives for a later retry
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)

	stored, err := catalog.GetByID(context.Background(), 1, file.ID)
	require.NoError(t, err)
	assert.Equal(t, StorageLocal, stored.StorageType)
}

func TestUploadSessionErrorsFailImmediately(t *testing.T) {
	for _, code := range []int{
		apperrors.ErrSessionBusy,
		apperrors.ErrNotAuthenticated,
		apperrors.ErrConnectTimeout,
	} {
		uc, remote, catalog, uploads := newStorageFixture(t)
		path := writeUpload(t, uploads, "doc.txt", "x")
		remote.uploadErr = apperrors.New(code)

		file, err := uc.Upload(context.Background(), 1, path, "doc.txt", "", nil)
		assert.Nil(t, file)
		assert.True(t, apperrors.Is(err, code))

		// no fallback row written
		all, listErr := catalog.ListLiveAll(context.Background(), 1)
		require.NoError(t, listErr)
		assert.Empty(t, all)
	}
}

func TestUploadMissingLocalFile(t *testing.T) {
	uc, _, _, uploads := newStorageFixture(t)

	_, err := uc.Upload(context.Background(), 1, filepath.Join(uploads, "absent"), "absent", "", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}

func TestDownloadPersistsRefreshedReference(t *testing.T) {
	uc, remote, catalog, _ := newStorageFixture(t)
	ctx := context.Background()

	file := &File{
		OwnerID:          1,
		Filename:         "stale.pdf",
		StorageType:      StorageRemote,
		RemoteMessageID:  10,
		RemoteChannel:    SavedMessagesChannel,
		RemoteChannelID:  "me",
		RemoteObjectID:   "500",
		RemoteAccessHash: "600",
		RemoteReference:  []byte("stale"),
	}
	require.NoError(t, catalog.Insert(ctx, file))

	remote.downloadErrs = []error{apperrors.New(apperrors.ErrReferenceExpired)}
	remote.refreshed = []byte("fresh")

	path, err := uc.Download(ctx, 1, file.ID, "")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	stored, err := catalog.GetByID(ctx, 1, file.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), stored.RemoteReference)
}

func TestDownloadRejectsLocalEntry(t *testing.T) {
	uc, _, catalog, _ := newStorageFixture(t)
	ctx := context.Background()

	file := &File{OwnerID: 1, Filename: "local.txt", StorageType: StorageLocal, LocalPath: "/tmp/x"}
	require.NoError(t, catalog.Insert(ctx, file))

	_, err := uc.Download(ctx, 1, file.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}

func TestDownloadFailureSurfaces(t *testing.T) {
	uc, remote, catalog, _ := newStorageFixture(t)
	ctx := context.Background()

	file := &File{
		OwnerID:          1,
		Filename:         "gone.pdf",
		StorageType:      StorageRemote,
		RemoteMessageID:  11,
		RemoteChannel:    SavedMessagesChannel,
		RemoteChannelID:  "me",
		RemoteObjectID:   "1",
		RemoteAccessHash: "2",
		RemoteReference:  []byte{1},
	}
	require.NoError(t, catalog.Insert(ctx, file))

	remote.downloadErrs = []error{apperrors.New(apperrors.ErrRemoteNotFound)}

	_, err := uc.Download(ctx, 1, file.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteNotFound))

	// the stored reference is untouched on failure
	stored, err2 := catalog.GetByID(ctx, 1, file.ID)
	require.NoError(t, err2)
	assert.Equal(t, []byte{1}, stored.RemoteReference)
}

func TestDeleteRemoteSkipsLocalEntries(t *testing.T) {
	uc, remote, catalog, _ := newStorageFixture(t)
	ctx := context.Background()

	local := &File{OwnerID: 1, Filename: "l.txt", StorageType: StorageLocal}
	require.NoError(t, catalog.Insert(ctx, local))

	require.NoError(t, uc.DeleteRemote(ctx, 1, local.ID))
	assert.Empty(t, remote.deletedIDs)
}

func TestMintUniqueIDBumpsOnCollision(t *testing.T) {
	uc, _, catalog, _ := newStorageFixture(t)
	ctx := context.Background()

	first, err := uc.mintUniqueID(ctx)
	require.NoError(t, err)

	require.NoError(t, catalog.Insert(ctx, &File{OwnerID: 1, Filename: "a", UniqueID: first}))

	second, err := uc.mintUniqueID(ctx)
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestSourceFromFileRejectsCorruptIdentifiers(t *testing.T) {
	_, err := sourceFromFile(&File{
		StorageType:     StorageRemote,
		RemoteMessageID: 1,
		RemoteObjectID:  "not-a-number",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIntegrityViolation))
}
