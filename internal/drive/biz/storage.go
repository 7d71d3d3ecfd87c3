package biz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/teledrive-vn/teledrive/internal/conf"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/telegram"
	"go.uber.org/zap"
)

// RemoteStore is the Saved Messages surface the use cases depend on
type RemoteStore interface {
	UploadFile(ctx context.Context, path, filename, mime string, uniqueID int64) (*telegram.UploadResult, error)
	DownloadFile(ctx context.Context, src telegram.Source, outPath string, onRefresh telegram.RefreshFunc) error
	Scan(ctx context.Context, limit int, progress telegram.ProgressFunc) ([]telegram.RemoteFile, error)
	EditCaption(ctx context.Context, messageID int, newCaption string) error
	Delete(ctx context.Context, ids []int) error
}

// StorageUseCase moves bytes between local disk and Saved Messages
type StorageUseCase struct {
	remote   RemoteStore
	catalog  CatalogRepo
	cache    ListingCache
	progress ProgressPublisher
	storage  *conf.StorageConfig
	logger   *logger.Logger
}

// NewStorageUseCase creates the use case. cache and progress may be nil.
func NewStorageUseCase(remote RemoteStore, catalog CatalogRepo, cache ListingCache, progress ProgressPublisher, storage *conf.StorageConfig, log *logger.Logger) *StorageUseCase {
	if progress == nil {
		progress = nopPublisher{}
	}
	return &StorageUseCase{
		remote:   remote,
		catalog:  catalog,
		cache:    cache,
		progress: progress,
		storage:  storage,
		logger:   log,
	}
}

// Upload pushes a local file into Saved Messages and records it in the
// catalog. Session errors fail immediately. Any other remote failure
// falls back: the local file stays on disk and a local-mode entry is
// written; both the entry and the error are returned so the caller can
// decide on a retry.
func (uc *StorageUseCase) Upload(ctx context.Context, ownerID int64, localPath, filename, mime string, folderID *int64) (*File, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParams, "local file not readable")
	}

	uniqueID, err := uc.mintUniqueID(ctx)
	if err != nil {
		return nil, err
	}

	res, err := uc.remote.UploadFile(ctx, localPath, filename, mime, uniqueID)
	if err != nil {
		switch apperrors.ExtractCode(err) {
		case apperrors.ErrSessionBusy, apperrors.ErrNotAuthenticated, apperrors.ErrConnectTimeout:
			return nil, err
		}

		uc.logger.Warn("remote upload failed, keeping file locally",
			zap.String("filename", filename),
			zap.Error(err),
		)
		uc.progress.Publish(ProgressEvent{Phase: PhaseError, Error: apperrors.GetDetails(err)})

		local := &File{
			OwnerID:          ownerID,
			FolderID:         folderID,
			Filename:         filename,
			OriginalFilename: filename,
			Size:             info.Size(),
			MIME:             mime,
			StorageType:      StorageLocal,
			LocalPath:        localPath,
			UniqueID:         uniqueID,
		}
		if insErr := uc.catalog.Insert(ctx, local); insErr != nil {
			return nil, insErr
		}
		uc.invalidate(ctx, ownerID)
		return local, err
	}

	file := &File{
		OwnerID:          ownerID,
		FolderID:         folderID,
		Filename:         filename,
		OriginalFilename: filename,
		Size:             info.Size(),
		MIME:             mime,
		StorageType:      StorageRemote,
		RemoteMessageID:  res.MessageID,
		RemoteChannel:    SavedMessagesChannel,
		RemoteChannelID:  SavedMessagesPeer,
		RemoteObjectID:   strconv.FormatInt(res.ObjectID, 10),
		RemoteAccessHash: strconv.FormatInt(res.AccessHash, 10),
		RemoteReference:  res.Reference,
		IsPhoto:          res.IsPhoto,
		UniqueID:         uniqueID,
	}
	if mime == "" {
		file.MIME = res.MIME
	}

	if err := file.ValidateRemote(); err != nil {
		return nil, err
	}
	if err := uc.catalog.Insert(ctx, file); err != nil {
		return nil, err
	}

	if err := os.Remove(localPath); err != nil {
		uc.logger.Warn("failed to remove local file after upload",
			zap.String("path", localPath),
			zap.Error(err),
		)
	}

	uc.invalidate(ctx, ownerID)
	uc.progress.Publish(ProgressEvent{Phase: PhaseCompleted, FilesFound: 1})
	return file, nil
}

// Download fetches a remote entry's bytes to a local path and returns
// it. The default output is a temp file derived from the entry id and
// filename; cleanup belongs to the caller. On a stale reference the
// fresh one is written back to the catalog; failures leave the catalog
// untouched.
func (uc *StorageUseCase) Download(ctx context.Context, ownerID, fileID int64, outPath string) (string, error) {
	file, err := uc.catalog.GetByID(ctx, ownerID, fileID)
	if err != nil {
		return "", err
	}
	if !file.IsRemote() {
		return "", apperrors.New(apperrors.ErrInvalidParams, "entry is not stored remotely")
	}

	if outPath == "" {
		outPath = filepath.Join(uc.storage.TempRoot, fmt.Sprintf("%d_%s", file.ID, file.Filename))
	}

	src, err := sourceFromFile(file)
	if err != nil {
		return "", err
	}

	onRefresh := func(ctx context.Context, fresh *telegram.RemoteFile) error {
		return uc.catalog.SetRemoteReference(ctx, file.ID, fresh.Reference)
	}

	if err := uc.remote.DownloadFile(ctx, src, outPath, onRefresh); err != nil {
		return "", err
	}
	return outPath, nil
}

// DeleteRemote removes the Saved Messages entry backing a file, used by
// permanent deletion. Best-effort; the catalog tombstone is the source
// of truth for the UI.
func (uc *StorageUseCase) DeleteRemote(ctx context.Context, ownerID, fileID int64) error {
	file, err := uc.catalog.GetByID(ctx, ownerID, fileID)
	if err != nil {
		return err
	}
	if !file.IsRemote() {
		return nil
	}
	return uc.remote.Delete(ctx, []int{file.RemoteMessageID})
}

// mintUniqueID assigns a fresh millisecond-resolution id, bumping past
// catalog collisions.
func (uc *StorageUseCase) mintUniqueID(ctx context.Context) (int64, error) {
	id := time.Now().UnixMilli()
	for {
		existing, err := uc.catalog.FindByUniqueID(ctx, id)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return id, nil
		}
		id++
	}
}

func (uc *StorageUseCase) invalidate(ctx context.Context, ownerID int64) {
	if uc.cache != nil {
		uc.cache.InvalidateOwner(ctx, ownerID)
	}
}

// sourceFromFile converts catalog identifiers back to a remote source
func sourceFromFile(file *File) (telegram.Source, error) {
	objectID, err := strconv.ParseInt(file.RemoteObjectID, 10, 64)
	if err != nil {
		return telegram.Source{}, apperrors.Wrap(err, apperrors.ErrIntegrityViolation, "bad remote object id")
	}
	accessHash, err := strconv.ParseInt(file.RemoteAccessHash, 10, 64)
	if err != nil {
		return telegram.Source{}, apperrors.Wrap(err, apperrors.ErrIntegrityViolation, "bad remote access hash")
	}
	return telegram.Source{
		MessageID:  file.RemoteMessageID,
		ObjectID:   objectID,
		AccessHash: accessHash,
		Reference:  file.RemoteReference,
		IsPhoto:    file.IsPhoto,
		Size:       file.Size,
	}, nil
}
